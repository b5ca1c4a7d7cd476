package simsdk

import (
	"context"
	"errors"
)

// ErrTraciNotImplemented is returned by every TraciSim method: it marks
// the seam where a real TraCI client binding to an external SUMO
// process would be wired in. The partitioning, route, and network file
// formats that such a binding would speak are explicitly out of scope
// (spec.md §1); this type exists only so cmd/partition's --sim flag has
// a documented, honest failure mode for "--sim=traci" instead of
// silently falling back to MemSim.
type TraciSim struct{}

var errTraciNotImplemented = errors.New("simsdk: traci bridge not implemented")

func NewTraciSim() *TraciSim { return &TraciSim{} }

func (t *TraciSim) Start(context.Context, []string) (string, error) { return "", errTraciNotImplemented }
func (t *TraciSim) Step() error                                     { return errTraciNotImplemented }
func (t *TraciSim) Time() float64                                   { return 0 }
func (t *TraciSim) DeltaT() float64                                  { return 0 }
func (t *TraciSim) VehicleCount() int                                { return 0 }
func (t *TraciSim) IsLoaded() bool                                   { return false }
func (t *TraciSim) Close(string) error                               { return errTraciNotImplemented }

func (t *TraciSim) LastStepVehicleIDs(string) ([]string, error) { return nil, errTraciNotImplemented }
func (t *TraciSim) VehicleIDs() ([]string, error)                { return nil, errTraciNotImplemented }
func (t *TraciSim) RouteID(string) (string, error)               { return "", errTraciNotImplemented }
func (t *TraciSim) TypeID(string) (string, error)                { return "", errTraciNotImplemented }
func (t *TraciSim) LaneID(string) (string, error)                { return "", errTraciNotImplemented }
func (t *TraciSim) LaneIndex(string) (int, error)                { return 0, errTraciNotImplemented }
func (t *TraciSim) LanePosition(string) (float64, error)         { return 0, errTraciNotImplemented }
func (t *TraciSim) Speed(string) (float64, error)                { return 0, errTraciNotImplemented }

func (t *TraciSim) SlowDown(string, float64, float64) error { return errTraciNotImplemented }
func (t *TraciSim) AddVehicle(string, string, string, string, string, string, float64) error {
	return errTraciNotImplemented
}
func (t *TraciSim) MoveTo(string, string, float64) error { return errTraciNotImplemented }
func (t *TraciSim) RouteIDs() ([]string, error)          { return nil, errTraciNotImplemented }
