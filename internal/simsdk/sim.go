package simsdk

import (
	"context"
	"errors"
)

// ErrNoData classifies a Sim read error: a getter was called for an
// edge, vehicle, or route id the Sim has no data for. Callers treat this
// as "no data for this call" and continue the tick (spec.md §7.3).
var ErrNoData = errors.New("simsdk: no data")

// ErrVehicleExists classifies an AddVehicle write error caused by the
// vehicle id already being present in the Sim — the duplicate-transfer
// case the border protocol is designed to tolerate (spec.md §1, §8 S3).
var ErrVehicleExists = errors.New("simsdk: vehicle already exists")

// ErrRouteNotFound classifies an AddVehicle write error caused by the
// requested route id not existing in this partition's route file. For a
// multipart route segment this is not an error condition at the
// partition-runtime level: it silently means the vehicle has reached its
// global destination (spec.md §7.4).
var ErrRouteNotFound = errors.New("simsdk: route not found")

// ErrNotStarted is returned by any Sim method invoked before Start or
// after Close.
var ErrNotStarted = errors.New("simsdk: sim not started")

// Sim is the set of capabilities the partition runtime requires from the
// embedded microsimulator (spec.md §6). It is intentionally narrow: only
// the operations the border-crossing protocol and the tick loop actually
// call are exposed.
type Sim interface {
	// Start loads the simulator with the given pass-through arguments
	// and returns its reported version string.
	Start(ctx context.Context, args []string) (version string, err error)
	// Step advances the simulation by one tick.
	Step() error
	// Time returns the current simulation time.
	Time() float64
	// DeltaT returns the simulator's fixed tick length.
	DeltaT() float64
	// VehicleCount returns the number of vehicles currently present.
	VehicleCount() int
	// IsLoaded reports whether Start has completed successfully and
	// Close has not yet been called.
	IsLoaded() bool
	// Close shuts the simulator down; reason is recorded for logging.
	Close(reason string) error

	// LastStepVehicleIDs returns the ids of vehicles present on edgeID
	// as of the most recently completed Step.
	LastStepVehicleIDs(edgeID string) ([]string, error)
	// VehicleIDs returns every vehicle id currently present.
	VehicleIDs() ([]string, error)
	// RouteID returns the route id a vehicle is currently assigned to.
	RouteID(vehID string) (string, error)
	// TypeID returns a vehicle's type id.
	TypeID(vehID string) (string, error)
	// LaneID returns a vehicle's current lane id.
	LaneID(vehID string) (string, error)
	// LaneIndex returns a vehicle's current lane index within its edge.
	LaneIndex(vehID string) (int, error)
	// LanePosition returns a vehicle's position along its current lane.
	LanePosition(vehID string) (float64, error)
	// Speed returns a vehicle's current speed.
	Speed(vehID string) (float64, error)

	// SlowDown requests a vehicle reach speed within deltaT.
	SlowDown(vehID string, speed, deltaT float64) error
	// AddVehicle inserts a new vehicle on routeID. depart, lane, and pos
	// mirror the upstream simulator's string-valued placement hints
	// ("now"/"first"/"base" in the reference deployment); the exact
	// lane and position are fixed up afterward with MoveTo.
	AddVehicle(vehID, routeID, typeID, depart, lane, pos string, speed float64) error
	// MoveTo repositions an existing vehicle onto laneID at lanePos.
	MoveTo(vehID, laneID string, lanePos float64) error
	// RouteIDs returns every route id loaded from this partition's
	// route file, including multipart segment ids ("<base>_part<k>").
	RouteIDs() ([]string, error)
}
