package partition

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/partsim/partsim/internal/config"
	"github.com/partsim/partsim/internal/coordinator"
	"github.com/partsim/partsim/internal/neighbor"
	"github.com/partsim/partsim/internal/simsdk"
	"github.com/partsim/partsim/internal/transport"
)

// Runtime owns one partition process's Sim handle, its neighbor Stubs
// and Handlers, and its coordinator Client, and drives the per-tick
// loop described in spec.md §4.4.
type Runtime struct {
	data    *config.PartitionData
	endTime float64
	sim     simsdk.Sim

	pool   *transport.ContextPool
	coord  *coordinator.Client
	stubs  map[int]*neighbor.Stub
	hdlrs  map[int]*neighbor.Handler

	prevOutgoing map[string]edgeVehicleSet
	progress     *vehicleProgress
	vehicleCache *allVehicleIDsCache

	pendingAccepts []chan error

	steps int

	log *logrus.Entry
}

// New constructs a Runtime. Call Start before Run.
func New(data *config.PartitionData, endTime float64, sim simsdk.Sim, pool *transport.ContextPool, log *logrus.Entry) *Runtime {
	return &Runtime{
		data:         data,
		endTime:      endTime,
		sim:          sim,
		pool:         pool,
		stubs:        make(map[int]*neighbor.Stub),
		hdlrs:        make(map[int]*neighbor.Handler),
		prevOutgoing: make(map[string]edgeVehicleSet),
		progress:     newVehicleProgress(),
		vehicleCache: newAllVehicleIDsCache(),
		log:          log,
	}
}

// EdgeVehicles implements neighbor.SimReader for this partition's
// Handlers.
func (r *Runtime) EdgeVehicles(edgeID string) ([]string, error) {
	return r.sim.LastStepVehicleIDs(edgeID)
}

// HasVehicle implements neighbor.SimReader.
func (r *Runtime) HasVehicle(vehID string) bool {
	return r.vehicleCache.contains(vehID, r.sim.VehicleIDs)
}

// HasVehicleInEdge implements neighbor.SimReader.
func (r *Runtime) HasVehicleInEdge(vehID, edgeID string) bool {
	ids, err := r.sim.LastStepVehicleIDs(edgeID)
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == vehID {
			return true
		}
	}
	return false
}

// ApplyAddVehicle implements neighbor.Writer: the actual Sim write for a
// buffered AddVehicle operation, called only while the owning Handler is
// Idle.
func (r *Runtime) ApplyAddVehicle(op neighbor.AddVehicleOp) {
	err := r.sim.AddVehicle(op.VehicleID, op.RouteID, op.VehicleType, "now", "first", "base", op.Speed)
	if err != nil {
		if _, _, ok := splitMultipartRoute(op.RouteID); ok {
			r.log.WithFields(logrus.Fields{"vehicle": op.VehicleID, "route": op.RouteID}).
				Debug("multipart route segment absent locally, vehicle reached its global destination")
			return
		}
		r.log.WithFields(logrus.Fields{"vehicle": op.VehicleID, "route": op.RouteID}).WithError(err).Warn("add vehicle failed")
		return
	}
	if err := r.sim.MoveTo(op.VehicleID, op.LaneID, op.LanePos); err != nil {
		r.log.WithFields(logrus.Fields{"vehicle": op.VehicleID, "lane": op.LaneID, "pos": op.LanePos}).
			WithError(err).Warn("move transferred vehicle to border position failed")
	}
}

// ApplySetSpeed implements neighbor.Writer.
func (r *Runtime) ApplySetSpeed(op neighbor.SetSpeedOp) {
	if err := r.sim.SlowDown(op.VehicleID, op.Speed, r.sim.DeltaT()); err != nil {
		r.log.WithField("vehicle", op.VehicleID).WithError(err).Warn("set speed failed")
	}
}

// Start runs the partition's startup sequence: builds Stubs and
// Handlers for every neighbor, starts the Sim, performs the startup
// barrier, connects every Stub, and enables every Handler's listening
// state.
func (r *Runtime) Start(ctx context.Context, dataDir string, simArgs []string) error {
	r.coord = coordinator.NewClient(r.pool, dataDir, r.data.ID)

	for _, nb := range r.data.Neighbors {
		r.stubs[nb] = neighbor.NewStub(r.pool, dataDir, r.data.ID, nb)

		h := neighbor.NewHandler(r.data.ID, nb, r, r.log)
		ep := transport.NeighborEndpoint(dataDir, nb, r.data.ID)
		ln, err := r.pool.Listen(ep)
		if err != nil {
			return fmt.Errorf("partition %d: listen for neighbor %d: %w", r.data.ID, nb, err)
		}
		r.hdlrs[nb] = h
		acceptErr := make(chan error, 1)
		go func() { acceptErr <- h.Accept(ln) }()
		r.pendingAccepts = append(r.pendingAccepts, acceptErr)
	}

	if _, err := r.sim.Start(ctx, simArgs); err != nil {
		return fmt.Errorf("partition %d: sim start: %w", r.data.ID, err)
	}

	if err := r.coord.Connect(); err != nil {
		return fmt.Errorf("partition %d: coordinator connect: %w", r.data.ID, err)
	}
	if err := r.coord.Barrier(); err != nil {
		return fmt.Errorf("partition %d: startup barrier: %w", r.data.ID, err)
	}

	for _, nb := range r.data.Neighbors {
		if err := r.stubs[nb].Connect(); err != nil {
			return fmt.Errorf("partition %d: connect to neighbor %d: %w", r.data.ID, nb, err)
		}
	}
	for _, accepted := range r.pendingAccepts {
		if err := <-accepted; err != nil {
			return fmt.Errorf("partition %d: accept from neighbor: %w", r.data.ID, err)
		}
	}
	for _, nb := range r.data.Neighbors {
		if err := r.hdlrs[nb].ListenOn(); err != nil {
			return fmt.Errorf("partition %d: listen on for neighbor %d: %w", r.data.ID, nb, err)
		}
	}

	return nil
}
