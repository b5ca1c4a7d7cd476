package partition

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Run executes the per-tick main loop until termination, then performs
// the termination sequence. Precondition: Start has already completed
// successfully.
func (r *Runtime) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return r.shutdown(err)
		}

		if err := r.advance(); err != nil {
			return r.shutdown(fmt.Errorf("partition %d: sim step: %w", r.data.ID, err))
		}

		r.outgoingScan()

		maybeFinished := r.maybeFinishedLocally()
		allEmpty, err := r.coord.BarrierStep(maybeFinished)
		if err != nil {
			return r.shutdown(fmt.Errorf("partition %d: step barrier: %w", r.data.ID, err))
		}

		if err := r.drain(); err != nil {
			return r.shutdown(fmt.Errorf("partition %d: drain: %w", r.data.ID, err))
		}

		r.steps++

		if r.shouldTerminate(allEmpty) {
			return r.shutdown(nil)
		}
	}
}

// advance is tick phase 1: step the Sim and invalidate the per-tick
// vehicle-id cache.
func (r *Runtime) advance() error {
	r.vehicleCache.invalidate()
	return r.sim.Step()
}

// maybeFinishedLocally reports whether this partition believes it may
// be done: no vehicles left and at least one second past the latest
// scheduled departure (spec.md §4.4).
func (r *Runtime) maybeFinishedLocally() bool {
	return r.sim.Time() > r.data.LastDepart+1 && r.sim.VehicleCount() == 0
}

// shouldTerminate implements spec.md §4.4 step 5.
func (r *Runtime) shouldTerminate(allEmpty bool) bool {
	if r.endTime >= 0 && r.sim.Time() >= r.endTime {
		return true
	}
	return allEmpty
}

// outgoingScan is tick phase 2: for each outgoing border edge, transfer
// vehicles that are destined for the neighbor across it.
func (r *Runtime) outgoingScan() {
	for _, e := range r.data.OutgoingBorderEdges() {
		edgeVehicles, err := r.sim.LastStepVehicleIDs(e.ID)
		if err != nil {
			r.log.WithField("edge", e.ID).WithError(err).Warn("sim read failed during outgoing scan")
			edgeVehicles = nil
		}
		if len(edgeVehicles) == 0 {
			r.prevOutgoing[e.ID] = newEdgeVehicleSet(nil)
			continue
		}

		prev := r.prevOutgoing[e.ID]
		for _, v := range edgeVehicles {
			r.maybeTransfer(e.ID, e.To, v, prev)
		}
		r.prevOutgoing[e.ID] = newEdgeVehicleSet(edgeVehicles)
	}
}

func (r *Runtime) maybeTransfer(edgeID string, neighborID int, vehID string, prev edgeVehicleSet) {
	route, err := r.sim.RouteID(vehID)
	if err != nil {
		r.log.WithField("vehicle", vehID).WithError(err).Warn("sim read failed resolving route")
		return
	}

	base := route
	wireRoute := route
	part, isMultipart := 0, false
	if b, k, ok := splitMultipartRoute(route); ok {
		base, part, isMultipart = b, k, true
		wireRoute = nextPartRouteID(b, k)
		r.progress.set(vehID, k)
	}

	if !containsString(r.data.NeighborRoutes[neighborID], base) {
		return
	}
	if !containsString(r.data.BorderRouteEnds[edgeID], base) {
		return
	}
	if prev != nil && prev.contains(vehID) {
		return
	}

	stub := r.stubs[neighborID]
	has, err := stub.HasVehicle(vehID)
	if err != nil {
		r.log.WithFields(logrus.Fields{"vehicle": vehID, "neighbor": neighborID}).WithError(err).Warn("has-vehicle precheck failed")
		return
	}
	if has {
		return
	}

	typeID, err := r.sim.TypeID(vehID)
	if err != nil {
		r.log.WithField("vehicle", vehID).WithError(err).Warn("sim read failed resolving type")
		return
	}
	laneID, err := r.sim.LaneID(vehID)
	if err != nil {
		r.log.WithField("vehicle", vehID).WithError(err).Warn("sim read failed resolving lane")
		return
	}
	laneIdx, err := r.sim.LaneIndex(vehID)
	if err != nil {
		r.log.WithField("vehicle", vehID).WithError(err).Warn("sim read failed resolving lane index")
		return
	}
	lanePos, err := r.sim.LanePosition(vehID)
	if err != nil {
		r.log.WithField("vehicle", vehID).WithError(err).Warn("sim read failed resolving lane position")
		return
	}
	speed, err := r.sim.Speed(vehID)
	if err != nil {
		r.log.WithField("vehicle", vehID).WithError(err).Warn("sim read failed resolving speed")
		return
	}

	if err := stub.AddVehicle(vehID, wireRoute, typeID, laneID, int32(laneIdx), lanePos, speed); err != nil {
		r.log.WithFields(logrus.Fields{"vehicle": vehID, "neighbor": neighborID}).WithError(err).Warn("add vehicle transfer failed")
		return
	}

	if isMultipart {
		r.progress.set(vehID, part)
	}
}

func containsString(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

// drain is tick phase 4: quiesce every Handler, replay its buffered
// writes against the Sim, and resume listening.
func (r *Runtime) drain() error {
	for _, nb := range r.data.Neighbors {
		h := r.hdlrs[nb]
		h.ListenOff()
		h.WaitIdle()
		h.ApplyMutableOperations(r)
		if err := h.ListenOn(); err != nil {
			return fmt.Errorf("partition %d: resume listening for neighbor %d: %w", r.data.ID, nb, err)
		}
	}
	return nil
}

// shutdown performs the termination sequence from spec.md §4.4: a final
// barrier rendezvous, stopping every Handler and Stub, signaling
// FINISHED, and closing the Sim. runErr, if non-nil, is still returned
// after teardown completes.
func (r *Runtime) shutdown(runErr error) error {
	if err := r.coord.Barrier(); err != nil && runErr == nil {
		runErr = fmt.Errorf("partition %d: termination barrier: %w", r.data.ID, err)
	}

	for _, nb := range r.data.Neighbors {
		r.hdlrs[nb].Stop()
	}
	for _, nb := range r.data.Neighbors {
		if err := r.stubs[nb].Disconnect(); err != nil && runErr == nil {
			runErr = err
		}
	}
	for _, nb := range r.data.Neighbors {
		r.hdlrs[nb].Join()
	}

	if err := r.coord.Finished(); err != nil && runErr == nil {
		runErr = err
	}
	if err := r.coord.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if err := r.sim.Close("partition shutdown"); err != nil && runErr == nil {
		runErr = err
	}

	return runErr
}
