// Package partition implements the per-partition simulation tick loop:
// advance the local Sim, scan outgoing border edges for vehicles that
// need to cross to a neighbor, rendezvous with the coordinator's
// step-barrier, drain every neighbor Handler's buffered writes, and
// check for termination.
//
// # Overview
//
// Runtime is the sole owner of a partition process's Sim handle, its
// Stubs (one per neighbor, for outbound border-crossing calls), and its
// Handlers (one per neighbor, for inbound calls) — see internal/neighbor
// for the wire-level half of that relationship, and internal/coordinator
// for the Client half used at the step-barrier below.
//
// # Tick Loop
//
//	┌─────────────────────────────────────────────────┐
//	│  1. advance    — sim.Step(), invalidate caches    │
//	│  2. outgoing   — scan border edges, maybeTransfer │
//	│  3. barrier    — coord.BarrierStep(maybeFinished) │
//	│  4. drain      — quiesce + replay every Handler   │
//	│  5. terminate? — endTime reached, or allEmpty     │
//	└─────────────────────────────────────────────────┘
//	          ▲                                  │
//	          └──────────── loop ◄────────────────┘
//
// Every partition in a run executes this loop in lockstep: step 3 is a
// hard synchronization point, so no partition's Sim.Step ever gets more
// than one tick ahead of another's.
//
// # Border Crossing
//
// outgoingScan reads LastStepVehicleIDs for each of this partition's
// outgoing border edges and calls maybeTransfer for every vehicle found
// there. maybeTransfer:
//   - resolves the vehicle's route id and, via splitMultipartRoute,
//     its base route and part number if the route was split by the
//     offline partitioner ("<base>_part<k>");
//   - skips the transfer unless the neighbor partition is registered as
//     a destination for that base route (NeighborRoutes) on that exact
//     border edge (BorderRouteEnds);
//   - precheck-dials the neighbor's HasVehicle to skip the transfer when
//     the neighbor's Sim already holds the vehicle (an AddVehicle still
//     buffered, undrained, on the other side is not visible to it);
//   - reads the vehicle's current type, lane, lane index, lane position,
//     and speed straight off this partition's Sim and ships them across
//     as-is — the neighbor's drain phase places the vehicle at exactly
//     that lane and position via Sim.AddVehicle followed by Sim.MoveTo,
//     not at some Sim-chosen default;
//   - for a multipart route, computes the destination-local segment
//     name with nextPartRouteID(base, part) rather than sending the
//     bare base id, since only the destination partition's own route
//     table has that segment defined.
//
// A vehicle's local copy in the source partition is left in place after
// a transfer; it disappears naturally once it runs off the end of its
// local route, typically within the next few ticks, without any
// explicit removal call from this package.
//
// # Drain Phase
//
// drain briefly stops each Handler from dispatching (ListenOff,
// WaitIdle), replays every operation queued while it was still
// Listening against this partition's own Sim via ApplyMutableOperations
// — implementing neighbor.Writer as ApplyAddVehicle/ApplySetSpeed — then
// resumes listening. This is the only point in the tick where a neighbor
// Handler's buffered writes touch the Sim, and it happens once per tick
// per neighbor, never concurrently with this partition's own Sim.Step.
//
// # Termination
//
// maybeFinishedLocally votes true once this partition has no vehicles
// left and enough time has passed since the latest scheduled departure
// that none are expected to appear. shouldTerminate additionally treats
// reaching a configured end time as unconditional termination,
// independent of the coordinator's allEmpty vote — this is what lets a
// bounded test run cut a partition off mid-flight for inspection without
// waiting for every partition in the run to agree the network is empty.
//
// # See Also
//
// Related packages:
//   - internal/neighbor: Stub/Handler border-crossing RPC.
//   - internal/coordinator: barrier/step-barrier/termination rendezvous.
//   - internal/simsdk: the Sim interface this package drives.
package partition
