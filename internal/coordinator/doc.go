// Package coordinator implements the control-plane rendezvous that keeps
// every partition process in lockstep across a PARTSIM run: a startup
// barrier, a per-tick step-barrier carrying an all-empty vote, a
// termination rendezvous, and a child-process watchdog that turns a dead
// partition into a coordinated shutdown of the rest.
//
// # Overview
//
// Every partition process dials exactly one long-lived connection to the
// coordinator at process start and keeps it open for the life of the
// run. The coordinator never initiates anything on that connection; it
// only replies to requests a partition sends at well-defined points in
// its tick loop. There is no polling and no heartbeat — liveness is
// inferred from the watchdog's view of each child process, not from the
// rendezvous protocol itself.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│                COORDINATOR                    │
//	├──────────────────────────────────────────────┤
//	│                                                │
//	│  ┌────────────────────────────────────────┐  │
//	│  │  per-partition conn[0..N-1]              │  │
//	│  │  one accepted connection each, held      │  │
//	│  │  open for the run's lifetime             │  │
//	│  └────────────────────────────────────────┘  │
//	│                                                │
//	│  ┌────────────────────────────────────────┐  │
//	│  │  roundState                              │  │
//	│  │  - reachedBarrier / reachedStepBarrier   │  │
//	│  │  - empty / stopped bitmaps, one bool per │  │
//	│  │    partition, reset at release           │  │
//	│  └────────────────────────────────────────┘  │
//	│                                                │
//	│  ┌────────────────────────────────────────┐  │
//	│  │  watchdog (chan watchdogReport)           │  │
//	│  │  fed by cmd/partsim's exec.Cmd.Wait()    │  │
//	│  │  reapers, one per forked partition       │  │
//	│  └────────────────────────────────────────┘  │
//	│                                                │
//	│  one select-based event loop reading every    │
//	│  partition's requests plus the watchdog        │
//	│  channel; no per-connection goroutine owns      │
//	│  mutable round state                            │
//	└──────────────────────────────────────────────┘
//
// # Core Components
//
// Coordinator: the server side, bound once per run by New and driven by
// Run's event loop.
//   - AcceptAll blocks until every expected partition has connected.
//   - Run selects over one request channel fed by a readPartition
//     goroutine per connection, one reply channel, one error channel
//     shared by those goroutines, and the watchdog channel; it returns ErrAllFinished
//     once every partition has sent FINISHED, or a non-nil error
//     describing whichever partition died first.
//   - killSurvivors/Survivors compute which still-alive partitions need
//     a SIGKILL when one partition has already gone down.
//
// Client: the partition-side handle, one per partition process. Barrier,
// BarrierStep, and Finished are all blocking calls mirroring the three
// rendezvous points below, but unlike Barrier and BarrierStep, Finished
// is answered immediately per partition rather than held until every
// partition has called it — there is nothing left to coordinate once a
// partition is done.
//
// roundState: per-round bitmap bookkeeping shared by the startup barrier
// and the step-barrier — arrival counts, a "repeated" tie-break for a
// partition that calls in twice before release, and allEmpty/allStopped
// reductions over the per-partition flags.
//
// # Rendezvous Protocol
//
// Startup barrier (BARRIER, opcode 0): every partition calls Barrier
// once after connecting and before touching any neighbor socket. The
// coordinator releases all N replies together, only once all N have
// arrived — this is what guarantees no partition's Handler starts
// listening before every other partition's Stub exists to dial it.
//
// Step-barrier (BARRIER_STEP, opcode 1): every partition calls
// BarrierStep(maybeFinished) once per tick, after its own Sim.Step and
// outgoing-border scan, before draining its Handlers. The reply carries
// allEmpty — the AND of every partition's maybeFinished vote that round
// — which is every partition's signal to terminate locally.
//
// Termination rendezvous (FINISHED, opcode 2): each partition sends this
// once, from its shutdown sequence, after closing its own Stubs and
// Handlers. Run returns ErrAllFinished the moment the Nth one arrives.
//
// A partition that calls Barrier or BarrierStep a second time before the
// first round releases (e.g. after a spurious wakeup) gets a distinct
// "repeated" reply instead of being double-counted.
//
// # Concurrency and Synchronization
//
// All round state lives in the single goroutine running Run's select
// loop; no mutex guards roundState because nothing outside that
// goroutine ever touches it. Each accepted connection has its own
// reader goroutine (readPartition) that only ever forwards decoded
// requests into the event loop over a channel — it owns no state of its
// own besides the connection.
//
// # Failure Scenarios and Recovery
//
// Partition process dies unexpectedly: cmd/partsim's per-child reaper
// goroutine observes exec.Cmd.Wait() return and posts a watchdogReport.
// For a report with a non-nil error that arrives before every partition
// has stopped, Run logs it, marks the survivors via killSurvivors, and
// returns an error; cmd/partsim then records the failed id, computes the
// surviving set via Survivors, and SIGKILLs the rest rather than block
// forever waiting for a barrier that will never complete. (Malformed
// frames are different: readPartition only logs and drops them.)
//
// Partition disconnects without FINISHED: readPartition's next read
// fails and Run returns that read error. A disconnect after FINISHED is
// not a failure: readPartition stops reading once it has forwarded
// FINISHED.
//
// # See Also
//
// Related packages:
//   - internal/neighbor: the peer-to-peer border-crossing protocol this
//     package does not participate in — the coordinator only ever sees
//     BARRIER/BARRIER_STEP/FINISHED traffic.
//   - internal/partition: the tick loop that calls Client at the three
//     rendezvous points above.
//   - cmd/partsim: owns the watchdog's child processes.
package coordinator
