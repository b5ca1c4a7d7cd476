// Package neighbor implements the Stub/Handler pair that make up the
// border-crossing protocol between two partitions that share at least
// one border edge.
//
// # Overview
//
// For an ordered pair (owner, neighbor) there is exactly one Stub, owned
// by the owner partition, and exactly one Handler, owned by the neighbor
// partition, serving exactly that Stub. A partition with k neighbors
// therefore runs k Stubs (outbound) and k Handlers (inbound), each pair
// talking over its own socket named by internal/transport — there is no
// shared or multiplexed connection between more than two partitions.
//
// # Architecture
//
//	owner partition                    neighbor partition
//	┌──────────────┐                   ┌──────────────┐
//	│  Stub          │ ── connect ──►  │  Handler       │
//	│  (outbound)     │ ── request ──►  │  (inbound)      │
//	│  blocks for      │ ◄── reply ───  │  reader goroutine│
//	│  one reply        │                 │  + dispatcher    │
//	└──────────────┘                   │  goroutine        │
//	                                      │  addQueue/speedQueue│
//	                                      │  (capacity 1024)    │
//	                                      └──────────────┘
//
// # Core Components
//
// Stub: GetEdgeVehicles, HasVehicle, and HasVehicleInEdge are read
// calls — they block for a reply carrying the answer. SetVehicleSpeed
// and AddVehicle are write calls — the Handler enqueues them and
// replies immediately, without waiting for the write to reach the
// Sim. Every method blocks the caller until some reply arrives;
// callers must serialize their own calls to a given Stub, since this
// package adds no mutex in front of the connection — the reference
// architecture only ever calls a Stub from its owning partition's
// single tick-loop goroutine.
//
// Handler: runs a dedicated reader goroutine (decodes frames off the
// wire, independent of dispatch state) plus a dedicated dispatcher
// goroutine (applies the Idle/Listening/Terminated state machine
// below). A request fully read off the wire while the handler is Idle
// is never lost — it stalls in the handoff between the two goroutines
// until the handler returns to Listening.
//
// OperationQueue[T]: a fixed-capacity buffer used for the two buffered
// write kinds. Append reports overflow rather than blocking or
// panicking, so a burst of writes under a slow drain degrades into
// dropped (and logged) operations instead of stalling the dispatcher.
//
// # State Machine
//
//	        ListenOn
//	   ┌───────────────┐
//	   │                ▼
//	  Idle          Listening
//	   │                │
//	   └───────────────┘
//	        ListenOff
//
//	   Listening ──Stop──► Terminated
//	   Idle      ──Stop──► Terminated
//
// Listening: read requests (GetEdgeVehicles, HasVehicle,
// HasVehicleInEdge) are dispatched synchronously against SimReader and
// answered immediately; write requests (SetVehicleSpeed, AddVehicle) are
// appended to the matching OperationQueue and acknowledged immediately,
// without touching the Sim.
//
// Idle: the dispatcher stops pulling from the request channel. Bytes
// already read off the wire by the reader goroutine queue up in the
// handoff; nothing is dropped, nothing errors — the caller on the other
// end simply waits longer for its reply. This is the window
// internal/partition's drain phase uses to safely call
// ApplyMutableOperations against the Sim without a concurrent dispatch
// racing it.
//
// Terminated: set by Stop, irreversible. ListenOn called afterward
// returns ErrTerminated. Join waits for the dispatcher goroutine to exit
// and closes the connection, which ends the reader goroutine.
//
// # Write Ordering
//
// ApplyMutableOperations drains addQueue in full before draining
// speedQueue at all, and each queue preserves FIFO order within itself
// — so a vehicle's AddVehicle is always replayed before any
// SetVehicleSpeed call naming it, no matter which order the two arrived
// on the wire in.
//
// # See Also
//
// Related packages:
//   - internal/partition: owns the Stubs and Handlers, drives ListenOff/
//     WaitIdle/ApplyMutableOperations/ListenOn once per tick per
//     neighbor in its drain phase.
//   - internal/transport: the framed connection and endpoint naming
//     both Stub and Handler dial/listen on.
//   - internal/wire: the opcode and payload encoding on the wire.
package neighbor
