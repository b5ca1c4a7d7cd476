// Package simsdk defines the boundary between the partition runtime and
// the embedded microsimulator, which spec.md treats as an opaque,
// single-threaded, external collaborator (the "Sim").
//
// Sim is the interface every partition runtime call site uses; nothing
// outside this package is allowed to assume a particular simulator
// binding. MemSim is a deterministic, in-memory reference implementation
// used by this repository's own tests and by the bundled examples: it
// is a test double standing in for a real traffic microsimulator, not a
// replacement for one.
//
// Every call that can fail for a reason the partition runtime must
// classify (spec.md §7: Sim read error vs. Sim write error) returns one
// of this package's sentinel errors so callers can use errors.Is instead
// of string matching.
package simsdk
