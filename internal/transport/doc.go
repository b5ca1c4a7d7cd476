// Package transport implements the endpoint layer: naming rules for the
// sockets that tie partitions, neighbors, and the coordinator together,
// and the small amount of plumbing needed to run the wire protocol
// (internal/wire) over a byte-stream socket.
//
// # Endpoint naming
//
// Endpoints are named deterministically from (from, to) partition pairs
// so a Stub and a Handler can rendezvous without a discovery step:
//
//	neighbor pair (from, to):      unix:<dataDir>/sockets/<from>-<to>
//	                                (tcp fallback: 127.0.0.1:<5400+cantor(from,to)>)
//	coordinator <-> partition p:   unix:<dataDir>/sockets/<p>-main-s
//	                                (tcp fallback: 127.0.0.1:<4500+p>)
//
// On platforms without Unix-domain sockets the TCP addresses are used
// unconditionally; see endpoint_unix.go / endpoint_fallback.go.
//
// # Message framing over a byte stream
//
// internal/wire defines the *logical* frame: a leading opcode followed
// by a payload of fixed-size scalars and length-prefixed C-strings. That
// layout is exactly what the reference implementation puts on the wire,
// because its transport (a message-oriented socket) preserves message
// boundaries for free. A raw TCP or Unix-domain stream does not, so this
// package adds one thin framing layer underneath wire's: every message
// is prefixed with a 4-byte little-endian length so the reader knows
// where it ends. The bytes *inside* that envelope are byte-for-byte what
// spec.md's wire format describes and what internal/wire encodes.
//
// # Ownership
//
// Every socket is opened through a ContextPool, which is the transport's
// analogue of the reference design's process-wide Context: it tracks
// every listener and connection it hands out so a single Shutdown call
// tears all of them down with zero linger, deterministically, exactly
// once per process.
package transport
