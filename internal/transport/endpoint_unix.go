//go:build !windows

package transport

// unixSocketsSupported is true on every target the reference deployment
// cares about (the reference target is one host, IPC transport, TCP
// fallback per spec.md §1).
const unixSocketsSupported = true
