//go:build windows

package transport

// unixSocketsSupported is false on platforms without AF_UNIX; every
// endpoint falls back to loopback TCP.
const unixSocketsSupported = false
