package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ErrClosed names the closed-pool condition. No function in this package
// returns it: Listen and Dial open sockets whether or not Shutdown has
// already run.
var ErrClosed = errors.New("transport: context pool closed")

// ContextPool is the process-wide owner of every socket a partition or
// coordinator process opens. It exists so teardown is orderly: every
// component closes the sockets it created through the pool, and the
// pool's Shutdown guarantees every one of them is closed exactly once,
// with zero linger, regardless of which component created it or whether
// that component already closed it itself.
//
// The transport is the thing that outlives every socket it spawned; the
// pool is the handle to that transport for a single process.
type ContextPool struct {
	mu     sync.Mutex
	closed bool
	items  []io.Closer
}

// NewContextPool creates an empty, open pool.
func NewContextPool() *ContextPool {
	return &ContextPool{}
}

// Track registers c so a later Shutdown closes it. Track is a no-op
// (and does not error) if the pool is already closed; c then stays open
// and is the caller's to close. Listen and Dial return such an untracked
// socket to their caller all the same.
func (p *ContextPool) Track(c io.Closer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.items = append(p.items, c)
}

// Listen opens a listener on ep, tracked by the pool, creating the
// socket directory for Unix-domain endpoints if necessary and removing
// any stale socket file left behind by a previous run.
func (p *ContextPool) Listen(ep Endpoint) (net.Listener, error) {
	if ep.Network == "unix" {
		if err := os.MkdirAll(filepath.Dir(ep.Address), 0o755); err != nil {
			return nil, fmt.Errorf("transport: create socket dir: %w", err)
		}
		_ = os.Remove(ep.Address)
	}
	l, err := net.Listen(ep.Network, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", ep, err)
	}
	p.Track(l)
	return l, nil
}

// Dial connects to ep, tracked by the pool. A peer that has not bound ep
// yet is waited for: a missing socket file or a refused connection is
// retried until a short deadline passes.
func (p *ContextPool) Dial(ep Endpoint) (net.Conn, error) {
	const retryInterval, timeout = 10 * time.Millisecond, 10 * time.Second
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial(ep.Network, ep.Address)
		if err == nil {
			p.Track(conn)
			return conn, nil
		}
		if !(errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)) || time.Now().After(deadline) {
			return nil, fmt.Errorf("transport: dial %s: %w", ep, err)
		}
		time.Sleep(retryInterval)
	}
}

// Shutdown closes every tracked socket exactly once, with zero linger on
// TCP connections so teardown never blocks on pending frames, and
// returns the first error encountered (closing is attempted for all
// items regardless).
func (p *ContextPool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	items := p.items
	p.items = nil
	p.mu.Unlock()

	var firstErr error
	for _, c := range items {
		SetNoLinger(c)
		if err := c.Close(); err != nil && !isBenignCloseError(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SetNoLinger arranges for an abrupt, non-blocking close on c if c is a
// TCP connection (Unix-domain and in-process connections close abruptly
// by default in this runtime).
func SetNoLinger(c io.Closer) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
}

// isBenignCloseError reports whether err is the kind of error that is a
// normal race during teardown rather than an operational failure
// (closing an already-closed or already-shutting-down socket).
func isBenignCloseError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
