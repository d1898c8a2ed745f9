// Package connectivity reports whether the network looks reachable so
// background refresh passes can skip doomed calls while offline.
package connectivity

import (
	"net"
	"sync"
	"time"
)

// Gate answers "are we online" with a short-lived cached probe.
type Gate struct {
	probeAddr   string
	cacheWindow time.Duration

	mu        sync.Mutex
	lastCheck time.Time
	online    bool

	// dial is replaceable in tests.
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// New creates a gate probing the given TCP address.
func New(probeAddr string, cacheWindow time.Duration) *Gate {
	return &Gate{
		probeAddr:   probeAddr,
		cacheWindow: cacheWindow,
		dial:        net.DialTimeout,
	}
}

// Online reports connectivity, probing at most once per cache window.
func (g *Gate) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Sub(g.lastCheck) < g.cacheWindow {
		return g.online
	}

	conn, err := g.dial("tcp", g.probeAddr, 3*time.Second)
	if err == nil {
		conn.Close()
	}
	g.online = err == nil
	g.lastCheck = now
	return g.online
}

// SetDialer overrides the probe dialer (for tests).
func (g *Gate) SetDialer(dial func(network, addr string, timeout time.Duration) (net.Conn, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dial = dial
	g.lastCheck = time.Time{}
}
