// Package testutil provides the fake clock and loopback UDP harness shared
// by the scheduler, drone agent and fire source test suites.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"firedrone/internal/udpconn"
)

// FakeClock is a manually advanced clock.Clock for deterministic tests of
// stall detection, fault-recovery and replay timing.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock starting at an arbitrary fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake clock's current instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ListenLoopback opens a udpconn.Conn bound to 127.0.0.1 on an ephemeral
// port, for use as one endpoint of a test harness. Caller is responsible
// for cancelling ctx (typically via t.Cleanup) to stop its receive loop.
func ListenLoopback(t *testing.T, ctx context.Context) *udpconn.Conn {
	t.Helper()
	conn, err := udpconn.Listen(ctx, 0, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("listen loopback udp: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// RecvLine waits up to timeout for the next datagram on conn and returns
// its text, failing the test if none arrives.
func RecvLine(t *testing.T, conn *udpconn.Conn, timeout time.Duration) string {
	t.Helper()
	select {
	case dg := <-conn.Inbound():
		return string(dg.Data)
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for datagram")
		return ""
	}
}
