// Package clock abstracts "now" so the scheduler's stall detection, the
// drone agent's soft-fault recovery timer and the fire source's replay
// pacing can be driven by a fake clock in tests instead of real sleeps.
// The drone agent's motion and status tickers run on real time.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by the system clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }
