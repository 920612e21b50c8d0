// Package testutil provides deterministic fakes for the external
// collaborators: the clock, the workflow submission service and the
// fileset registrar.
package testutil

import (
	"sync"
	"time"
)

// FixedClock provides a thread-safe settable clock for tests.
//
// Unlike the real clock, FixedClock only moves when told to. This
// lets release-scheduler tests place "now" exactly around a dataset's
// delay boundary.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock pinned to the given time.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the pinned time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock to a new time.
func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
