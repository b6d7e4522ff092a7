// Package clock is the watch's wall clock. It runs off the host clock plus
// an offset that peers move by writing the current time.
package clock

import (
	"sync"
	"time"
)

// Clock is a settable wall clock. The zero value is not usable; use New.
type Clock struct {
	mu     sync.Mutex
	now    func() time.Time
	offset time.Duration
	synced bool
}

// New returns a clock that follows time.Now until Set is called.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithSource returns a clock driven by now, for tests.
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current wall time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Add(c.offset)
}

// Set moves the clock so that Now returns t at this instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = t.Sub(c.now())
	c.synced = true
}

// Synced reports whether a peer has set the time since boot.
func (c *Clock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}
