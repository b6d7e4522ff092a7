package swtimer

import (
	"sync"
	"time"
)

// Manual is a Factory whose timers only fire when Advance is called.
// Callbacks run on the caller's goroutine, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

// NewManual returns a manual clock starting at zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualTimer struct {
	m        *Manual
	fn       func()
	period   time.Duration
	deadline time.Duration
	armed    bool
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

func (m *Manual) Every(d time.Duration, fn func()) Timer {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, period time.Duration, fn func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{m: m, fn: fn, period: period, deadline: m.now + d, armed: true}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Reset(d time.Duration) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.deadline = t.m.now + d
	t.armed = true
	if t.period > 0 {
		t.period = d
	}
}

func (t *manualTimer) Stop() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.armed = false
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.deadline
		if next.period > 0 {
			next.deadline += next.period
		} else {
			next.armed = false
		}
		fn := next.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	var next *manualTimer
	for _, t := range m.timers {
		if !t.armed || t.deadline > target {
			continue
		}
		if next == nil || t.deadline < next.deadline {
			next = t
		}
	}
	return next
}

// Now returns the elapsed manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Armed returns the number of armed timers.
func (m *Manual) Armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if t.armed {
			n++
		}
	}
	return n
}
