// Package swtimer provides the software timers used by the system task and
// by GATT services: one-shot timers that are re-armed in place, and periodic
// timers. A Manual factory drives them from an explicit clock, which keeps the
// state machine deterministic under test and in the simulator's step mode.
package swtimer

import (
	"sync"
	"time"
)

// Timer is an armed software timer. Reset re-arms it with a new duration
// without recreating it; Stop disarms it.
type Timer interface {
	Reset(d time.Duration)
	Stop()
}

// Factory creates armed timers. Callbacks run on a timer goroutine (Real) or
// on the goroutine that advances the clock (Manual); they must only enqueue.
type Factory interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// Real is the Factory backed by the runtime timer heap.
var Real Factory = realFactory{}

type realFactory struct{}

func (realFactory) AfterFunc(d time.Duration, fn func()) Timer {
	return &oneShot{t: time.AfterFunc(d, fn)}
}

func (realFactory) Every(d time.Duration, fn func()) Timer {
	p := &periodic{d: d, fn: fn}
	p.mu.Lock()
	p.t = time.AfterFunc(d, p.fire)
	p.mu.Unlock()
	return p
}

type oneShot struct {
	t *time.Timer
}

func (o *oneShot) Reset(d time.Duration) {
	o.t.Stop()
	o.t.Reset(d)
}

func (o *oneShot) Stop() {
	o.t.Stop()
}

type periodic struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	t       *time.Timer
	stopped bool
}

func (p *periodic) fire() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.t.Reset(p.d)
	p.mu.Unlock()
	p.fn()
}

func (p *periodic) Reset(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.d = d
	p.stopped = false
	p.t.Stop()
	p.t.Reset(d)
}

func (p *periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.t.Stop()
}
