// Package button turns raw side-button edges into gestures. The GPIO
// interrupt only queues ButtonDown and ButtonUp; the system task feeds them
// to a Classifier, and gestures leave as messages on the same queue.
package button

import (
	"sync"
	"time"

	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

// Options holds the gesture timings.
type Options struct {
	DoubleClickWindow time.Duration
	LongPress         time.Duration
	LongerPress       time.Duration
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		DoubleClickWindow: 200 * time.Millisecond,
		LongPress:         400 * time.Millisecond,
		LongerPress:       2 * time.Second,
	}
}

// Classifier emits one gesture per press:
// a release before LongPress emits ButtonPressed, or ButtonDoubleClicked
// when it follows the previous short release within DoubleClickWindow;
// holding past LongPress emits ButtonLongPressed, and past LongerPress
// additionally ButtonLongerPressed. Releasing after a long press emits
// nothing.
type Classifier struct {
	opts Options
	out  message.Pusher

	mu        sync.Mutex
	pressed   bool
	longSent  bool
	inWindow  bool
	longTimer swtimer.Timer
	longerTmr swtimer.Timer
	windowTmr swtimer.Timer
	stopped   bool
}

// New returns a classifier that pushes gestures to out.
func New(out message.Pusher, timers swtimer.Factory, opts Options) *Classifier {
	c := &Classifier{opts: opts, out: out}
	c.longTimer = timers.AfterFunc(opts.LongPress, c.onLong)
	c.longTimer.Stop()
	c.longerTmr = timers.AfterFunc(opts.LongerPress, c.onLonger)
	c.longerTmr.Stop()
	c.windowTmr = timers.AfterFunc(opts.DoubleClickWindow, c.onWindowClosed)
	c.windowTmr.Stop()
	return c
}

// Edge reports a button level change. It takes a lock and re-arms timers,
// so call it from a goroutine, not from interrupt context.
func (c *Classifier) Edge(pressed bool) {
	c.mu.Lock()
	if c.stopped || pressed == c.pressed {
		c.mu.Unlock()
		return
	}
	c.pressed = pressed
	if pressed {
		c.longSent = false
		c.longTimer.Reset(c.opts.LongPress)
		c.longerTmr.Reset(c.opts.LongerPress)
		c.mu.Unlock()
		return
	}

	c.longTimer.Stop()
	c.longerTmr.Stop()
	if c.longSent {
		c.mu.Unlock()
		return
	}
	kind := message.ButtonPressed
	if c.inWindow {
		kind = message.ButtonDoubleClicked
		c.inWindow = false
		c.windowTmr.Stop()
	} else {
		c.inWindow = true
		c.windowTmr.Reset(c.opts.DoubleClickWindow)
	}
	c.mu.Unlock()
	c.out.PushMessage(kind)
}

func (c *Classifier) onLong() {
	c.mu.Lock()
	if !c.pressed || c.stopped {
		c.mu.Unlock()
		return
	}
	c.longSent = true
	c.inWindow = false
	c.mu.Unlock()
	c.out.PushMessage(message.ButtonLongPressed)
}

func (c *Classifier) onLonger() {
	c.mu.Lock()
	if !c.pressed || c.stopped {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.out.PushMessage(message.ButtonLongerPressed)
}

func (c *Classifier) onWindowClosed() {
	c.mu.Lock()
	c.inWindow = false
	c.mu.Unlock()
}

// Stop disarms every timer; later edges are ignored.
// It is safe to call multiple times.
func (c *Classifier) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.longTimer.Stop()
	c.longerTmr.Stop()
	c.windowTmr.Stop()
}
