// Package host holds what the BLE host adapters share: the pump that
// delivers GAP events and client callbacks on one goroutine, and the
// attribute table that assigns handles and routes peer accesses to the
// registered services.
package host

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chaz8081/praxiom-core/internal/ble"
)

// DefaultPumpSize is the pump's queue depth.
const DefaultPumpSize = 32

// Pump queues host events and deferred work. Emit and Post never block and
// never run the handler inline, so a host may call them while the
// controller is inside one of its methods.
type Pump struct {
	work chan func()

	mu      sync.Mutex
	handler ble.EventHandler
	dropped atomic.Uint64
}

// NewPump returns a pump holding up to size pending items.
func NewPump(size int) *Pump {
	if size <= 0 {
		size = DefaultPumpSize
	}
	return &Pump{work: make(chan func(), size)}
}

// SetHandler installs the event handler.
func (p *Pump) SetHandler(h ble.EventHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Emit queues ev for the handler. It reports false when the queue is full.
func (p *Pump) Emit(ev ble.GapEvent) bool {
	return p.Post(func() { p.deliver(ev) })
}

// Post queues fn to run on the pump's goroutine.
func (p *Pump) Post(fn func()) bool {
	select {
	case p.work <- fn:
		return true
	default:
		p.dropped.Add(1)
		slog.Warn("[BLE] host event queue full, dropping")
		return false
	}
}

// Deliver calls the handler synchronously and returns its result. Hosts use
// it for events whose result they must act on, such as repeat pairing.
func (p *Pump) Deliver(ev ble.GapEvent) ble.GapResult { return p.deliver(ev) }

func (p *Pump) deliver(ev ble.GapEvent) ble.GapResult {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		slog.Debug("[BLE] event without handler", "type", ev.Type)
		return ble.ResultOK
	}
	return h(ev)
}

// Run executes queued items until ctx ends.
func (p *Pump) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-p.work:
			fn()
		}
	}
}

// Drain runs queued items, including any they queue, until the queue is
// empty. It returns how many ran.
func (p *Pump) Drain() int {
	n := 0
	for {
		select {
		case fn := <-p.work:
			fn()
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of queued items.
func (p *Pump) Pending() int { return len(p.work) }

// Dropped returns how many items were lost to a full queue.
func (p *Pump) Dropped() uint64 { return p.dropped.Load() }
