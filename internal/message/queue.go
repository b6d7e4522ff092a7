package message

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the capacity used when none is configured. Producers
// never block; a full queue drops.
const DefaultQueueSize = 32

// Queue is a FIFO of message kinds with a non-blocking producer side that is
// safe to call from any goroutine, including interrupt handlers on TinyGo.
type Queue struct {
	ch      chan Kind
	dropped atomic.Uint32
}

// NewQueue creates a queue holding up to size pending messages.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Kind, size)}
}

// PushMessage enqueues k. It never blocks; when the queue is full the
// message is dropped and false is returned. Drops are not retried.
func (q *Queue) PushMessage(k Kind) bool {
	select {
	case q.ch <- k:
		return true
	default:
		q.dropped.Add(1)
		slog.Warn("[SYS] queue full, dropping message", "kind", k)
		return false
	}
}

// PushFromISR is PushMessage for interrupt handlers: a full queue counts the
// drop without logging.
func (q *Queue) PushFromISR(k Kind) bool {
	select {
	case q.ch <- k:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Receive waits up to wait for the next message. A zero wait polls.
func (q *Queue) Receive(wait time.Duration) (Kind, bool) {
	if wait <= 0 {
		select {
		case k := <-q.ch:
			return k, true
		default:
			return 0, false
		}
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case k := <-q.ch:
		return k, true
	case <-t.C:
		return 0, false
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns how many messages were dropped because the queue was full.
func (q *Queue) Dropped() uint32 {
	return q.dropped.Load()
}
