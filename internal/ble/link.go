package ble

import (
	"sync/atomic"

	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// Link holds the current connection handle. Services read it without
// taking the controller lock.
type Link struct {
	h atomic.Uint32
}

// NewLink returns a link with no connection.
func NewLink() *Link {
	l := &Link{}
	l.h.Store(uint32(gatt.ConnNone))
	return l
}

func (l *Link) ConnHandle() gatt.ConnHandle { return gatt.ConnHandle(l.h.Load()) }

func (l *Link) set(h gatt.ConnHandle) { l.h.Store(uint32(h)) }

// Connected reports whether a link is up.
func (l *Link) Connected() bool { return l.ConnHandle().Valid() }
