// Package gatttest provides in-memory host doubles for service unit tests.
package gatttest

import (
	"sync"

	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// Registrar assigns sequential handles and keeps each service's access
// callback so tests can drive reads and writes the way a host would.
type Registrar struct {
	mu       sync.Mutex
	next     uint16
	Limit    int // attribute budget; 0 means unlimited
	used     int
	Services []*gatt.ServiceDescriptor
	access   map[uint16]gatt.AccessFunc
	FailAdd  error
}

// NewRegistrar returns a registrar whose first handle is 1.
func NewRegistrar() *Registrar {
	return &Registrar{next: 1, access: make(map[uint16]gatt.AccessFunc)}
}

func (r *Registrar) CountConfig(s *gatt.ServiceDescriptor) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := s.AttributeCount()
	if r.Limit > 0 && r.used+n > r.Limit {
		return n, gatt.ErrInsufficientResources
	}
	r.used += n
	return n, nil
}

func (r *Registrar) AddService(s *gatt.ServiceDescriptor, fn gatt.AccessFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAdd != nil {
		return r.FailAdd
	}
	r.next++ // service declaration
	for _, c := range s.Characteristics() {
		r.next++ // characteristic declaration
		if err := c.AssignHandle(r.next); err != nil {
			return err
		}
		r.access[r.next] = fn
		r.next++
		if c.Permissions().Has(gatt.PermNotify) {
			r.next++ // CCCD
		}
	}
	r.Services = append(r.Services, s)
	return nil
}

// Write performs a peer write on handle h.
func (r *Registrar) Write(h uint16, data []byte) error {
	return r.do(&gatt.Access{Conn: 1, Handle: h, Op: gatt.OpWrite, Data: data})
}

// WriteNoResponse performs a peer write command on handle h.
func (r *Registrar) WriteNoResponse(h uint16, data []byte) error {
	return r.do(&gatt.Access{Conn: 1, Handle: h, Op: gatt.OpWriteNoResponse, Data: data})
}

// Read performs a peer read on handle h with a max-size buffer of 512.
func (r *Registrar) Read(h uint16) ([]byte, error) {
	buf := gatt.NewBuffer(512)
	err := r.do(&gatt.Access{Conn: 1, Handle: h, Op: gatt.OpRead, Out: buf})
	return buf.Bytes(), err
}

func (r *Registrar) do(a *gatt.Access) error {
	r.mu.Lock()
	fn, ok := r.access[a.Handle]
	r.mu.Unlock()
	if !ok {
		return gatt.ErrInvalidHandle
	}
	return fn(a)
}

// Notification is one recorded notify call.
type Notification struct {
	Conn   gatt.ConnHandle
	Handle uint16
	Data   []byte
}

// Notifier records notifications; Err, when set, is returned instead.
type Notifier struct {
	mu   sync.Mutex
	Sent []Notification
	Err  error
}

func (n *Notifier) Notify(conn gatt.ConnHandle, handle uint16, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	n.Sent = append(n.Sent, Notification{Conn: conn, Handle: handle, Data: cp})
	return nil
}

// Count returns the number of recorded notifications.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Sent)
}

// Last returns the most recent notification.
func (n *Notifier) Last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Sent) == 0 {
		return Notification{}, false
	}
	return n.Sent[len(n.Sent)-1], true
}

// Conn is a settable ConnView.
type Conn struct {
	mu sync.Mutex
	h  gatt.ConnHandle
}

// NewConn returns a view with no connection.
func NewConn() *Conn { return &Conn{h: gatt.ConnNone} }

func (c *Conn) Set(h gatt.ConnHandle) {
	c.mu.Lock()
	c.h = h
	c.mu.Unlock()
}

func (c *Conn) ConnHandle() gatt.ConnHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h
}
