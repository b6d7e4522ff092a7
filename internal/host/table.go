package host

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// MaxAttrValue is the largest attribute value a peer can read.
const MaxAttrValue = 512

// Attr is one characteristic value in the table.
type Attr struct {
	Service uuid.UUID
	Char    *gatt.Characteristic
	Access  gatt.AccessFunc
	// CCCD is the handle of the client configuration descriptor, or 0.
	CCCD uint16
}

// Table lays services out the way a GATT server does: a service
// declaration, then per characteristic a declaration, the value and, for
// notify characteristics, a CCCD.
type Table struct {
	mu     sync.Mutex
	next   uint16
	limit  int
	used   int
	values map[uint16]*Attr
	cccds  map[uint16]*Attr
	order  []*Attr
}

// NewTable returns a table whose first handle is 1. A positive limit caps
// the attribute count the way a host's configured table size does.
func NewTable(limit int) *Table {
	return &Table{
		next:   1,
		limit:  limit,
		values: make(map[uint16]*Attr),
		cccds:  make(map[uint16]*Attr),
	}
}

// Count reserves room for desc and returns its attribute count.
func (t *Table) Count(desc *gatt.ServiceDescriptor) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := desc.AttributeCount()
	if t.limit > 0 && t.used+n > t.limit {
		return n, fmt.Errorf("host: %d attributes exceed table of %d: %w", t.used+n, t.limit, gatt.ErrInsufficientResources)
	}
	t.used += n
	return n, nil
}

// Add assigns handles to desc and routes its values to fn.
func (t *Table) Add(desc *gatt.ServiceDescriptor, fn gatt.AccessFunc) ([]*Attr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var added []*Attr
	t.next++ // service declaration
	for _, c := range desc.Characteristics() {
		t.next++ // characteristic declaration
		if err := c.AssignHandle(t.next); err != nil {
			return nil, fmt.Errorf("host: %s: %w", c.UUID(), err)
		}
		a := &Attr{Service: desc.UUID(), Char: c, Access: fn}
		t.values[t.next] = a
		t.next++
		if c.Permissions().Has(gatt.PermNotify) {
			a.CCCD = t.next
			t.cccds[t.next] = a
			t.next++
		}
		added = append(added, a)
		t.order = append(t.order, a)
	}
	return added, nil
}

// Lookup returns the attribute with value handle h.
func (t *Table) Lookup(h uint16) (*Attr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.values[h]
	return a, ok
}

// LookupCCCD returns the attribute whose CCCD has handle h.
func (t *Table) LookupCCCD(h uint16) (*Attr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.cccds[h]
	return a, ok
}

// Find returns the first attribute with characteristic UUID u.
func (t *Table) Find(u uuid.UUID) (*Attr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.order {
		if a.Char.UUID() == u {
			return a, true
		}
	}
	return nil, false
}

// Attrs returns every value attribute in handle order.
func (t *Table) Attrs() []*Attr {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Attr, len(t.order))
	copy(out, t.order)
	return out
}

// Read performs a peer read of handle h.
func (t *Table) Read(conn gatt.ConnHandle, h uint16) ([]byte, error) {
	a, ok := t.Lookup(h)
	if !ok {
		return nil, gatt.ErrInvalidHandle
	}
	out := gatt.NewBuffer(MaxAttrValue)
	if err := a.Access(&gatt.Access{Conn: conn, Handle: h, Op: gatt.OpRead, Out: out}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Write performs a peer write of handle h.
func (t *Table) Write(conn gatt.ConnHandle, h uint16, op gatt.Op, data []byte) error {
	a, ok := t.Lookup(h)
	if !ok {
		return gatt.ErrInvalidHandle
	}
	return a.Access(&gatt.Access{Conn: conn, Handle: h, Op: op, Data: data})
}
