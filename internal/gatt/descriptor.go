package gatt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Permission is the set of operations a characteristic accepts.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermWriteNoResponse
	PermNotify
)

// Has reports whether every bit in q is set in p.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

func (p Permission) String() string {
	var parts []string
	if p.Has(PermRead) {
		parts = append(parts, "read")
	}
	if p.Has(PermWrite) {
		parts = append(parts, "write")
	}
	if p.Has(PermWriteNoResponse) {
		parts = append(parts, "write-no-rsp")
	}
	if p.Has(PermNotify) {
		parts = append(parts, "notify")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ErrHandleAssigned is returned when a host assigns a handle twice.
var ErrHandleAssigned = errors.New("gatt: characteristic handle already assigned")

// Characteristic describes one characteristic of a service. Only the value
// handle changes after construction, exactly once, when the host registers
// the owning service.
type Characteristic struct {
	uuid   uuid.UUID
	perms  Permission
	handle uint16
}

// NewCharacteristic declares a characteristic with the given permissions.
func NewCharacteristic(u uuid.UUID, perms Permission) *Characteristic {
	return &Characteristic{uuid: u, perms: perms}
}

func (c *Characteristic) UUID() uuid.UUID         { return c.uuid }
func (c *Characteristic) Permissions() Permission { return c.perms }

// Handle returns the value handle, or 0 before registration.
func (c *Characteristic) Handle() uint16 { return c.handle }

// AssignHandle records the value handle chosen by the host.
func (c *Characteristic) AssignHandle(h uint16) error {
	if h == 0 {
		return fmt.Errorf("gatt: invalid handle 0 for %s", c.uuid)
	}
	if c.handle != 0 {
		return fmt.Errorf("%w: %s", ErrHandleAssigned, c.uuid)
	}
	c.handle = h
	return nil
}

// ServiceDescriptor is a primary service and its ordered characteristics.
type ServiceDescriptor struct {
	uuid  uuid.UUID
	chars []*Characteristic
}

// NewService builds a service descriptor. The characteristic list is copied
// so the caller cannot change it after construction.
func NewService(u uuid.UUID, chars ...*Characteristic) *ServiceDescriptor {
	owned := make([]*Characteristic, len(chars))
	copy(owned, chars)
	return &ServiceDescriptor{uuid: u, chars: owned}
}

func (s *ServiceDescriptor) UUID() uuid.UUID { return s.uuid }

// Characteristics returns the characteristics in declaration order.
func (s *ServiceDescriptor) Characteristics() []*Characteristic {
	out := make([]*Characteristic, len(s.chars))
	copy(out, s.chars)
	return out
}

// Lookup finds the characteristic owning value handle h.
func (s *ServiceDescriptor) Lookup(h uint16) (*Characteristic, bool) {
	if h == 0 {
		return nil, false
	}
	for _, c := range s.chars {
		if c.handle == h {
			return c, true
		}
	}
	return nil, false
}

// AttributeCount is the number of attribute table entries the service needs:
// the service declaration, a declaration and a value per characteristic, and
// a CCCD for each notify-capable characteristic.
func (s *ServiceDescriptor) AttributeCount() int {
	n := 1
	for _, c := range s.chars {
		n += 2
		if c.perms.Has(PermNotify) {
			n++
		}
	}
	return n
}
