package gatt

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrRegistryFull is returned when more services are added than the
// registry was sized for.
var ErrRegistryFull = errors.New("gatt: service registry full")

// Registry is the fixed-capacity set of service units the protocol layer
// owns. Dispatch routes host events to the unit whose descriptor holds the
// handle.
type Registry struct {
	handlers []Handler
	capacity int
}

// NewRegistry returns an empty registry holding at most capacity services.
func NewRegistry(capacity int) *Registry {
	return &Registry{handlers: make([]Handler, 0, capacity), capacity: capacity}
}

// Add appends h in registration order.
func (r *Registry) Add(h Handler) error {
	if len(r.handlers) >= r.capacity {
		return fmt.Errorf("%w (capacity %d)", ErrRegistryFull, r.capacity)
	}
	r.handlers = append(r.handlers, h)
	return nil
}

// Handlers returns the services in registration order.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int { return len(r.handlers) }

// Owner returns the service whose descriptor holds value handle h.
func (r *Registry) Owner(h uint16) (Handler, bool) {
	for _, svc := range r.handlers {
		if _, ok := svc.Descriptor().Lookup(h); ok {
			return svc, true
		}
	}
	return nil, false
}

// Dispatch routes an access to the owning service. Unknown handles fail with
// ErrInvalidHandle; operations the characteristic does not permit fail with
// the matching "not permitted" code before the service sees them.
func (r *Registry) Dispatch(a *Access) error {
	svc, ok := r.Owner(a.Handle)
	if !ok {
		return ErrInvalidHandle
	}
	return guard(svc)(a)
}

// guard wraps h.OnAccess with the descriptor's permission checks.
func guard(h Handler) AccessFunc {
	desc := h.Descriptor()
	return func(a *Access) error {
		c, ok := desc.Lookup(a.Handle)
		if !ok {
			return ErrInvalidHandle
		}
		if err := permitted(c.Permissions(), a.Op); err != nil {
			return err
		}
		return h.OnAccess(a)
	}
}

func permitted(p Permission, op Op) error {
	switch op {
	case OpRead:
		if !p.Has(PermRead) {
			return ErrReadNotPermitted
		}
	case OpWrite:
		if !p.Has(PermWrite) {
			return ErrWriteNotPermitted
		}
	case OpWriteNoResponse:
		if !p.Has(PermWriteNoResponse) && !p.Has(PermWrite) {
			return ErrWriteNotPermitted
		}
	}
	return nil
}

// Subscription routes a CCCD change to the owning service. It returns false
// when no service owns the handle.
func (r *Registry) Subscription(h uint16, enabled bool) bool {
	svc, ok := r.Owner(h)
	if !ok {
		return false
	}
	sub, ok := svc.(Subscriber)
	if !ok {
		return true
	}
	if enabled {
		sub.OnSubscribe(h)
	} else {
		sub.OnUnsubscribe(h)
	}
	return true
}

// Connected tells every connection-aware service the link is up.
func (r *Registry) Connected(conn ConnHandle) {
	for _, svc := range r.handlers {
		if ca, ok := svc.(ConnectionAware); ok {
			ca.OnConnected(conn)
		}
	}
}

// Disconnected tells every connection-aware service the link is down.
func (r *Registry) Disconnected() {
	for _, svc := range r.handlers {
		if ca, ok := svc.(ConnectionAware); ok {
			ca.OnDisconnected()
		}
	}
}

// Register runs the two-phase host registration for one service: count the
// attribute table entries, then add the service with accesses routed through
// the permission guard to h.OnAccess.
func Register(reg Registrar, h Handler) error {
	desc := h.Descriptor()
	if _, err := reg.CountConfig(desc); err != nil {
		return fmt.Errorf("gatt: count config for %s: %w", desc.UUID(), err)
	}
	if err := reg.AddService(desc, guard(h)); err != nil {
		return fmt.Errorf("gatt: add service %s: %w", desc.UUID(), err)
	}
	slog.Debug("[GATT] service registered", "uuid", desc.UUID(), "attributes", desc.AttributeCount())
	return nil
}
