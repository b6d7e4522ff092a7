package gatt

import (
	"errors"
	"fmt"
)

// ConnHandle identifies the live BLE link.
type ConnHandle uint16

// ConnNone is the sentinel for "no connection".
const ConnNone ConnHandle = 0xFFFF

// Valid reports whether h names a live link.
func (h ConnHandle) Valid() bool { return h != ConnNone }

// ConnView is a read-only view of the current connection handle.
type ConnView interface {
	ConnHandle() ConnHandle
}

// ATTError is an Attribute Protocol error code returned from OnAccess.
type ATTError uint8

const (
	ErrInvalidHandle         ATTError = 0x01
	ErrReadNotPermitted      ATTError = 0x02
	ErrWriteNotPermitted     ATTError = 0x03
	ErrInvalidAttrValueLen   ATTError = 0x0D
	ErrUnlikely              ATTError = 0x0E
	ErrInsufficientResources ATTError = 0x11
)

func (e ATTError) Error() string {
	switch e {
	case ErrInvalidHandle:
		return "gatt: invalid handle"
	case ErrReadNotPermitted:
		return "gatt: read not permitted"
	case ErrWriteNotPermitted:
		return "gatt: write not permitted"
	case ErrInvalidAttrValueLen:
		return "gatt: invalid attribute value length"
	case ErrUnlikely:
		return "gatt: unlikely error"
	case ErrInsufficientResources:
		return "gatt: insufficient resources"
	}
	return fmt.Sprintf("gatt: att error 0x%02x", uint8(e))
}

// Code maps err onto the ATT code a host reports to the peer: 0 for nil,
// the code itself for an ATTError, ErrUnlikely for anything else.
func Code(err error) uint8 {
	if err == nil {
		return 0
	}
	var ae ATTError
	if errors.As(err, &ae) {
		return uint8(ae)
	}
	return uint8(ErrUnlikely)
}

// Op is the kind of access a peer performs.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
	OpWriteNoResponse
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpWriteNoResponse:
		return "write-no-rsp"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// IsWrite reports whether o carries a payload from the peer.
func (o Op) IsWrite() bool { return o == OpWrite || o == OpWriteNoResponse }

// Access is one read or write dispatched by the host. Data holds the write
// payload; reads append to Out.
type Access struct {
	Conn   ConnHandle
	Handle uint16
	Op     Op
	Data   []byte
	Out    *Buffer
}

// Buffer is a bounded output buffer for reads. It never truncates: a write
// that does not fit fails with ErrInsufficientResources.
type Buffer struct {
	b   []byte
	max int
}

// NewBuffer returns an empty buffer accepting up to max bytes.
func NewBuffer(max int) *Buffer {
	return &Buffer{b: make([]byte, 0, max), max: max}
}

func (b *Buffer) Write(p []byte) (int, error) {
	if len(b.b)+len(p) > b.max {
		return 0, ErrInsufficientResources
	}
	b.b = append(b.b, p...)
	return len(p), nil
}

func (b *Buffer) Bytes() []byte { return b.b }
func (b *Buffer) Len() int      { return len(b.b) }
func (b *Buffer) Cap() int      { return b.max }

// ExpectLen rejects payloads that are not exactly n bytes long.
func ExpectLen(data []byte, n int) error {
	if len(data) != n {
		return ErrInvalidAttrValueLen
	}
	return nil
}

// AccessFunc is the callback a host invokes for every read or write.
type AccessFunc func(*Access) error

// Handler is a GATT service unit.
type Handler interface {
	Descriptor() *ServiceDescriptor
	OnAccess(a *Access) error
}

// Subscriber is implemented by services with notify-capable characteristics.
type Subscriber interface {
	OnSubscribe(handle uint16)
	OnUnsubscribe(handle uint16)
}

// ConnectionAware is implemented by services that start or stop work when
// the link comes up or goes down.
type ConnectionAware interface {
	OnConnected(conn ConnHandle)
	OnDisconnected()
}

// Registrar is the host side of service registration.
type Registrar interface {
	// CountConfig reports the table entries s needs and fails if the host
	// cannot hold them.
	CountConfig(s *ServiceDescriptor) (int, error)
	// AddService adds s, assigns every characteristic handle and routes
	// accesses to fn.
	AddService(s *ServiceDescriptor, fn AccessFunc) error
}

// ErrNoMemory is returned by a Notifier that could not allocate a buffer.
var ErrNoMemory = errors.New("gatt: no buffer for notification")

// Notifier is the host's notify primitive.
type Notifier interface {
	Notify(conn ConnHandle, handle uint16, data []byte) error
}
