// Package ble is the watch's BLE protocol layer. The Controller owns the
// peripheral role on top of a Host (the BLE stack): it registers the GATT
// services, advertises with a fast-then-slow interval policy, reacts to GAP
// events, persists the bond and kicks off service discovery. Everything it
// learns about the link reaches the system task as a message.
package ble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/discovery"
	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// ErrFatal marks errors after which the firmware cannot continue. Callers
// halt: the firmware panics into a watchdog reset, the simulator exits.
var ErrFatal = errors.New("ble: fatal")

// ErrUnsupported is returned by hosts for operations their stack lacks.
var ErrUnsupported = errors.New("ble: operation not supported by host")

// Address is a 48-bit device address, most significant byte first.
type Address [6]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// BondRecord is the persisted identity of the bonded peer: its identity
// resolving key.
type BondRecord [16]byte

// IsZero reports whether no peer is recorded.
func (b BondRecord) IsZero() bool { return b == BondRecord{} }

// ConnDesc describes a live connection.
type ConnDesc struct {
	Handle    gatt.ConnHandle
	Bonded    bool
	Encrypted bool
	OurID     Address
	PeerID    Address
}

// PeerSecurity is the host's security record for a peer.
type PeerSecurity struct {
	LTKPresent bool
	IRK        [16]byte
}

// EventType enumerates GAP and GATT events delivered by the host.
type EventType uint8

const (
	EventConnect EventType = iota
	EventDisconnect
	EventConnUpdate
	EventAdvComplete
	EventEncChange
	EventRepeatPairing
	EventNotifyTx
	EventSubscribe
	EventMTU
	EventDiscoveryComplete
	EventNotifyRx
	EventPasskeyAction
)

var eventNames = [...]string{
	EventConnect:           "connect",
	EventDisconnect:        "disconnect",
	EventConnUpdate:        "conn-update",
	EventAdvComplete:       "adv-complete",
	EventEncChange:         "enc-change",
	EventRepeatPairing:     "repeat-pairing",
	EventNotifyTx:          "notify-tx",
	EventSubscribe:         "subscribe",
	EventMTU:               "mtu",
	EventDiscoveryComplete: "discovery-complete",
	EventNotifyRx:          "notify-rx",
	EventPasskeyAction:     "passkey-action",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return fmt.Sprintf("EventType(%d)", uint8(t))
}

// GapEvent is one event from the host. Status is zero on success. The
// remaining fields are set per type: AttrHandle and the notify flags for
// EventSubscribe, AttrHandle and Data for EventNotifyRx, MTU for EventMTU,
// Reason for EventDisconnect.
type GapEvent struct {
	Type       EventType
	Conn       gatt.ConnHandle
	Status     int
	Reason     int
	AttrHandle uint16
	CurNotify  bool
	PrevNotify bool
	MTU        uint16
	Data       []byte
}

// GapResult is the controller's answer to an event.
type GapResult uint8

const (
	ResultOK GapResult = iota
	// ResultRepeatPairingRetry tells the host to retry pairing after the
	// old bond was deleted.
	ResultRepeatPairingRetry
)

// EventHandler receives host events.
type EventHandler func(GapEvent) GapResult

// Advertising data flags.
const (
	FlagGeneralDiscoverable uint8 = 0x02
	FlagBREDRUnsupported    uint8 = 0x04
)

// IntervalPair is an advertising interval range in 0.625 ms units.
type IntervalPair struct {
	Min, Max uint16
}

const intervalUnit = 625 * time.Microsecond

// Durations converts the pair to wall-clock durations.
func (p IntervalPair) Durations() (time.Duration, time.Duration) {
	return time.Duration(p.Min) * intervalUnit, time.Duration(p.Max) * intervalUnit
}

// AdvertisingParams describes one advertising run: undirected, connectable,
// general discoverable.
type AdvertisingParams struct {
	Interval IntervalPair
	// Duration bounds the run; the host emits EventAdvComplete at the end.
	Duration    time.Duration
	Flags       uint8
	ServiceUUID uuid.UUID
	TxPowerAuto bool
	// Name goes into the scan response.
	Name string
}

// Host is the BLE stack seen by the controller. Hosts deliver events on
// their own task and never call the handler synchronously from inside one
// of these methods.
type Host interface {
	gatt.Registrar
	gatt.Notifier
	discovery.GATTClient

	// WaitSynced blocks until the stack is ready or ctx ends.
	WaitSynced(ctx context.Context) error
	SetDeviceName(name string) error
	SetAppearance(appearance uint16) error
	SetRandomAddress(addr Address) error
	StartGATTServer() error
	SetEventHandler(h EventHandler)

	AdvertisingActive() bool
	ScanActive() bool
	StartAdvertising(p AdvertisingParams) error
	StopAdvertising() error
	Disconnect(conn gatt.ConnHandle) error

	FindConn(conn gatt.ConnHandle) (ConnDesc, error)
	ReadPeerSecurity(peer Address) (PeerSecurity, error)
	DeletePeer(peer Address) error
	RestoreBond(b BondRecord) error
}
