package services

import (
	"log/slog"
	"sync"

	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// Battery is the Battery Service (0x180F) with its Battery Level
// characteristic (0x2A19).
type Battery struct {
	level *gatt.Characteristic
	desc  *gatt.ServiceDescriptor
	ch    *gatt.Channel

	mu      sync.Mutex
	percent uint8
}

// NewBattery returns the battery service reporting 100% until told otherwise.
func NewBattery(n gatt.Notifier, conn gatt.ConnView) *Battery {
	b := &Battery{
		level:   gatt.NewCharacteristic(gatt.UUID16(0x2A19), gatt.PermRead|gatt.PermNotify),
		percent: 100,
	}
	b.desc = gatt.NewService(gatt.UUID16(0x180F), b.level)
	b.ch = gatt.NewChannel(n, conn, b.level)
	return b
}

func (b *Battery) Descriptor() *gatt.ServiceDescriptor { return b.desc }

func (b *Battery) OnAccess(a *gatt.Access) error {
	if a.Op != gatt.OpRead {
		return gatt.ErrWriteNotPermitted
	}
	_, err := a.Out.Write([]byte{b.Level()})
	return err
}

func (b *Battery) OnSubscribe(h uint16) {
	if h != b.level.Handle() {
		return
	}
	b.ch.SetEnabled(true)
	b.push()
}

func (b *Battery) OnUnsubscribe(h uint16) {
	if h == b.level.Handle() {
		b.ch.SetEnabled(false)
	}
}

// OnDisconnected drops the subscription; the peer re-subscribes on its next
// connection.
func (b *Battery) OnDisconnected() { b.ch.SetEnabled(false) }

func (b *Battery) OnConnected(gatt.ConnHandle) {}

// Level returns the last reported percentage.
func (b *Battery) Level() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.percent
}

// NotifyBatteryLevel stores level, capped at 100, and notifies a subscribed
// peer.
func (b *Battery) NotifyBatteryLevel(level uint8) {
	if level > 100 {
		level = 100
	}
	b.mu.Lock()
	b.percent = level
	b.mu.Unlock()
	b.push()
}

func (b *Battery) push() {
	if _, err := b.ch.Push([]byte{b.Level()}); err != nil {
		slog.Debug("[GATT] battery notify skipped", "error", err)
	}
}
