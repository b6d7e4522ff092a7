//go:build linux || tinygo

// Package tinygo runs the protocol layer on tinygo.org/x/bluetooth: the
// SoftDevice on the watch, BlueZ on a Linux desktop.
//
// The library exposes less of the stack than the controller can use. It
// reports connections but not CCCD writes, so every notify characteristic
// is treated as subscribed once a peer connects. It has no bonding API and
// no client role in the peripheral build, so the security and discovery
// operations return ble.ErrUnsupported and the controller degrades to an
// unbonded link without discovery.
package tinygo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/praxiom-core/internal/ble"
	"github.com/chaz8081/praxiom-core/internal/discovery"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/host"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

type charEntry struct {
	handle bluetooth.Characteristic
	attr   *host.Attr
}

// Host adapts a bluetooth.Adapter.
type Host struct {
	*host.Pump
	adapter *bluetooth.Adapter
	table   *host.Table
	timers  swtimer.Factory

	mu       sync.Mutex
	chars    map[uint16]*charEntry
	name     string
	adv      *bluetooth.Advertisement
	advTimer swtimer.Timer
	conn     gatt.ConnHandle
	device   bluetooth.Device
	nextConn gatt.ConnHandle
}

var _ ble.Host = (*Host)(nil)

// New wraps the default adapter.
func New(timers swtimer.Factory) *Host {
	if timers == nil {
		timers = swtimer.Real
	}
	return &Host{
		Pump:     host.NewPump(host.DefaultPumpSize),
		adapter:  bluetooth.DefaultAdapter,
		table:    host.NewTable(0),
		timers:   timers,
		chars:    make(map[uint16]*charEntry),
		conn:     gatt.ConnNone,
		nextConn: 1,
	}
}

// WaitSynced enables the stack. Enable returns once the controller is up.
func (h *Host) WaitSynced(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.adapter.Enable(); err != nil {
		return fmt.Errorf("tinygo: enable adapter: %w", err)
	}
	h.adapter.SetConnectHandler(h.onConnect)
	return nil
}

func (h *Host) onConnect(device bluetooth.Device, connected bool) {
	h.mu.Lock()
	if connected {
		h.stopAdvLocked()
		conn := h.nextConn
		h.nextConn++
		h.conn = conn
		h.device = device
		h.mu.Unlock()
		slog.Info("[BLE] tinygo: connected", "peer", device.Address.String())
		h.Emit(ble.GapEvent{Type: ble.EventConnect, Conn: conn})
		// No CCCD events from the library: subscribe every notify value.
		for _, a := range h.table.Attrs() {
			if a.CCCD != 0 {
				h.Emit(ble.GapEvent{Type: ble.EventSubscribe, Conn: conn, AttrHandle: a.Char.Handle(), CurNotify: true})
			}
		}
		return
	}
	conn := h.conn
	h.conn = gatt.ConnNone
	h.mu.Unlock()
	if conn.Valid() {
		h.Emit(ble.GapEvent{Type: ble.EventDisconnect, Conn: conn})
	}
}

func (h *Host) SetDeviceName(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.name = name
	return nil
}

// SetAppearance is accepted and ignored; the library sets no GAP
// appearance.
func (h *Host) SetAppearance(uint16) error { return nil }

// SetRandomAddress is accepted and ignored; the controller keeps its own
// static address.
func (h *Host) SetRandomAddress(a ble.Address) error {
	slog.Debug("[BLE] tinygo: controller keeps its own address", "derived", a)
	return nil
}

func (h *Host) CountConfig(desc *gatt.ServiceDescriptor) (int, error) {
	return h.table.Count(desc)
}

func toUUID(u uuid.UUID) (bluetooth.UUID, error) {
	return bluetooth.ParseUUID(u.String())
}

func flags(p gatt.Permission) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if p.Has(gatt.PermRead) {
		f |= bluetooth.CharacteristicReadPermission
	}
	if p.Has(gatt.PermWrite) {
		f |= bluetooth.CharacteristicWritePermission
	}
	if p.Has(gatt.PermWriteNoResponse) {
		f |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if p.Has(gatt.PermNotify) {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	return f
}

// AddService registers desc. Readable values are snapshotted at
// registration and refreshed on every notification, since the library
// serves reads from a stored value.
func (h *Host) AddService(desc *gatt.ServiceDescriptor, fn gatt.AccessFunc) error {
	attrs, err := h.table.Add(desc, fn)
	if err != nil {
		return err
	}
	svcUUID, err := toUUID(desc.UUID())
	if err != nil {
		return fmt.Errorf("tinygo: service uuid: %w", err)
	}
	svc := &bluetooth.Service{UUID: svcUUID}
	var entries []*charEntry
	for _, a := range attrs {
		cu, err := toUUID(a.Char.UUID())
		if err != nil {
			return fmt.Errorf("tinygo: characteristic uuid: %w", err)
		}
		e := &charEntry{attr: a}
		entries = append(entries, e)
		handle := a.Char.Handle()
		value := initialValue(h.table, a)
		svc.Characteristics = append(svc.Characteristics, bluetooth.CharacteristicConfig{
			Handle: &e.handle,
			UUID:   cu,
			Value:  value,
			Flags:  flags(a.Char.Permissions()),
			WriteEvent: func(_ bluetooth.Connection, offset int, value []byte) {
				h.onWrite(handle, offset, value)
			},
		})
	}
	if err := h.adapter.AddService(svc); err != nil {
		return fmt.Errorf("tinygo: add service %s: %w", desc.UUID(), err)
	}
	h.mu.Lock()
	for _, e := range entries {
		h.chars[e.attr.Char.Handle()] = e
	}
	h.mu.Unlock()
	return nil
}

func (h *Host) onWrite(handle uint16, offset int, value []byte) {
	if offset != 0 {
		slog.Debug("[BLE] tinygo: long write ignored", "handle", handle, "offset", offset)
		return
	}
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	op := gatt.OpWrite
	if a, ok := h.table.Lookup(handle); ok && !a.Char.Permissions().Has(gatt.PermWrite) {
		op = gatt.OpWriteNoResponse
	}
	if err := h.table.Write(conn, handle, op, append([]byte(nil), value...)); err != nil {
		slog.Debug("[BLE] tinygo: write rejected", "handle", handle, "error", err)
	}
}

// StartGATTServer is a no-op: services go live as they are added.
func (h *Host) StartGATTServer() error { return nil }

func (h *Host) SetEventHandler(fn ble.EventHandler) { h.Pump.SetHandler(fn) }

func (h *Host) Notify(conn gatt.ConnHandle, handle uint16, data []byte) error {
	h.mu.Lock()
	e, ok := h.chars[handle]
	live := h.conn == conn && conn.Valid()
	h.mu.Unlock()
	if !ok {
		return gatt.ErrInvalidHandle
	}
	if !live {
		return fmt.Errorf("tinygo: notify on stale connection %d", conn)
	}
	if _, err := e.handle.Write(data); err != nil {
		return fmt.Errorf("tinygo: notify handle %d: %w", handle, err)
	}
	h.Emit(ble.GapEvent{Type: ble.EventNotifyTx, Conn: conn, AttrHandle: handle})
	return nil
}

func (h *Host) AdvertisingActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.adv != nil
}

// ScanActive is always false; the peripheral never scans.
func (h *Host) ScanActive() bool { return false }

func (h *Host) StartAdvertising(p ble.AdvertisingParams) error {
	opts := bluetooth.AdvertisementOptions{
		LocalName: p.Name,
		Interval:  bluetooth.NewDuration(minInterval(p.Interval)),
	}
	if p.ServiceUUID != uuid.Nil {
		u, err := toUUID(p.ServiceUUID)
		if err != nil {
			return fmt.Errorf("tinygo: advertised uuid: %w", err)
		}
		opts.ServiceUUIDs = []bluetooth.UUID{u}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.adv != nil {
		return fmt.Errorf("tinygo: already advertising")
	}
	adv := h.adapter.DefaultAdvertisement()
	if err := adv.Configure(opts); err != nil {
		return fmt.Errorf("tinygo: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("tinygo: start advertisement: %w", err)
	}
	h.adv = adv
	h.advTimer = h.timers.AfterFunc(p.Duration, func() { h.advTimeout(adv) })
	return nil
}

func (h *Host) advTimeout(adv *bluetooth.Advertisement) {
	h.mu.Lock()
	if h.adv != adv {
		h.mu.Unlock()
		return
	}
	h.stopAdvLocked()
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventAdvComplete})
}

func (h *Host) StopAdvertising() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopAdvLocked()
	return nil
}

func (h *Host) stopAdvLocked() {
	if h.adv == nil {
		return
	}
	if err := h.adv.Stop(); err != nil {
		slog.Debug("[BLE] tinygo: stop advertisement", "error", err)
	}
	if h.advTimer != nil {
		h.advTimer.Stop()
	}
	h.adv = nil
}

func (h *Host) Disconnect(conn gatt.ConnHandle) error {
	h.mu.Lock()
	if h.conn != conn || !conn.Valid() {
		h.mu.Unlock()
		return fmt.Errorf("tinygo: no connection %d", conn)
	}
	dev := h.device
	h.mu.Unlock()
	if err := dev.Disconnect(); err != nil {
		return fmt.Errorf("tinygo: disconnect: %w", err)
	}
	return nil
}

func (h *Host) FindConn(conn gatt.ConnHandle) (ble.ConnDesc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != conn || !conn.Valid() {
		return ble.ConnDesc{}, fmt.Errorf("tinygo: no connection %d", conn)
	}
	return ble.ConnDesc{Handle: conn}, nil
}

func (h *Host) ReadPeerSecurity(ble.Address) (ble.PeerSecurity, error) {
	return ble.PeerSecurity{}, ble.ErrUnsupported
}

func (h *Host) DeletePeer(ble.Address) error { return ble.ErrUnsupported }

func (h *Host) RestoreBond(ble.BondRecord) error { return ble.ErrUnsupported }

func (h *Host) DiscoverService(gatt.ConnHandle, uuid.UUID, func(uint16, uint16, bool, error)) error {
	return ble.ErrUnsupported
}

func (h *Host) DiscoverCharacteristics(gatt.ConnHandle, uint16, uint16, func([]discovery.Characteristic, error)) error {
	return ble.ErrUnsupported
}

func (h *Host) DiscoverDescriptors(gatt.ConnHandle, uint16, uint16, func([]discovery.Descriptor, error)) error {
	return ble.ErrUnsupported
}

func (h *Host) Read(gatt.ConnHandle, uint16, func([]byte, error)) error {
	return ble.ErrUnsupported
}

func (h *Host) Write(gatt.ConnHandle, uint16, []byte, func(error)) error {
	return ble.ErrUnsupported
}
