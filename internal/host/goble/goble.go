//go:build linux

// Package goble runs the protocol layer on a raw HCI socket through
// github.com/go-ble/ble, for Linux dongles outside BlueZ's control.
//
// go-ble serves reads and writes through handlers, so values stay live,
// and reports subscriptions through a notify handler that lives as long as
// the CCCD is set. It keeps no bonds and the peripheral build has no client
// role, so those operations return ble.ErrUnsupported.
package goble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/evt"
	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/ble"
	"github.com/chaz8081/praxiom-core/internal/discovery"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/host"
)

// Host adapts a go-ble linux.Device.
type Host struct {
	*host.Pump
	devID int
	dev   *linux.Device
	table *host.Table

	mu        sync.Mutex
	name      string
	conn      gatt.ConnHandle
	peer      goble.Conn
	notifiers map[uint16]goble.Notifier
	advCancel context.CancelFunc
}

var _ ble.Host = (*Host)(nil)

// New prepares a host for hciN. The device opens in WaitSynced.
func New(devID int) *Host {
	return &Host{
		Pump:      host.NewPump(host.DefaultPumpSize),
		devID:     devID,
		table:     host.NewTable(0),
		conn:      gatt.ConnNone,
		notifiers: make(map[uint16]goble.Notifier),
	}
}

func (h *Host) WaitSynced(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := linux.NewDevice(
		goble.OptDeviceID(h.devID),
		goble.OptConnectHandler(h.onConnect),
		goble.OptDisconnectHandler(h.onDisconnect),
	)
	if err != nil {
		return fmt.Errorf("goble: open hci%d: %w", h.devID, err)
	}
	h.dev = dev
	return nil
}

func (h *Host) onConnect(e evt.LEConnectionComplete) {
	if e.Status() != 0 {
		h.Emit(ble.GapEvent{Type: ble.EventConnect, Conn: gatt.ConnNone, Status: int(e.Status())})
		return
	}
	conn := gatt.ConnHandle(e.ConnectionHandle())
	h.mu.Lock()
	h.stopAdvLocked()
	h.conn = conn
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventConnect, Conn: conn})
}

func (h *Host) onDisconnect(e evt.DisconnectionComplete) {
	conn := gatt.ConnHandle(e.ConnectionHandle())
	h.mu.Lock()
	if h.conn != conn {
		h.mu.Unlock()
		return
	}
	h.conn = gatt.ConnNone
	h.peer = nil
	for k := range h.notifiers {
		delete(h.notifiers, k)
	}
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventDisconnect, Conn: conn, Reason: int(e.Reason())})
}

func (h *Host) SetDeviceName(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.name = name
	return nil
}

// SetAppearance is ignored; go-ble builds its own GAP service.
func (h *Host) SetAppearance(uint16) error { return nil }

// SetRandomAddress is ignored; the adapter keeps its public address.
func (h *Host) SetRandomAddress(a ble.Address) error {
	slog.Debug("[BLE] goble: adapter keeps its own address", "derived", a)
	return nil
}

func (h *Host) CountConfig(desc *gatt.ServiceDescriptor) (int, error) {
	return h.table.Count(desc)
}

func toUUID(u uuid.UUID) (goble.UUID, error) {
	return goble.Parse(u.String())
}

func (h *Host) AddService(desc *gatt.ServiceDescriptor, fn gatt.AccessFunc) error {
	if h.dev == nil {
		return fmt.Errorf("goble: device not open")
	}
	attrs, err := h.table.Add(desc, fn)
	if err != nil {
		return err
	}
	su, err := toUUID(desc.UUID())
	if err != nil {
		return fmt.Errorf("goble: service uuid: %w", err)
	}
	svc := goble.NewService(su)
	for _, a := range attrs {
		cu, err := toUUID(a.Char.UUID())
		if err != nil {
			return fmt.Errorf("goble: characteristic uuid: %w", err)
		}
		c := goble.NewCharacteristic(cu)
		handle := a.Char.Handle()
		perms := a.Char.Permissions()
		if perms.Has(gatt.PermRead) {
			c.HandleRead(goble.ReadHandlerFunc(func(req goble.Request, rsp goble.ResponseWriter) {
				h.onRead(handle, req, rsp)
			}))
		}
		if perms.Has(gatt.PermWrite) || perms.Has(gatt.PermWriteNoResponse) {
			op := gatt.OpWriteNoResponse
			if perms.Has(gatt.PermWrite) {
				op = gatt.OpWrite
			}
			c.HandleWrite(goble.WriteHandlerFunc(func(req goble.Request, rsp goble.ResponseWriter) {
				h.onWrite(handle, op, req, rsp)
			}))
		}
		if perms.Has(gatt.PermNotify) {
			c.HandleNotify(goble.NotifyHandlerFunc(func(req goble.Request, n goble.Notifier) {
				h.onSubscribe(handle, req, n)
			}))
		}
		svc.AddCharacteristic(c)
	}
	if err := h.dev.AddService(svc); err != nil {
		return fmt.Errorf("goble: add service %s: %w", desc.UUID(), err)
	}
	return nil
}

func (h *Host) track(req goble.Request) gatt.ConnHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peer = req.Conn()
	return h.conn
}

func (h *Host) onRead(handle uint16, req goble.Request, rsp goble.ResponseWriter) {
	data, err := h.table.Read(h.track(req), handle)
	if err != nil {
		rsp.SetStatus(goble.ATTError(gatt.Code(err)))
		return
	}
	if _, err := rsp.Write(data); err != nil {
		slog.Debug("[BLE] goble: read response", "handle", handle, "error", err)
	}
}

func (h *Host) onWrite(handle uint16, op gatt.Op, req goble.Request, rsp goble.ResponseWriter) {
	data := append([]byte(nil), req.Data()...)
	if err := h.table.Write(h.track(req), handle, op, data); err != nil {
		rsp.SetStatus(goble.ATTError(gatt.Code(err)))
	}
}

// onSubscribe holds the notifier until the peer clears the CCCD or drops.
func (h *Host) onSubscribe(handle uint16, req goble.Request, n goble.Notifier) {
	conn := h.track(req)
	h.mu.Lock()
	h.notifiers[handle] = n
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventSubscribe, Conn: conn, AttrHandle: handle, CurNotify: true})

	<-n.Context().Done()

	h.mu.Lock()
	if h.notifiers[handle] == n {
		delete(h.notifiers, handle)
	}
	live := h.conn == conn
	h.mu.Unlock()
	if live {
		h.Emit(ble.GapEvent{Type: ble.EventSubscribe, Conn: conn, AttrHandle: handle, PrevNotify: true})
	}
}

// StartGATTServer is a no-op: go-ble serves services as they are added.
func (h *Host) StartGATTServer() error { return nil }

func (h *Host) SetEventHandler(fn ble.EventHandler) { h.Pump.SetHandler(fn) }

func (h *Host) Notify(conn gatt.ConnHandle, handle uint16, data []byte) error {
	h.mu.Lock()
	n, ok := h.notifiers[handle]
	live := h.conn == conn && conn.Valid()
	h.mu.Unlock()
	if !live {
		return fmt.Errorf("goble: notify on stale connection %d", conn)
	}
	if !ok {
		return fmt.Errorf("goble: handle %d not subscribed", handle)
	}
	if _, err := n.Write(data); err != nil {
		return fmt.Errorf("goble: notify handle %d: %w", handle, err)
	}
	h.Emit(ble.GapEvent{Type: ble.EventNotifyTx, Conn: conn, AttrHandle: handle})
	return nil
}

func (h *Host) AdvertisingActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.advCancel != nil
}

func (h *Host) ScanActive() bool { return false }

// StartAdvertising runs one advertising window in the background. go-ble
// picks its own interval, so only the duration is honoured.
func (h *Host) StartAdvertising(p ble.AdvertisingParams) error {
	if h.dev == nil {
		return fmt.Errorf("goble: device not open")
	}
	var uuids []goble.UUID
	if p.ServiceUUID != uuid.Nil {
		u, err := toUUID(p.ServiceUUID)
		if err != nil {
			return fmt.Errorf("goble: advertised uuid: %w", err)
		}
		uuids = append(uuids, u)
	}

	h.mu.Lock()
	if h.advCancel != nil {
		h.mu.Unlock()
		return fmt.Errorf("goble: already advertising")
	}
	ctx, cancel := context.WithTimeout(context.Background(), advWindow(p.Duration))
	h.advCancel = cancel
	h.mu.Unlock()

	go func() {
		err := h.dev.AdvertiseNameAndServices(ctx, p.Name, uuids...)
		h.mu.Lock()
		// Only a run that timed out still owns advCancel.
		owned := errors.Is(ctx.Err(), context.DeadlineExceeded)
		if owned {
			h.advCancel = nil
		}
		h.mu.Unlock()
		cancel()
		switch {
		case owned:
			h.Emit(ble.GapEvent{Type: ble.EventAdvComplete})
		case err != nil && !errors.Is(err, context.Canceled):
			slog.Warn("[BLE] goble: advertising stopped", "error", err)
		}
	}()
	return nil
}

func advWindow(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (h *Host) StopAdvertising() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopAdvLocked()
	return nil
}

func (h *Host) stopAdvLocked() {
	if h.advCancel == nil {
		return
	}
	h.advCancel()
	h.advCancel = nil
}

func (h *Host) Disconnect(conn gatt.ConnHandle) error {
	h.mu.Lock()
	peer := h.peer
	live := h.conn == conn && conn.Valid()
	h.mu.Unlock()
	if !live {
		return fmt.Errorf("goble: no connection %d", conn)
	}
	if peer == nil {
		return fmt.Errorf("goble: connection %d not yet seen by the server: %w", conn, ble.ErrUnsupported)
	}
	if err := peer.Close(); err != nil {
		return fmt.Errorf("goble: disconnect: %w", err)
	}
	return nil
}

func (h *Host) FindConn(conn gatt.ConnHandle) (ble.ConnDesc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != conn || !conn.Valid() {
		return ble.ConnDesc{}, fmt.Errorf("goble: no connection %d", conn)
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

// Close releases the HCI socket.
func (h *Host) Close() error {
	if h.dev == nil {
		return nil
	}
	if err := h.dev.Stop(); err != nil {
		return fmt.Errorf("goble: stop device: %w", err)
	}
	return nil
}
