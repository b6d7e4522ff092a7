// Package sim is an in-memory BLE host. It keeps a real attribute table,
// tracks advertising runs, a single connection and a bond store, and plays
// the phone's side of the link: connecting, pairing, subscribing, reading
// and writing characteristics, and exposing its own services to the
// watch's client role. Air-side events and client callbacks are queued on
// the host's pump and delivered by Run or Drain.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/ble"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/host"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

var (
	ErrNotConnected     = errors.New("sim: not connected")
	ErrAlreadyConnected = errors.New("sim: already connected")
	ErrAdvertising      = errors.New("sim: already advertising")
	ErrServerStarted    = errors.New("sim: gatt server already started")
	ErrUnknownChar      = errors.New("sim: unknown characteristic")
)

// Disconnect reasons, as HCI error codes.
const (
	ReasonRemoteUser = 0x13
	ReasonLocalHost  = 0x16
)

// Options configures the host.
type Options struct {
	// TableLimit caps the attribute table; 0 means unlimited.
	TableLimit int
	PumpSize   int
	Timers     swtimer.Factory
}

// Notification is one notification sent to the peer.
type Notification struct {
	Conn   gatt.ConnHandle
	Handle uint16
	Data   []byte
}

type advRun struct {
	params ble.AdvertisingParams
	timer  swtimer.Timer
}

type link struct {
	desc ble.ConnDesc
	peer *peerDB
}

// Host is the simulated stack.
type Host struct {
	*host.Pump
	table  *host.Table
	timers swtimer.Factory

	mu         sync.Mutex
	name       string
	appearance uint16
	addr       ble.Address
	started    bool
	adv        *advRun
	advRuns    []ble.AdvertisingParams
	scanning   bool
	conn       *link
	nextConn   gatt.ConnHandle
	bonds      map[ble.Address]ble.PeerSecurity
	restored   []ble.BondRecord
	sent       []Notification
	cccd       map[uint16]bool
	notifyErr  error
}

var _ ble.Host = (*Host)(nil)

// New returns a host with no connection.
func New(opts Options) *Host {
	if opts.Timers == nil {
		opts.Timers = swtimer.Real
	}
	return &Host{
		Pump:     host.NewPump(opts.PumpSize),
		table:    host.NewTable(opts.TableLimit),
		timers:   opts.Timers,
		nextConn: 1,
		bonds:    make(map[ble.Address]ble.PeerSecurity),
		cccd:     make(map[uint16]bool),
	}
}

// Table exposes the attribute table.
func (h *Host) Table() *host.Table { return h.table }

func (h *Host) WaitSynced(ctx context.Context) error { return ctx.Err() }

func (h *Host) SetDeviceName(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.name = name
	return nil
}

func (h *Host) SetAppearance(a uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appearance = a
	return nil
}

func (h *Host) SetRandomAddress(a ble.Address) error {
	if a[0]&0xC0 != 0xC0 {
		return fmt.Errorf("sim: %s is not a static random address", a)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addr = a
	return nil
}

func (h *Host) CountConfig(desc *gatt.ServiceDescriptor) (int, error) {
	return h.table.Count(desc)
}

func (h *Host) AddService(desc *gatt.ServiceDescriptor, fn gatt.AccessFunc) error {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if started {
		return ErrServerStarted
	}
	_, err := h.table.Add(desc, fn)
	return err
}

func (h *Host) StartGATTServer() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
	return nil
}

func (h *Host) SetEventHandler(fn ble.EventHandler) { h.Pump.SetHandler(fn) }

// Identity returns the GAP name, appearance and address the controller set.
func (h *Host) Identity() (string, uint16, ble.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name, h.appearance, h.addr
}

// Started reports whether the GATT server is running.
func (h *Host) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Notify sends a notification to the connected peer.
func (h *Host) Notify(conn gatt.ConnHandle, handle uint16, data []byte) error {
	h.mu.Lock()
	if h.notifyErr != nil {
		err := h.notifyErr
		h.mu.Unlock()
		return err
	}
	if h.conn == nil || h.conn.desc.Handle != conn {
		h.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := h.table.Lookup(handle); !ok {
		h.mu.Unlock()
		return gatt.ErrInvalidHandle
	}
	h.sent = append(h.sent, Notification{Conn: conn, Handle: handle, Data: append([]byte(nil), data...)})
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventNotifyTx, Conn: conn, AttrHandle: handle})
	return nil
}

// FailNotifications makes Notify return err until called with nil.
func (h *Host) FailNotifications(err error) {
	h.mu.Lock()
	h.notifyErr = err
	h.mu.Unlock()
}

// Notifications returns everything sent to peers so far.
func (h *Host) Notifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.sent))
	copy(out, h.sent)
	return out
}

// NotificationsFor returns the payloads sent on the characteristic u.
func (h *Host) NotificationsFor(u uuid.UUID) [][]byte {
	a, ok := h.table.Find(u)
	if !ok {
		return nil
	}
	var out [][]byte
	for _, n := range h.Notifications() {
		if n.Handle == a.Char.Handle() {
			out = append(out, n.Data)
		}
	}
	return out
}

func (h *Host) AdvertisingActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.adv != nil
}

func (h *Host) ScanActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scanning
}

// SetScanning marks a scan as running.
func (h *Host) SetScanning(on bool) {
	h.mu.Lock()
	h.scanning = on
	h.mu.Unlock()
}

// StartAdvertising begins a run that ends after p.Duration with
// EventAdvComplete.
func (h *Host) StartAdvertising(p ble.AdvertisingParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		return ErrAlreadyConnected
	}
	if h.adv != nil {
		return ErrAdvertising
	}
	run := &advRun{params: p}
	run.timer = h.timers.AfterFunc(p.Duration, func() { h.advTimeout(run) })
	h.adv = run
	h.advRuns = append(h.advRuns, p)
	return nil
}

func (h *Host) advTimeout(run *advRun) {
	h.mu.Lock()
	if h.adv != run {
		h.mu.Unlock()
		return
	}
	h.adv = nil
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
	if h.adv != nil {
		h.adv.timer.Stop()
		h.adv = nil
	}
}

// AdvertisingRuns returns the parameters of every run started so far.
func (h *Host) AdvertisingRuns() []ble.AdvertisingParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ble.AdvertisingParams, len(h.advRuns))
	copy(out, h.advRuns)
	return out
}

// Conn returns the current connection handle, or gatt.ConnNone.
func (h *Host) Conn() gatt.ConnHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return gatt.ConnNone
	}
	return h.conn.desc.Handle
}

func (h *Host) FindConn(conn gatt.ConnHandle) (ble.ConnDesc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil || h.conn.desc.Handle != conn {
		return ble.ConnDesc{}, ErrNotConnected
	}
	return h.conn.desc, nil
}

// Disconnect terminates the link from the watch's side.
func (h *Host) Disconnect(conn gatt.ConnHandle) error {
	return h.drop(conn, ReasonLocalHost)
}

func (h *Host) drop(conn gatt.ConnHandle, reason int) error {
	h.mu.Lock()
	if h.conn == nil || h.conn.desc.Handle != conn {
		h.mu.Unlock()
		return ErrNotConnected
	}
	h.conn = nil
	clear(h.cccd)
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventDisconnect, Conn: conn, Reason: reason})
	return nil
}

func (h *Host) ReadPeerSecurity(peer ble.Address) (ble.PeerSecurity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sec, ok := h.bonds[peer]
	if !ok {
		return ble.PeerSecurity{}, fmt.Errorf("sim: no security record for %s", peer)
	}
	return sec, nil
}

func (h *Host) DeletePeer(peer ble.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.bonds, peer)
	if h.conn != nil && h.conn.desc.PeerID == peer {
		h.conn.desc.Bonded = false
	}
	return nil
}

// RestoreBond records the bond the controller handed back at boot.
func (h *Host) RestoreBond(b ble.BondRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restored = append(h.restored, b)
	return nil
}

// Restored returns the bonds restored so far.
func (h *Host) Restored() []ble.BondRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ble.BondRecord, len(h.restored))
	copy(out, h.restored)
	return out
}

// Bonded reports whether peer has a security record.
func (h *Host) Bonded(peer ble.Address) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.bonds[peer]
	return ok
}

func (h *Host) logf(msg string, args ...any) {
	slog.Debug("[SIM] "+msg, args...)
}
