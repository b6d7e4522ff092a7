package ble

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/discovery"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/gatt/gatttest"
)

// mockHost records controller calls. Events are delivered by the test
// through emit, which calls the installed handler directly.
type mockHost struct {
	*gatttest.Registrar
	*gatttest.Notifier

	mu          sync.Mutex
	calls       []string
	handler     EventHandler
	syncErr     error
	startErr    error
	advActive   bool
	scanActive  bool
	advStarts   []AdvertisingParams
	advStops    int
	name        string
	appearance  uint16
	addr        Address
	conns       map[gatt.ConnHandle]ConnDesc
	security    map[Address]PeerSecurity
	deleted     []Address
	restored    []BondRecord
	restoreErr  error
	terminated  []gatt.ConnHandle
	discoveries []uuid.UUID
}

var _ Host = (*mockHost)(nil)

func newMockHost() *mockHost {
	return &mockHost{
		Registrar: gatttest.NewRegistrar(),
		Notifier:  &gatttest.Notifier{},
		conns:     make(map[gatt.ConnHandle]ConnDesc),
		security:  make(map[Address]PeerSecurity),
	}
}

func (h *mockHost) record(call string) {
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()
}

func (h *mockHost) emit(ev GapEvent) GapResult {
	h.mu.Lock()
	fn := h.handler
	h.mu.Unlock()
	if fn == nil {
		return ResultOK
	}
	return fn(ev)
}

func (h *mockHost) WaitSynced(ctx context.Context) error {
	h.record("sync")
	if h.syncErr != nil {
		return h.syncErr
	}
	return ctx.Err()
}

func (h *mockHost) SetDeviceName(name string) error {
	h.record("name")
	h.name = name
	return nil
}

func (h *mockHost) SetAppearance(a uint16) error {
	h.record("appearance")
	h.appearance = a
	return nil
}

func (h *mockHost) SetRandomAddress(a Address) error {
	h.record("address")
	h.addr = a
	return nil
}

func (h *mockHost) StartGATTServer() error {
	h.record("gatts-start")
	return h.startErr
}

func (h *mockHost) SetEventHandler(fn EventHandler) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

func (h *mockHost) AdvertisingActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.advActive
}

func (h *mockHost) ScanActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scanActive
}

func (h *mockHost) StartAdvertising(p AdvertisingParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advActive = true
	h.advStarts = append(h.advStarts, p)
	return nil
}

func (h *mockHost) StopAdvertising() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advActive = false
	h.advStops++
	return nil
}

// finishAdvertising ends the current run the way the host does when the
// duration elapses.
func (h *mockHost) finishAdvertising() GapResult {
	h.mu.Lock()
	h.advActive = false
	h.mu.Unlock()
	return h.emit(GapEvent{Type: EventAdvComplete})
}

func (h *mockHost) starts() []AdvertisingParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]AdvertisingParams, len(h.advStarts))
	copy(out, h.advStarts)
	return out
}

// connect simulates a peer connecting; advertising stops as it does on a
// real controller.
func (h *mockHost) connect(conn gatt.ConnHandle, desc ConnDesc) GapResult {
	desc.Handle = conn
	h.mu.Lock()
	h.advActive = false
	h.conns[conn] = desc
	h.mu.Unlock()
	return h.emit(GapEvent{Type: EventConnect, Conn: conn})
}

func (h *mockHost) disconnect(conn gatt.ConnHandle) GapResult {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	return h.emit(GapEvent{Type: EventDisconnect, Conn: conn, Reason: 0x13})
}

func (h *mockHost) Disconnect(conn gatt.ConnHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated = append(h.terminated, conn)
	return nil
}

func (h *mockHost) FindConn(conn gatt.ConnHandle) (ConnDesc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.conns[conn]
	if !ok {
		return ConnDesc{}, errors.New("mock: no such connection")
	}
	return d, nil
}

func (h *mockHost) ReadPeerSecurity(peer Address) (PeerSecurity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sec, ok := h.security[peer]
	if !ok {
		return PeerSecurity{}, errors.New("mock: no security record")
	}
	return sec, nil
}

func (h *mockHost) DeletePeer(peer Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, peer)
	delete(h.security, peer)
	return nil
}

func (h *mockHost) RestoreBond(b BondRecord) error {
	h.record("restore-bond")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restored = append(h.restored, b)
	return h.restoreErr
}

// The client role completes immediately with "service not found", so each
// discovery client finishes on its first step.
func (h *mockHost) DiscoverService(conn gatt.ConnHandle, svc uuid.UUID, cb func(start, end uint16, found bool, err error)) error {
	h.mu.Lock()
	h.discoveries = append(h.discoveries, svc)
	h.mu.Unlock()
	cb(0, 0, false, nil)
	return nil
}

func (h *mockHost) DiscoverCharacteristics(gatt.ConnHandle, uint16, uint16, func([]discovery.Characteristic, error)) error {
	return ErrUnsupported
}

func (h *mockHost) DiscoverDescriptors(gatt.ConnHandle, uint16, uint16, func([]discovery.Descriptor, error)) error {
	return ErrUnsupported
}

func (h *mockHost) Read(gatt.ConnHandle, uint16, func([]byte, error)) error {
	return ErrUnsupported
}

func (h *mockHost) Write(gatt.ConnHandle, uint16, []byte, func(error)) error {
	return ErrUnsupported
}
