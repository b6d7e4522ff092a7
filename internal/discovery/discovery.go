// Package discovery runs the watch's GATT client role. After a connection
// settles, Discovery walks its clients one at a time; each client looks up
// one service on the phone and does its work (read the time, subscribe to
// alerts), then reports done.
package discovery

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// CCCDUUID is the Client Characteristic Configuration descriptor.
var CCCDUUID = gatt.UUID16(0x2902)

// Characteristic is a characteristic found on the peer.
type Characteristic struct {
	UUID        uuid.UUID
	DefHandle   uint16
	ValueHandle uint16
	Properties  uint8
}

// Descriptor is a descriptor found on the peer.
type Descriptor struct {
	UUID   uuid.UUID
	Handle uint16
}

// GATTClient is the host's client-role primitive set. Every call returns
// immediately; the callback runs later on the host's task, exactly once.
type GATTClient interface {
	// DiscoverService finds the handle range of the first primary service
	// with the given UUID. found is false when the peer lacks it.
	DiscoverService(conn gatt.ConnHandle, svc uuid.UUID, cb func(start, end uint16, found bool, err error)) error
	DiscoverCharacteristics(conn gatt.ConnHandle, start, end uint16, cb func(chars []Characteristic, err error)) error
	DiscoverDescriptors(conn gatt.ConnHandle, valueHandle, end uint16, cb func(descs []Descriptor, err error)) error
	Read(conn gatt.ConnHandle, handle uint16, cb func(data []byte, err error)) error
	Write(conn gatt.ConnHandle, handle uint16, data []byte, cb func(err error)) error
}

// Client is one client-role unit.
type Client interface {
	Name() string
	// Discover runs the client's pass and calls done exactly once when it
	// finishes, successfully or not.
	Discover(conn gatt.ConnHandle, c GATTClient, done func())
	// OnNotification consumes a peer notification and reports whether it
	// owned the handle.
	OnNotification(conn gatt.ConnHandle, handle uint16, data []byte) bool
	// Reset forgets every discovered handle.
	Reset()
}

// Discovery sequences the clients.
type Discovery struct {
	gattc   GATTClient
	clients []Client

	mu         sync.Mutex
	onComplete func()
	conn       gatt.ConnHandle
	index      int
	running    bool
	generation uint32
}

// New returns a discovery unit running clients in order.
func New(gattc GATTClient, clients ...Client) *Discovery {
	return &Discovery{gattc: gattc, clients: clients, conn: gatt.ConnNone}
}

// SetCompletionHandler sets the function called when a client reports done.
// The protocol layer wires it to its discovery-complete event, whose
// handling calls OnDiscoveryComplete.
func (d *Discovery) SetCompletionHandler(fn func()) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

// Start resets every client and runs the first one on conn.
func (d *Discovery) Start(conn gatt.ConnHandle) {
	for _, c := range d.clients {
		c.Reset()
	}
	d.mu.Lock()
	d.generation++
	d.conn = conn
	d.index = 0
	d.running = len(d.clients) > 0
	gen := d.generation
	d.mu.Unlock()

	slog.Info("[DISC] starting service discovery", "conn", conn, "clients", len(d.clients))
	d.run(gen, 0, conn)
}

// OnDiscoveryComplete advances to the next client, or ends the pass.
func (d *Discovery) OnDiscoveryComplete() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.index++
	if d.index >= len(d.clients) {
		d.running = false
		d.mu.Unlock()
		slog.Info("[DISC] service discovery finished")
		return
	}
	gen, idx, conn := d.generation, d.index, d.conn
	d.mu.Unlock()
	d.run(gen, idx, conn)
}

func (d *Discovery) run(gen uint32, idx int, conn gatt.ConnHandle) {
	if idx >= len(d.clients) {
		return
	}
	c := d.clients[idx]
	slog.Debug("[DISC] running client", "client", c.Name())
	var once sync.Once
	c.Discover(conn, d.gattc, func() {
		once.Do(func() { d.clientDone(gen) })
	})
}

// clientDone ignores completions from a pass that was reset since.
func (d *Discovery) clientDone(gen uint32) {
	d.mu.Lock()
	if gen != d.generation || !d.running {
		d.mu.Unlock()
		return
	}
	fn := d.onComplete
	d.mu.Unlock()
	if fn != nil {
		fn()
	} else {
		d.OnDiscoveryComplete()
	}
}

// OnNotification offers a peer notification to each client.
func (d *Discovery) OnNotification(conn gatt.ConnHandle, handle uint16, data []byte) bool {
	for _, c := range d.clients {
		if c.OnNotification(conn, handle, data) {
			return true
		}
	}
	slog.Debug("[DISC] unclaimed notification", "handle", handle)
	return false
}

// Reset abandons any pass in flight and drops discovered handles.
func (d *Discovery) Reset() {
	d.mu.Lock()
	d.generation++
	d.running = false
	d.conn = gatt.ConnNone
	d.mu.Unlock()
	for _, c := range d.clients {
		c.Reset()
	}
}

// Running reports whether a pass is in progress.
func (d *Discovery) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
