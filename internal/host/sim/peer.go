package sim

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/ble"
	"github.com/chaz8081/praxiom-core/internal/discovery"
	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// Characteristic property bits as they appear in a declaration.
const (
	PropRead        uint8 = 0x02
	PropWriteNoResp uint8 = 0x04
	PropWrite       uint8 = 0x08
	PropNotify      uint8 = 0x10
)

// Peer describes the phone: its address and the services it serves to the
// watch's client role.
type Peer struct {
	Address  ble.Address
	Services []PeerService
}

// PeerService is a primary service on the phone.
type PeerService struct {
	UUID  uuid.UUID
	Chars []PeerChar
}

// PeerChar is a characteristic on the phone. Notify characteristics get a
// CCCD.
type PeerChar struct {
	UUID       uuid.UUID
	Properties uint8
	Value      []byte
}

type peerService struct {
	uuid       uuid.UUID
	start, end uint16
	chars      []discovery.Characteristic
}

// peerDB is the phone's attribute table.
type peerDB struct {
	services   []peerService
	values     map[uint16][]byte
	cccdOf     map[uint16]uint16 // value handle -> CCCD handle
	valueOf    map[uint16]uint16 // CCCD handle -> value handle
	subscribed map[uint16]bool   // value handle -> watch subscribed
}

func newPeerDB(p Peer) *peerDB {
	db := &peerDB{
		values:     make(map[uint16][]byte),
		cccdOf:     make(map[uint16]uint16),
		valueOf:    make(map[uint16]uint16),
		subscribed: make(map[uint16]bool),
	}
	next := uint16(1)
	for _, s := range p.Services {
		ps := peerService{uuid: s.UUID, start: next}
		next++
		for _, c := range s.Chars {
			def := next
			val := next + 1
			next += 2
			ps.chars = append(ps.chars, discovery.Characteristic{
				UUID: c.UUID, DefHandle: def, ValueHandle: val, Properties: c.Properties,
			})
			db.values[val] = append([]byte(nil), c.Value...)
			if c.Properties&PropNotify != 0 {
				db.cccdOf[val] = next
				db.valueOf[next] = val
				next++
			}
		}
		ps.end = next - 1
		db.services = append(db.services, ps)
	}
	return db
}

func (db *peerDB) find(u uuid.UUID) (discovery.Characteristic, bool) {
	for _, s := range db.services {
		for _, c := range s.chars {
			if c.UUID == u {
				return c, true
			}
		}
	}
	return discovery.Characteristic{}, false
}

// Connect brings up a link from p. Advertising stops, as on a real
// controller.
func (h *Host) Connect(p Peer) (gatt.ConnHandle, error) {
	h.mu.Lock()
	if h.conn != nil {
		h.mu.Unlock()
		return gatt.ConnNone, ErrAlreadyConnected
	}
	h.stopAdvLocked()
	conn := h.nextConn
	h.nextConn++
	_, bonded := h.bonds[p.Address]
	h.conn = &link{
		desc: ble.ConnDesc{
			Handle:    conn,
			Bonded:    bonded,
			Encrypted: bonded,
			OurID:     h.addr,
			PeerID:    p.Address,
		},
		peer: newPeerDB(p),
	}
	h.mu.Unlock()
	h.logf("peer connected", "peer", p.Address, "conn", conn)
	h.Emit(ble.GapEvent{Type: ble.EventConnect, Conn: conn})
	return conn, nil
}

// FailConnect reports a failed connection attempt with the given status.
func (h *Host) FailConnect(status int) {
	h.mu.Lock()
	h.stopAdvLocked()
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventConnect, Conn: gatt.ConnNone, Status: status})
}

// PeerDisconnect drops the link from the phone's side.
func (h *Host) PeerDisconnect() error {
	return h.drop(h.Conn(), ReasonRemoteUser)
}

// Pair completes pairing with the connected peer and stores sec as its
// security record.
func (h *Host) Pair(sec ble.PeerSecurity) error {
	h.mu.Lock()
	if h.conn == nil {
		h.mu.Unlock()
		return ErrNotConnected
	}
	h.bonds[h.conn.desc.PeerID] = sec
	h.conn.desc.Bonded = true
	h.conn.desc.Encrypted = true
	conn := h.conn.desc.Handle
	h.mu.Unlock()
	h.Emit(ble.GapEvent{Type: ble.EventEncChange, Conn: conn})
	return nil
}

// RequestPasskey asks the watch to display a passkey.
func (h *Host) RequestPasskey() error {
	conn := h.Conn()
	if !conn.Valid() {
		return ErrNotConnected
	}
	h.Emit(ble.GapEvent{Type: ble.EventPasskeyAction, Conn: conn})
	return nil
}

// RepeatPairing plays a peer that lost its keys and pairs again. When the
// watch answers with a retry, pairing completes with sec.
func (h *Host) RepeatPairing(sec ble.PeerSecurity) error {
	conn := h.Conn()
	if !conn.Valid() {
		return ErrNotConnected
	}
	h.Post(func() {
		if h.Deliver(ble.GapEvent{Type: ble.EventRepeatPairing, Conn: conn}) != ble.ResultRepeatPairingRetry {
			h.logf("repeat pairing rejected")
			return
		}
		if err := h.Pair(sec); err != nil {
			h.logf("repeat pairing", "error", err)
		}
	})
	return nil
}

// Subscribe writes the watch-side CCCD of characteristic u.
func (h *Host) Subscribe(u uuid.UUID, on bool) error {
	a, ok := h.table.Find(u)
	if !ok || a.CCCD == 0 {
		return fmt.Errorf("%w: %s has no CCCD", ErrUnknownChar, u)
	}
	h.mu.Lock()
	if h.conn == nil {
		h.mu.Unlock()
		return ErrNotConnected
	}
	conn := h.conn.desc.Handle
	prev := h.cccd[a.CCCD]
	h.cccd[a.CCCD] = on
	h.mu.Unlock()
	h.Emit(ble.GapEvent{
		Type:       ble.EventSubscribe,
		Conn:       conn,
		AttrHandle: a.Char.Handle(),
		CurNotify:  on,
		PrevNotify: prev,
	})
	return nil
}

// ReadChar reads characteristic u as the peer.
func (h *Host) ReadChar(u uuid.UUID) ([]byte, error) {
	a, ok := h.table.Find(u)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChar, u)
	}
	conn := h.Conn()
	if !conn.Valid() {
		return nil, ErrNotConnected
	}
	return h.table.Read(conn, a.Char.Handle())
}

// WriteChar writes characteristic u as the peer, with or without response.
func (h *Host) WriteChar(u uuid.UUID, data []byte, withResponse bool) error {
	a, ok := h.table.Find(u)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChar, u)
	}
	conn := h.Conn()
	if !conn.Valid() {
		return ErrNotConnected
	}
	op := gatt.OpWriteNoResponse
	if withResponse {
		op = gatt.OpWrite
	}
	return h.table.Write(conn, a.Char.Handle(), op, data)
}

// PeerNotify sends a notification from the phone's characteristic u. It is
// delivered only when the watch enabled the CCCD, and reports whether it
// was.
func (h *Host) PeerNotify(u uuid.UUID, data []byte) (bool, error) {
	h.mu.Lock()
	if h.conn == nil {
		h.mu.Unlock()
		return false, ErrNotConnected
	}
	c, ok := h.conn.peer.find(u)
	if !ok {
		h.mu.Unlock()
		return false, fmt.Errorf("%w: peer has no %s", ErrUnknownChar, u)
	}
	if !h.conn.peer.subscribed[c.ValueHandle] {
		h.mu.Unlock()
		return false, nil
	}
	conn := h.conn.desc.Handle
	h.mu.Unlock()
	h.Emit(ble.GapEvent{
		Type:       ble.EventNotifyRx,
		Conn:       conn,
		AttrHandle: c.ValueHandle,
		Data:       append([]byte(nil), data...),
	})
	return true, nil
}

// PeerSubscribed reports whether the watch enabled notifications on the
// phone's characteristic u.
func (h *Host) PeerSubscribed(u uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return false
	}
	c, ok := h.conn.peer.find(u)
	return ok && h.conn.peer.subscribed[c.ValueHandle]
}

// peer returns the phone's table when conn is the live link.
func (h *Host) peer(conn gatt.ConnHandle) (*peerDB, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil || h.conn.desc.Handle != conn {
		return nil, false
	}
	return h.conn.peer, true
}

// The client-role operations answer through the pump, so callbacks never
// run inside the caller.

func (h *Host) DiscoverService(conn gatt.ConnHandle, svc uuid.UUID, cb func(start, end uint16, found bool, err error)) error {
	if _, ok := h.peer(conn); !ok {
		return ErrNotConnected
	}
	h.Post(func() {
		db, ok := h.peer(conn)
		if !ok {
			cb(0, 0, false, ErrNotConnected)
			return
		}
		for _, s := range db.services {
			if s.uuid == svc {
				cb(s.start, s.end, true, nil)
				return
			}
		}
		cb(0, 0, false, nil)
	})
	return nil
}

func (h *Host) DiscoverCharacteristics(conn gatt.ConnHandle, start, end uint16, cb func([]discovery.Characteristic, error)) error {
	if _, ok := h.peer(conn); !ok {
		return ErrNotConnected
	}
	h.Post(func() {
		db, ok := h.peer(conn)
		if !ok {
			cb(nil, ErrNotConnected)
			return
		}
		var out []discovery.Characteristic
		for _, s := range db.services {
			for _, c := range s.chars {
				if c.DefHandle >= start && c.ValueHandle <= end {
					out = append(out, c)
				}
			}
		}
		cb(out, nil)
	})
	return nil
}

func (h *Host) DiscoverDescriptors(conn gatt.ConnHandle, valueHandle, end uint16, cb func([]discovery.Descriptor, error)) error {
	if _, ok := h.peer(conn); !ok {
		return ErrNotConnected
	}
	h.Post(func() {
		db, ok := h.peer(conn)
		if !ok {
			cb(nil, ErrNotConnected)
			return
		}
		var out []discovery.Descriptor
		if cccd, ok := db.cccdOf[valueHandle]; ok && cccd <= end {
			out = append(out, discovery.Descriptor{UUID: discovery.CCCDUUID, Handle: cccd})
		}
		cb(out, nil)
	})
	return nil
}

func (h *Host) Read(conn gatt.ConnHandle, handle uint16, cb func([]byte, error)) error {
	if _, ok := h.peer(conn); !ok {
		return ErrNotConnected
	}
	h.Post(func() {
		db, ok := h.peer(conn)
		if !ok {
			cb(nil, ErrNotConnected)
			return
		}
		h.mu.Lock()
		v, found := db.values[handle]
		v = append([]byte(nil), v...)
		h.mu.Unlock()
		if !found {
			cb(nil, gatt.ErrInvalidHandle)
			return
		}
		cb(v, nil)
	})
	return nil
}

func (h *Host) Write(conn gatt.ConnHandle, handle uint16, data []byte, cb func(error)) error {
	if _, ok := h.peer(conn); !ok {
		return ErrNotConnected
	}
	data = append([]byte(nil), data...)
	h.Post(func() {
		db, ok := h.peer(conn)
		if !ok {
			cb(ErrNotConnected)
			return
		}
		h.mu.Lock()
		var err error
		if val, isCCCD := db.valueOf[handle]; isCCCD {
			if len(data) != 2 {
				err = gatt.ErrInvalidAttrValueLen
			} else {
				db.subscribed[val] = data[0]&0x01 != 0
			}
		} else if _, found := db.values[handle]; found {
			db.values[handle] = data
		} else {
			err = gatt.ErrInvalidHandle
		}
		h.mu.Unlock()
		cb(err)
	})
	return nil
}
