package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/ble/crypto"
	"github.com/chaz8081/praxiom-core/internal/discovery"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/periph"
	"github.com/chaz8081/praxiom-core/internal/store"
)

// BatteryNotifier forwards level changes to the Battery service.
type BatteryNotifier interface {
	NotifyBatteryLevel(level uint8)
}

// Options configures the controller.
type Options struct {
	DeviceName string
	Appearance uint16
	// AdvertisedService is the 128-bit service UUID put in the advertising
	// payload.
	AdvertisedService uuid.UUID
	FastCycles        int
	AdvDuration       time.Duration
}

// DefaultOptions returns the watch's advertising identity.
func DefaultOptions() Options {
	return Options{
		DeviceName:  "Praxiom",
		Appearance:  0x00C2,
		FastCycles:  DefaultFastCycles,
		AdvDuration: 180 * time.Second,
	}
}

// Deps are the collaborators the controller drives.
type Deps struct {
	Host      Host
	Services  *gatt.Registry
	Discovery *discovery.Discovery
	Battery   BatteryNotifier
	System    message.Pusher
	Bonds     periph.BondStore
	Identity  periph.Identity
	Radio     periph.Radio
}

// Controller is the peripheral-role state machine. Its mutex guards the
// advertising policy, bond id and radio flag and is never held while
// calling into the host, so host events may arrive on any goroutine.
type Controller struct {
	host  Host
	svcs  *gatt.Registry
	disc  *discovery.Discovery
	batt  BatteryNotifier
	sys   message.Pusher
	bonds periph.BondStore
	ident periph.Identity
	radio periph.Radio
	opts  Options
	link  *Link

	mu      sync.Mutex
	policy  *AdvertisingPolicy
	bondID  BondRecord
	radioOn bool
	addr    Address
}

// NewController wires a controller. The link is shared with the services
// so their notifications are gated on a live connection.
func NewController(d Deps, link *Link, opts Options) *Controller {
	if link == nil {
		link = NewLink()
	}
	return &Controller{
		host:    d.Host,
		svcs:    d.Services,
		disc:    d.Discovery,
		batt:    d.Battery,
		sys:     d.System,
		bonds:   d.Bonds,
		ident:   d.Identity,
		radio:   d.Radio,
		opts:    opts,
		link:    link,
		policy:  NewAdvertisingPolicy(opts.FastCycles),
		radioOn: true,
	}
}

// Link returns the connection view shared with the services.
func (c *Controller) Link() *Link { return c.link }

// ConnHandle returns the current connection handle, or gatt.ConnNone.
func (c *Controller) ConnHandle() gatt.ConnHandle { return c.link.ConnHandle() }

// Address returns the static random address set during Init.
func (c *Controller) Address() Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Init brings the stack up: wait for sync, register every service, set the
// address and GAP identity, start the GATT server and restore the stored
// bond. Errors wrapping ErrFatal leave the radio unusable.
func (c *Controller) Init(ctx context.Context) error {
	c.host.SetEventHandler(c.OnGapEvent)
	if c.disc != nil {
		c.disc.SetCompletionHandler(func() {
			c.OnGapEvent(GapEvent{Type: EventDiscoveryComplete, Conn: c.link.ConnHandle()})
		})
	}

	if err := c.host.WaitSynced(ctx); err != nil {
		return fmt.Errorf("ble: waiting for host sync: %w", err)
	}

	for _, h := range c.svcs.Handlers() {
		if err := gatt.Register(c.host, h); err != nil {
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
	}

	var id []byte
	if c.ident != nil {
		id = c.ident.DeviceID()
	}
	raw, err := crypto.DeriveStaticAddress(id)
	if err != nil {
		return fmt.Errorf("%w: deriving address: %w", ErrFatal, err)
	}
	addr := Address(raw)

	if err := c.host.SetDeviceName(c.opts.DeviceName); err != nil {
		return fmt.Errorf("%w: set device name: %w", ErrFatal, err)
	}
	if err := c.host.SetAppearance(c.opts.Appearance); err != nil {
		return fmt.Errorf("%w: set appearance: %w", ErrFatal, err)
	}
	if err := c.host.SetRandomAddress(addr); err != nil {
		return fmt.Errorf("%w: set random address: %w", ErrFatal, err)
	}
	if err := c.host.StartGATTServer(); err != nil {
		return fmt.Errorf("%w: start gatt server: %w", ErrFatal, err)
	}

	c.mu.Lock()
	c.addr = addr
	c.mu.Unlock()

	c.restoreBond()

	slog.Info("[BLE] host ready", "address", addr, "name", c.opts.DeviceName, "services", c.svcs.Len())
	return nil
}

func (c *Controller) restoreBond() {
	if c.bonds == nil {
		return
	}
	id, err := c.bonds.ReadBondID()
	if errors.Is(err, store.ErrNoBond) {
		slog.Debug("[BLE] no stored bond")
		return
	}
	if err != nil {
		slog.Warn("[BLE] reading stored bond", "error", err)
		return
	}
	// The stored key stays the reference for persistBondFor even when the
	// host refuses it, so a reconnect with the same key is not rewritten.
	c.mu.Lock()
	c.bondID = BondRecord(id)
	c.mu.Unlock()
	if err := c.host.RestoreBond(BondRecord(id)); err != nil {
		slog.Warn("[BLE] restoring bond", "error", err)
		return
	}
	slog.Info("[BLE] bond restored")
}

// forgetBond drops the stored identity key so the next bonded link is
// persisted again.
func (c *Controller) forgetBond() {
	c.mu.Lock()
	c.bondID = BondRecord{}
	c.mu.Unlock()
	if c.bonds == nil {
		return
	}
	if err := c.bonds.ClearBond(); err != nil {
		slog.Warn("[BLE] clearing stored bond", "error", err)
	}
}

// StartAdvertising begins an advertising run unless the radio is off, a
// peer is connected, or the host is already advertising or scanning.
func (c *Controller) StartAdvertising() {
	if !c.RadioEnabled() || c.link.Connected() {
		return
	}
	if c.host.AdvertisingActive() || c.host.ScanActive() {
		return
	}

	c.mu.Lock()
	iv := c.policy.Next()
	c.mu.Unlock()

	p := AdvertisingParams{
		Interval:    iv,
		Duration:    c.opts.AdvDuration,
		Flags:       FlagGeneralDiscoverable | FlagBREDRUnsupported,
		ServiceUUID: c.opts.AdvertisedService,
		TxPowerAuto: true,
		Name:        c.opts.DeviceName,
	}
	if err := c.host.StartAdvertising(p); err != nil {
		slog.Error("[BLE] start advertising", "error", err)
		return
	}
	slog.Debug("[BLE] advertising", "min", iv.Min, "max", iv.Max, "duration", p.Duration)
}

// OnGapEvent is the host's event entry point.
func (c *Controller) OnGapEvent(ev GapEvent) GapResult {
	switch ev.Type {
	case EventConnect:
		if ev.Status != 0 {
			slog.Warn("[BLE] connection failed", "status", ev.Status)
			c.StartAdvertising()
			return ResultOK
		}
		c.link.set(ev.Conn)
		slog.Info("[BLE] connected", "conn", ev.Conn)
		c.push(message.BleConnected)
		c.svcs.Connected(ev.Conn)
		c.persistBondFor(ev.Conn)

	case EventDisconnect:
		slog.Info("[BLE] disconnected", "conn", ev.Conn, "reason", ev.Reason)
		c.link.set(gatt.ConnNone)
		c.mu.Lock()
		c.policy.Reset()
		c.mu.Unlock()
		if c.disc != nil {
			c.disc.Reset()
		}
		c.svcs.Disconnected()
		c.push(message.BleDisconnected)
		c.StartAdvertising()

	case EventConnUpdate:
		slog.Debug("[BLE] connection updated", "conn", ev.Conn, "status", ev.Status)

	case EventAdvComplete:
		slog.Debug("[BLE] advertising complete", "status", ev.Status)
		c.StartAdvertising()

	case EventEncChange:
		if ev.Status != 0 {
			slog.Warn("[BLE] encryption change failed", "conn", ev.Conn, "status", ev.Status)
			return ResultOK
		}
		c.persistBondFor(ev.Conn)

	case EventRepeatPairing:
		desc, err := c.host.FindConn(ev.Conn)
		if err != nil {
			slog.Warn("[BLE] repeat pairing on unknown connection", "conn", ev.Conn, "error", err)
			return ResultRepeatPairingRetry
		}
		if err := c.host.DeletePeer(desc.PeerID); err != nil {
			slog.Warn("[BLE] deleting old bond", "peer", desc.PeerID, "error", err)
		}
		c.forgetBond()
		slog.Info("[BLE] repeat pairing, old bond deleted", "peer", desc.PeerID)
		return ResultRepeatPairingRetry

	case EventNotifyTx:
		if ev.Status != 0 {
			slog.Debug("[BLE] notification not sent", "handle", ev.AttrHandle, "status", ev.Status)
		}

	case EventSubscribe:
		if !c.svcs.Subscription(ev.AttrHandle, ev.CurNotify) {
			slog.Debug("[BLE] subscribe on unknown handle", "handle", ev.AttrHandle)
		}

	case EventMTU:
		slog.Debug("[BLE] mtu updated", "conn", ev.Conn, "mtu", ev.MTU)

	case EventDiscoveryComplete:
		if c.disc != nil {
			c.disc.OnDiscoveryComplete()
		}

	case EventNotifyRx:
		if c.disc == nil || !c.disc.OnNotification(ev.Conn, ev.AttrHandle, ev.Data) {
			slog.Debug("[BLE] unclaimed notification", "handle", ev.AttrHandle)
		}

	case EventPasskeyAction:
		c.push(message.PairingRequested)

	default:
		slog.Debug("[BLE] unhandled event", "type", ev.Type)
	}
	return ResultOK
}

// persistBondFor stores the peer's identity key when the link is bonded
// and the key differs from the stored one.
func (c *Controller) persistBondFor(conn gatt.ConnHandle) {
	desc, err := c.host.FindConn(conn)
	if err != nil {
		slog.Debug("[BLE] connection lookup", "conn", conn, "error", err)
		return
	}
	if !desc.Bonded {
		return
	}
	sec, err := c.host.ReadPeerSecurity(desc.PeerID)
	if err != nil {
		slog.Warn("[BLE] reading peer security", "peer", desc.PeerID, "error", err)
		return
	}
	if !sec.LTKPresent {
		return
	}

	c.mu.Lock()
	same := c.bondID == BondRecord(sec.IRK)
	if !same {
		c.bondID = BondRecord(sec.IRK)
	}
	c.mu.Unlock()
	if same || c.bonds == nil {
		return
	}
	if err := c.bonds.WriteBondID(sec.IRK); err != nil {
		slog.Error("[BLE] persisting bond", "error", err)
		return
	}
	slog.Info("[BLE] bond persisted", "peer", desc.PeerID)
}

// BondID returns the identity key of the bonded peer.
func (c *Controller) BondID() BondRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bondID
}

// StartDiscovery runs the client role against the connected peer.
func (c *Controller) StartDiscovery() {
	conn := c.link.ConnHandle()
	if !conn.Valid() || c.disc == nil {
		return
	}
	c.disc.Start(conn)
}

// NotifyBatteryLevel forwards a new battery level to the Battery service.
func (c *Controller) NotifyBatteryLevel(level uint8) {
	if c.batt != nil {
		c.batt.NotifyBatteryLevel(level)
	}
}

// EnableRadio powers the radio. The caller restarts advertising.
func (c *Controller) EnableRadio() error {
	if c.radio != nil {
		if err := c.radio.SetPower(true); err != nil {
			return fmt.Errorf("ble: enabling radio: %w", err)
		}
	}
	c.mu.Lock()
	c.radioOn = true
	c.mu.Unlock()
	slog.Info("[BLE] radio enabled")
	return nil
}

// DisableRadio drops any connection, stops advertising and powers the
// radio down.
func (c *Controller) DisableRadio() error {
	c.mu.Lock()
	c.radioOn = false
	c.mu.Unlock()

	if conn := c.link.ConnHandle(); conn.Valid() {
		if err := c.host.Disconnect(conn); err != nil {
			slog.Warn("[BLE] terminating connection", "conn", conn, "error", err)
		}
	}
	if c.host.AdvertisingActive() {
		if err := c.host.StopAdvertising(); err != nil {
			slog.Warn("[BLE] stopping advertising", "error", err)
		}
	}
	if c.radio != nil {
		if err := c.radio.SetPower(false); err != nil {
			return fmt.Errorf("ble: disabling radio: %w", err)
		}
	}
	slog.Info("[BLE] radio disabled")
	return nil
}

// RadioEnabled reports the radio switch state.
func (c *Controller) RadioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radioOn
}

func (c *Controller) push(k message.Kind) {
	if c.sys == nil {
		return
	}
	if !c.sys.PushMessage(k) {
		slog.Warn("[BLE] system queue full, message dropped", "message", k)
	}
}
