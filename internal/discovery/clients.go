package discovery

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/clock"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/notification"
	"github.com/chaz8081/praxiom-core/internal/services"
)

var (
	_ Client = (*CurrentTimeClient)(nil)
	_ Client = (*AlertNotificationClient)(nil)
)

// findService discovers svc and its characteristics, then hands them to
// next. Any miss or error ends the pass through done.
func findService(name string, conn gatt.ConnHandle, c GATTClient, svc uuid.UUID, done func(), next func(chars []Characteristic, end uint16)) {
	fail := func(step string, err error) {
		if err != nil {
			slog.Warn("[DISC] "+step+" failed", "client", name, "error", err)
		} else {
			slog.Info("[DISC] "+step+": not present", "client", name)
		}
		done()
	}
	err := c.DiscoverService(conn, svc, func(start, end uint16, found bool, err error) {
		if err != nil || !found {
			fail("service discovery", err)
			return
		}
		err = c.DiscoverCharacteristics(conn, start, end, func(chars []Characteristic, err error) {
			if err != nil {
				fail("characteristic discovery", err)
				return
			}
			next(chars, end)
		})
		if err != nil {
			fail("characteristic discovery", err)
		}
	})
	if err != nil {
		fail("service discovery", err)
	}
}

func lookup(chars []Characteristic, u uuid.UUID) (Characteristic, bool) {
	for _, ch := range chars {
		if ch.UUID == u {
			return ch, true
		}
	}
	return Characteristic{}, false
}

// CurrentTimeClient reads the phone's Current Time Service once per
// connection and sets the watch clock from it.
type CurrentTimeClient struct {
	clock *clock.Clock

	mu     sync.Mutex
	handle uint16
}

// NewCurrentTimeClient returns a client that sets clk.
func NewCurrentTimeClient(clk *clock.Clock) *CurrentTimeClient {
	return &CurrentTimeClient{clock: clk}
}

func (c *CurrentTimeClient) Name() string { return "current-time" }

func (c *CurrentTimeClient) Discover(conn gatt.ConnHandle, gc GATTClient, done func()) {
	findService(c.Name(), conn, gc, services.CurrentTimeServiceUUID, done, func(chars []Characteristic, _ uint16) {
		ct, ok := lookup(chars, services.CurrentTimeCharUUID)
		if !ok {
			slog.Info("[DISC] peer has no current time characteristic")
			done()
			return
		}
		c.mu.Lock()
		c.handle = ct.ValueHandle
		c.mu.Unlock()
		err := gc.Read(conn, ct.ValueHandle, func(data []byte, err error) {
			defer done()
			if err != nil {
				slog.Warn("[DISC] reading current time", "error", err)
				return
			}
			t, err := services.DecodeCurrentTime(data)
			if err != nil {
				slog.Warn("[DISC] peer sent invalid current time", "error", err)
				return
			}
			c.clock.Set(t)
			slog.Info("[DISC] clock set from peer", "time", t)
		})
		if err != nil {
			slog.Warn("[DISC] reading current time", "error", err)
			done()
		}
	})
}

// OnNotification accepts current time notifications when the peer pushes them.
func (c *CurrentTimeClient) OnNotification(_ gatt.ConnHandle, handle uint16, data []byte) bool {
	c.mu.Lock()
	owned := handle != 0 && handle == c.handle
	c.mu.Unlock()
	if !owned {
		return false
	}
	if t, err := services.DecodeCurrentTime(data); err == nil {
		c.clock.Set(t)
	}
	return true
}

func (c *CurrentTimeClient) Reset() {
	c.mu.Lock()
	c.handle = 0
	c.mu.Unlock()
}

// AlertNotificationClient subscribes to the phone's New Alert
// characteristic and delivers incoming alerts like the server role does.
type AlertNotificationClient struct {
	notes *notification.Manager
	clock *clock.Clock
	sys   message.Pusher

	mu       sync.Mutex
	newAlert uint16
}

// NewAlertNotificationClient returns the client.
func NewAlertNotificationClient(notes *notification.Manager, clk *clock.Clock, sys message.Pusher) *AlertNotificationClient {
	return &AlertNotificationClient{notes: notes, clock: clk, sys: sys}
}

func (c *AlertNotificationClient) Name() string { return "alert-notification" }

// enableNotify is the CCCD value that turns notifications on.
var enableNotify = []byte{0x01, 0x00}

func (c *AlertNotificationClient) Discover(conn gatt.ConnHandle, gc GATTClient, done func()) {
	findService(c.Name(), conn, gc, services.AlertServiceUUID, done, func(chars []Characteristic, end uint16) {
		na, ok := lookup(chars, services.NewAlertCharUUID)
		if !ok {
			slog.Info("[DISC] peer has no new alert characteristic")
			done()
			return
		}
		err := gc.DiscoverDescriptors(conn, na.ValueHandle, end, func(descs []Descriptor, err error) {
			if err != nil {
				slog.Warn("[DISC] descriptor discovery", "error", err)
				done()
				return
			}
			var cccd uint16
			for _, d := range descs {
				if d.UUID == CCCDUUID {
					cccd = d.Handle
					break
				}
			}
			if cccd == 0 {
				slog.Info("[DISC] new alert has no CCCD")
				done()
				return
			}
			err = gc.Write(conn, cccd, enableNotify, func(err error) {
				defer done()
				if err != nil {
					slog.Warn("[DISC] subscribing to new alert", "error", err)
					return
				}
				c.mu.Lock()
				c.newAlert = na.ValueHandle
				c.mu.Unlock()
				slog.Info("[DISC] subscribed to peer alerts", "handle", na.ValueHandle)
			})
			if err != nil {
				slog.Warn("[DISC] subscribing to new alert", "error", err)
				done()
			}
		})
		if err != nil {
			slog.Warn("[DISC] descriptor discovery", "error", err)
			done()
		}
	})
}

func (c *AlertNotificationClient) OnNotification(_ gatt.ConnHandle, handle uint16, data []byte) bool {
	c.mu.Lock()
	owned := handle != 0 && handle == c.newAlert
	c.mu.Unlock()
	if !owned {
		return false
	}
	alert, err := services.DecodeAlert(data)
	if err != nil {
		slog.Debug("[DISC] malformed alert notification", "error", err)
		return true
	}
	services.DeliverAlert(alert, c.notes, c.clock, c.sys)
	return true
}

func (c *AlertNotificationClient) Reset() {
	c.mu.Lock()
	c.newAlert = 0
	c.mu.Unlock()
}
