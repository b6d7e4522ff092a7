package services

import (
	"log/slog"

	"github.com/chaz8081/praxiom-core/internal/clock"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/notification"
)

var (
	AlertServiceUUID      = gatt.UUID16(0x1811)
	NewAlertCharUUID      = gatt.UUID16(0x2A46)
	SupportedAlertCatUUID = gatt.UUID16(0x2A47)
)

// Alert is a decoded New Alert value.
type Alert struct {
	Category notification.Category
	Count    uint8
	Text     []byte
}

// minAlertLen is category, count and at least one byte of text.
const minAlertLen = 3

// DecodeAlert parses category, count and UTF-8 text.
func DecodeAlert(b []byte) (Alert, error) {
	if len(b) < minAlertLen {
		return Alert{}, gatt.ErrInvalidAttrValueLen
	}
	text := notification.Clip(b[2:], notification.MaxMessageSize)
	return Alert{
		Category: notification.Category(b[0]),
		Count:    b[1],
		Text:     append([]byte(nil), text...),
	}, nil
}

// DeliverAlert stores a and wakes the system task. Incoming calls raise
// NewIncomingCall; every other category raises NewNotificationArrived.
func DeliverAlert(a Alert, notes *notification.Manager, clk *clock.Clock, sys message.Pusher) {
	n := notes.Push(a.Category, a.Count, a.Text, clk.Now())
	kind := message.NewNotificationArrived
	if a.Category == notification.CategoryCall {
		kind = message.NewIncomingCall
	}
	slog.Info("[GATT] alert received", "id", n.ID, "category", a.Category, "kind", kind)
	sys.PushMessage(kind)
}

// AlertNotification is the Alert Notification Service (0x1811) server role:
// the phone writes New Alert values.
type AlertNotification struct {
	newAlert  *gatt.Characteristic
	supported *gatt.Characteristic
	desc      *gatt.ServiceDescriptor

	notes *notification.Manager
	clock *clock.Clock
	sys   message.Pusher
}

// NewAlertNotification returns the service.
func NewAlertNotification(notes *notification.Manager, clk *clock.Clock, sys message.Pusher) *AlertNotification {
	s := &AlertNotification{
		newAlert:  gatt.NewCharacteristic(NewAlertCharUUID, gatt.PermWrite|gatt.PermWriteNoResponse),
		supported: gatt.NewCharacteristic(SupportedAlertCatUUID, gatt.PermRead),
		notes:     notes,
		clock:     clk,
		sys:       sys,
	}
	s.desc = gatt.NewService(AlertServiceUUID, s.newAlert, s.supported)
	return s
}

func (s *AlertNotification) Descriptor() *gatt.ServiceDescriptor { return s.desc }

func (s *AlertNotification) OnAccess(a *gatt.Access) error {
	switch a.Handle {
	case s.supported.Handle():
		// Category ID bit mask: all ten categories.
		_, err := a.Out.Write([]byte{0xFF, 0x03})
		return err
	case s.newAlert.Handle():
		alert, err := DecodeAlert(a.Data)
		if err != nil {
			return err
		}
		DeliverAlert(alert, s.notes, s.clock, s.sys)
		return nil
	}
	return gatt.ErrUnlikely
}
