package services

import (
	"log/slog"

	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/message"
)

// Alert levels of the Alert Level characteristic.
const (
	AlertLevelNone uint8 = iota
	AlertLevelMild
	AlertLevelHigh
)

// ImmediateAlert is the Immediate Alert Service (0x1802), used by "find my
// watch" features on the phone.
type ImmediateAlert struct {
	level *gatt.Characteristic
	desc  *gatt.ServiceDescriptor
	sys   message.Pusher
}

// NewImmediateAlert returns the service; alerts are forwarded to sys.
func NewImmediateAlert(sys message.Pusher) *ImmediateAlert {
	s := &ImmediateAlert{
		level: gatt.NewCharacteristic(gatt.UUID16(0x2A06), gatt.PermWriteNoResponse),
		sys:   sys,
	}
	s.desc = gatt.NewService(gatt.UUID16(0x1802), s.level)
	return s
}

func (s *ImmediateAlert) Descriptor() *gatt.ServiceDescriptor { return s.desc }

func (s *ImmediateAlert) OnAccess(a *gatt.Access) error {
	if err := gatt.ExpectLen(a.Data, 1); err != nil {
		return err
	}
	switch lvl := a.Data[0]; lvl {
	case AlertLevelNone:
	case AlertLevelMild:
		s.sys.PushMessage(message.ImmediateAlertMild)
	case AlertLevelHigh:
		s.sys.PushMessage(message.ImmediateAlertHigh)
	default:
		slog.Debug("[GATT] immediate alert level dropped", "level", lvl)
	}
	return nil
}
