package services

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/chaz8081/praxiom-core/internal/clock"
	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// CurrentTimeLen is the size of a Current Time characteristic value.
const CurrentTimeLen = 10

var (
	CurrentTimeServiceUUID = gatt.UUID16(0x1805)
	CurrentTimeCharUUID    = gatt.UUID16(0x2A2B)
)

var errTimeRange = errors.New("services: current time field out of range")

// EncodeCurrentTime packs t into the 10-byte Current Time layout: year (u16),
// month, day, hours, minutes, seconds, day of week (1 = Monday), fractions
// of 1/256 s, adjust reason.
func EncodeCurrentTime(t time.Time, reason uint8) [CurrentTimeLen]byte {
	var b [CurrentTimeLen]byte
	binary.LittleEndian.PutUint16(b[0:], uint16(t.Year()))
	b[2] = uint8(t.Month())
	b[3] = uint8(t.Day())
	b[4] = uint8(t.Hour())
	b[5] = uint8(t.Minute())
	b[6] = uint8(t.Second())
	dow := uint8(t.Weekday())
	if dow == 0 {
		dow = 7
	}
	b[7] = dow
	b[8] = uint8(t.Nanosecond() / (int(time.Second) / 256))
	b[9] = reason
	return b
}

// DecodeCurrentTime unpacks the 10-byte layout. Calendar fields outside
// their ranges are rejected; day of week and adjust reason are ignored.
func DecodeCurrentTime(b []byte) (time.Time, error) {
	if len(b) != CurrentTimeLen {
		return time.Time{}, gatt.ErrInvalidAttrValueLen
	}
	year := int(binary.LittleEndian.Uint16(b[0:]))
	month, day, hour, minute, sec := b[2], b[3], b[4], b[5], b[6]
	if year < 1582 || year > 9999 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, errTimeRange
	}
	t := time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(sec),
		int(b[8])*(int(time.Second)/256), time.UTC)
	if t.Day() != int(day) {
		// e.g. 31 February normalized into March
		return time.Time{}, errTimeRange
	}
	return t, nil
}

// CurrentTime is the Current Time Service (0x1805). Peers read or write the
// watch clock through characteristic 0x2A2B.
type CurrentTime struct {
	ct    *gatt.Characteristic
	desc  *gatt.ServiceDescriptor
	ch    *gatt.Channel
	clock *clock.Clock
}

// NewCurrentTime returns the service backed by clk.
func NewCurrentTime(n gatt.Notifier, conn gatt.ConnView, clk *clock.Clock) *CurrentTime {
	s := &CurrentTime{
		ct:    gatt.NewCharacteristic(CurrentTimeCharUUID, gatt.PermRead|gatt.PermWrite|gatt.PermNotify),
		clock: clk,
	}
	s.desc = gatt.NewService(CurrentTimeServiceUUID, s.ct)
	s.ch = gatt.NewChannel(n, conn, s.ct)
	return s
}

func (s *CurrentTime) Descriptor() *gatt.ServiceDescriptor { return s.desc }

func (s *CurrentTime) OnAccess(a *gatt.Access) error {
	if a.Op == gatt.OpRead {
		v := EncodeCurrentTime(s.clock.Now(), 0)
		_, err := a.Out.Write(v[:])
		return err
	}
	if err := gatt.ExpectLen(a.Data, CurrentTimeLen); err != nil {
		return err
	}
	t, err := DecodeCurrentTime(a.Data)
	if err != nil {
		slog.Debug("[GATT] current time write dropped", "error", err)
		return nil
	}
	s.clock.Set(t)
	slog.Info("[GATT] clock set by peer", "time", t)
	s.push(1) // manual time update
	return nil
}

func (s *CurrentTime) OnSubscribe(h uint16) {
	if h != s.ct.Handle() {
		return
	}
	s.ch.SetEnabled(true)
	s.push(0)
}

func (s *CurrentTime) OnUnsubscribe(h uint16) {
	if h == s.ct.Handle() {
		s.ch.SetEnabled(false)
	}
}

func (s *CurrentTime) OnConnected(gatt.ConnHandle) {}
func (s *CurrentTime) OnDisconnected()              { s.ch.SetEnabled(false) }

func (s *CurrentTime) push(reason uint8) {
	v := EncodeCurrentTime(s.clock.Now(), reason)
	if _, err := s.ch.Push(v[:]); err != nil {
		slog.Debug("[GATT] current time notify skipped", "error", err)
	}
}
