package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/praxiom-core/internal/clock"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/gatt/gatttest"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/notification"
	"github.com/chaz8081/praxiom-core/internal/store"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

type pushRecorder struct{ kinds []message.Kind }

func (p *pushRecorder) PushMessage(k message.Kind) bool {
	p.kinds = append(p.kinds, k)
	return true
}

func register(t *testing.T, h gatt.Handler) *gatttest.Registrar {
	t.Helper()
	reg := gatttest.NewRegistrar()
	if err := gatt.Register(reg, h); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return reg
}

func fixedClock() *clock.Clock {
	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return clock.NewWithSource(func() time.Time { return base })
}

func TestBatteryReadAndNotify(t *testing.T) {
	n := &gatttest.Notifier{}
	conn := gatttest.NewConn()
	b := NewBattery(n, conn)
	reg := register(t, b)

	got, err := reg.Read(b.level.Handle())
	if err != nil || !bytes.Equal(got, []byte{100}) {
		t.Fatalf("Read() = %v, %v", got, err)
	}

	b.NotifyBatteryLevel(80)
	if n.Count() != 0 {
		t.Fatal("notified while unsubscribed and disconnected")
	}

	conn.Set(1)
	b.OnSubscribe(b.level.Handle())
	last, ok := n.Last()
	if !ok || last.Data[0] != 80 {
		t.Fatalf("subscribe did not push current level: %+v", last)
	}

	b.NotifyBatteryLevel(150)
	last, _ = n.Last()
	if last.Data[0] != 100 {
		t.Errorf("level not capped: %d", last.Data[0])
	}

	b.OnDisconnected()
	conn.Set(gatt.ConnNone)
	b.NotifyBatteryLevel(50)
	if n.Count() != 2 {
		t.Errorf("Count() = %d after disconnect, want 2", n.Count())
	}
}

func TestCurrentTimeWrite(t *testing.T) {
	clk := fixedClock()
	s := NewCurrentTime(&gatttest.Notifier{}, gatttest.NewConn(), clk)
	reg := register(t, s)
	h := s.ct.Handle()

	want := time.Date(2025, 2, 28, 23, 59, 30, 0, time.UTC)
	v := EncodeCurrentTime(want, 0)
	if err := reg.Write(h, v[:]); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !clk.Now().Equal(want) {
		t.Errorf("clock = %v, want %v", clk.Now(), want)
	}

	if err := reg.Write(h, v[:9]); !errors.Is(err, gatt.ErrInvalidAttrValueLen) {
		t.Errorf("short write error = %v, want ErrInvalidAttrValueLen", err)
	}

	bad := v
	bad[2] = 13 // month
	if err := reg.Write(h, bad[:]); err != nil {
		t.Errorf("out-of-range write error = %v, want nil (dropped)", err)
	}
	if !clk.Now().Equal(want) {
		t.Error("out-of-range write changed the clock")
	}

	feb31 := v
	feb31[3] = 31
	if _, err := DecodeCurrentTime(feb31[:]); err == nil {
		t.Error("DecodeCurrentTime accepted 31 February")
	}

	got, err := reg.Read(h)
	if err != nil || len(got) != CurrentTimeLen || got[7] != 5 {
		t.Errorf("Read() = % x, %v (want Friday = 5)", got, err)
	}
}

func TestAlertNotification(t *testing.T) {
	notes := notification.New()
	sys := &pushRecorder{}
	s := NewAlertNotification(notes, fixedClock(), sys)
	reg := register(t, s)
	h := s.newAlert.Handle()

	if err := reg.Write(h, []byte{1, 1}); !errors.Is(err, gatt.ErrInvalidAttrValueLen) {
		t.Errorf("2-byte write error = %v, want ErrInvalidAttrValueLen", err)
	}
	if len(sys.kinds) != 0 {
		t.Fatal("rejected write reached the system task")
	}

	if err := reg.Write(h, append([]byte{3, 1}, "Mom"...)); err != nil {
		t.Fatal(err)
	}
	long := append([]byte{5, 1}, strings.Repeat("z", 300)...)
	if err := reg.Write(h, long); err != nil {
		t.Fatal(err)
	}
	if len(sys.kinds) != 2 || sys.kinds[0] != message.NewIncomingCall || sys.kinds[1] != message.NewNotificationArrived {
		t.Errorf("pushed = %v", sys.kinds)
	}
	last, _ := notes.Last()
	if len(last.Message) != notification.MaxMessageSize {
		t.Errorf("stored text length = %d, want %d", len(last.Message), notification.MaxMessageSize)
	}

	got, err := reg.Read(s.supported.Handle())
	if err != nil || !bytes.Equal(got, []byte{0xFF, 0x03}) {
		t.Errorf("supported categories = % x, %v", got, err)
	}
}

func TestImmediateAlertLevels(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []message.Kind
		err  error
	}{
		{"none", []byte{0}, nil, nil},
		{"mild", []byte{1}, []message.Kind{message.ImmediateAlertMild}, nil},
		{"high", []byte{2}, []message.Kind{message.ImmediateAlertHigh}, nil},
		{"out of range", []byte{3}, nil, nil},
		{"too long", []byte{1, 1}, nil, gatt.ErrInvalidAttrValueLen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &pushRecorder{}
			s := NewImmediateAlert(sys)
			reg := register(t, s)
			err := reg.WriteNoResponse(s.level.Handle(), tt.data)
			if !errors.Is(err, tt.err) && err != tt.err {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
			if len(sys.kinds) != len(tt.want) {
				t.Fatalf("pushed = %v, want %v", sys.kinds, tt.want)
			}
			for i := range tt.want {
				if sys.kinds[i] != tt.want[i] {
					t.Errorf("pushed[%d] = %v, want %v", i, sys.kinds[i], tt.want[i])
				}
			}
		})
	}
}

func TestDeviceInfoReads(t *testing.T) {
	s := NewDeviceInfo(DeviceInfoStrings{Manufacturer: "Praxiom Health", Firmware: "1.2.3"})
	reg := register(t, s)
	chars := s.Descriptor().Characteristics()
	got, err := reg.Read(chars[0].Handle())
	if err != nil || string(got) != "Praxiom Health" {
		t.Errorf("manufacturer = %q, %v", got, err)
	}
	got, _ = reg.Read(chars[3].Handle())
	if string(got) != "1.2.3" {
		t.Errorf("firmware = %q", got)
	}
	if err := reg.Write(chars[0].Handle(), []byte("x")); !errors.Is(err, gatt.ErrWriteNotPermitted) {
		t.Errorf("write error = %v, want ErrWriteNotPermitted", err)
	}
}

type healthFixture struct {
	svc   *Health
	reg   *gatttest.Registrar
	n     *gatttest.Notifier
	conn  *gatttest.Conn
	store *store.Store
	clk   *swtimer.Manual
}

func newHealthFixture(t *testing.T) *healthFixture {
	f := &healthFixture{
		n:     &gatttest.Notifier{},
		conn:  gatttest.NewConn(),
		store: store.NewMemory(),
		clk:   swtimer.NewManual(),
	}
	f.svc = NewHealth(f.n, f.conn, f.store, fixedClock(), f.clk, DefaultHealthNotifyPeriod)
	f.reg = register(t, f.svc)
	return f
}

func (f *healthFixture) connectAndSubscribe() {
	f.conn.Set(1)
	f.svc.OnConnected(1)
	f.svc.OnSubscribe(f.svc.pkg.Handle())
}

func TestAdjustedBioAge(t *testing.T) {
	tests := []struct{ in, want uint16 }{
		{0, 530},
		{100, 180},
		{452, 452},
		{5000, 1200},
	}
	for _, tt := range tests {
		if got := AdjustedBioAge(tt.in); got != tt.want {
			t.Errorf("AdjustedBioAge(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHealthLengthValidation(t *testing.T) {
	f := newHealthFixture(t)
	tests := []struct {
		name   string
		handle uint16
		data   []byte
	}{
		{"bio-age short", f.svc.bioAge.Handle(), []byte{1}},
		{"bio-age long", f.svc.bioAge.Handle(), []byte{1, 2, 3}},
		{"package short", f.svc.pkg.Handle(), []byte{1, 2, 3, 4}},
		{"package long", f.svc.pkg.Handle(), []byte{1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.reg.Write(tt.handle, tt.data)
			if !errors.Is(err, gatt.ErrInvalidAttrValueLen) {
				t.Errorf("error = %v, want ErrInvalidAttrValueLen", err)
			}
		})
	}
	if f.svc.Record() != (store.Health{}) {
		t.Error("rejected writes changed the record")
	}
}

func TestHealthRangeRejection(t *testing.T) {
	f := newHealthFixture(t)
	f.connectAndSubscribe()
	before := f.n.Count()

	writes := [][]byte{
		{0x64, 0x00, 50, 50, 50}, // bio-age 100
		{0xB1, 0x04, 50, 50, 50}, // bio-age 1201
		{0xC4, 0x01, 101, 50, 50},
		{0xC4, 0x01, 50, 50, 200},
	}
	for _, w := range writes {
		if err := f.reg.Write(f.svc.pkg.Handle(), w); err != nil {
			t.Errorf("Write(% x) error = %v, want nil (dropped)", w, err)
		}
	}
	if err := f.reg.Write(f.svc.bioAge.Handle(), []byte{0x10, 0x00}); err != nil {
		t.Errorf("bio-age out-of-range error = %v", err)
	}
	if f.svc.Record() != (store.Health{}) {
		t.Errorf("record changed: %+v", f.svc.Record())
	}
	if f.n.Count() != before {
		t.Error("dropped writes produced notifications")
	}
}

func TestHealthPackageWritePersistsAndNotifies(t *testing.T) {
	f := newHealthFixture(t)
	f.connectAndSubscribe()

	if err := f.reg.Write(f.svc.pkg.Handle(), []byte{0xC4, 0x01, 80, 65, 90}); err != nil {
		t.Fatal(err)
	}
	rec := f.store.LoadHealth()
	if rec.BioAge != 452 || rec.Oral != 80 || rec.Systemic != 65 || rec.Fitness != 90 {
		t.Errorf("stored = %+v", rec)
	}
	if rec.LastSync.IsZero() {
		t.Error("LastSync not stamped")
	}
	last, _ := f.n.Last()
	if !bytes.Equal(last.Data, []byte{0xC4, 0x01, 80, 65, 90}) || last.Handle != f.svc.pkg.Handle() {
		t.Errorf("notification = %+v", last)
	}

	if err := f.reg.Write(f.svc.bioAge.Handle(), []byte{0x2C, 0x01}); err != nil {
		t.Fatal(err)
	}
	last, _ = f.n.Last()
	if !bytes.Equal(last.Data, []byte{0x2C, 0x01, 80, 65, 90}) {
		t.Errorf("bio-age write notification = % x", last.Data)
	}

	got, err := f.reg.Read(f.svc.pkg.Handle())
	if err != nil || !bytes.Equal(got, last.Data) {
		t.Errorf("Read() = % x, %v", got, err)
	}
}

func TestHealthSubscribePushesImmediately(t *testing.T) {
	f := newHealthFixture(t)
	f.conn.Set(1)
	f.svc.OnConnected(1)
	if f.n.Count() != 0 {
		t.Fatal("pushed before subscription")
	}
	f.svc.OnSubscribe(f.svc.pkg.Handle())
	last, ok := f.n.Last()
	if !ok || !bytes.Equal(last.Data, []byte{0x12, 0x02, 0, 0, 0}) {
		t.Errorf("subscribe push = % x, want default bio-age 530", last.Data)
	}
}

func TestHealthPeriodicWhileConnected(t *testing.T) {
	f := newHealthFixture(t)
	f.clk.Advance(10 * time.Minute)
	if f.n.Count() != 0 {
		t.Fatal("periodic push before connection")
	}

	f.connectAndSubscribe()
	base := f.n.Count()
	f.clk.Advance(3 * time.Minute)
	f.clk.Advance(3 * time.Minute)
	if got := f.n.Count() - base; got != 2 {
		t.Errorf("periodic pushes = %d, want 2", got)
	}

	f.svc.OnDisconnected()
	f.conn.Set(gatt.ConnNone)
	if f.svc.ch.Enabled() {
		t.Error("disconnect did not clear subscription")
	}
	after := f.n.Count()
	f.clk.Advance(10 * time.Minute)
	if f.n.Count() != after {
		t.Error("periodic push continued after disconnect")
	}
}
