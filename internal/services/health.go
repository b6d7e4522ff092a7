package services

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/clock"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/store"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

var (
	HealthServiceUUID = uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	BioAgeCharUUID    = uuid.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	PackageCharUUID   = uuid.MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

// Bio-age bounds in deci-years, and the fallback when none was received.
const (
	MinBioAge     uint16 = 180
	MaxBioAge     uint16 = 1200
	DefaultBioAge uint16 = 530
	MaxScore      uint8  = 100

	bioAgeLen  = 2
	packageLen = 5
)

// DefaultHealthNotifyPeriod is how often a connected, subscribed peer gets
// the current health package.
const DefaultHealthNotifyPeriod = 3 * time.Minute

// HealthStore persists the health record.
type HealthStore interface {
	LoadHealth() store.Health
	SaveHealth(h store.Health) error
}

// AdjustedBioAge is the bio-age reported to peers: zero means "not yet
// received" and falls back to DefaultBioAge; the result is clamped to
// MinBioAge..MaxBioAge.
func AdjustedBioAge(deciYears uint16) uint16 {
	if deciYears == 0 {
		deciYears = DefaultBioAge
	}
	return min(max(deciYears, MinBioAge), MaxBioAge)
}

// EncodeHealthPackage packs h with its adjusted bio-age into the 5-byte
// package layout: bio-age (u16), oral, systemic, fitness.
func EncodeHealthPackage(h store.Health) [packageLen]byte {
	var b [packageLen]byte
	binary.LittleEndian.PutUint16(b[0:], AdjustedBioAge(h.BioAge))
	b[2], b[3], b[4] = h.Oral, h.Systemic, h.Fitness
	return b
}

// Health is the custom health data service. The phone writes either a
// bare bio-age or a full package; subscribed peers are notified of the
// package on every accepted write, on subscription, on connection and
// periodically while connected.
type Health struct {
	bioAge *gatt.Characteristic
	pkg    *gatt.Characteristic
	desc   *gatt.ServiceDescriptor
	ch     *gatt.Channel

	store HealthStore
	clock *clock.Clock

	mu       sync.Mutex
	periodic swtimer.Timer
	period   time.Duration
}

// NewHealth returns the service. The periodic timer is created disarmed
// and runs only while a link is up.
func NewHealth(n gatt.Notifier, conn gatt.ConnView, st HealthStore, clk *clock.Clock, timers swtimer.Factory, period time.Duration) *Health {
	if period <= 0 {
		period = DefaultHealthNotifyPeriod
	}
	s := &Health{
		bioAge: gatt.NewCharacteristic(BioAgeCharUUID, gatt.PermWrite),
		pkg:    gatt.NewCharacteristic(PackageCharUUID, gatt.PermRead|gatt.PermWrite|gatt.PermNotify),
		store:  st,
		clock:  clk,
		period: period,
	}
	s.desc = gatt.NewService(HealthServiceUUID, s.bioAge, s.pkg)
	s.ch = gatt.NewChannel(n, conn, s.pkg)
	s.periodic = timers.Every(period, s.NotifyCurrent)
	s.periodic.Stop()
	return s
}

func (s *Health) Descriptor() *gatt.ServiceDescriptor { return s.desc }

func (s *Health) OnAccess(a *gatt.Access) error {
	switch a.Handle {
	case s.bioAge.Handle():
		if err := gatt.ExpectLen(a.Data, bioAgeLen); err != nil {
			return err
		}
		age := binary.LittleEndian.Uint16(a.Data)
		if !validBioAge(age) {
			slog.Debug("[GATT] bio-age write dropped", "deci_years", age)
			return nil
		}
		s.update(func(h *store.Health) { h.BioAge = age })
		return nil

	case s.pkg.Handle():
		if a.Op == gatt.OpRead {
			v := EncodeHealthPackage(s.store.LoadHealth())
			_, err := a.Out.Write(v[:])
			return err
		}
		if err := gatt.ExpectLen(a.Data, packageLen); err != nil {
			return err
		}
		age := binary.LittleEndian.Uint16(a.Data)
		oral, systemic, fitness := a.Data[2], a.Data[3], a.Data[4]
		if !validBioAge(age) || oral > MaxScore || systemic > MaxScore || fitness > MaxScore {
			slog.Debug("[GATT] health package write dropped",
				"deci_years", age, "oral", oral, "systemic", systemic, "fitness", fitness)
			return nil
		}
		s.update(func(h *store.Health) {
			h.BioAge = age
			h.Oral, h.Systemic, h.Fitness = oral, systemic, fitness
		})
		return nil
	}
	return gatt.ErrUnlikely
}

func validBioAge(age uint16) bool {
	return age >= MinBioAge && age <= MaxBioAge
}

// update applies fn to the stored record, stamps the sync time, persists
// and notifies. A failed save is logged and the notification still goes
// out with the previous record.
func (s *Health) update(fn func(*store.Health)) {
	h := s.store.LoadHealth()
	fn(&h)
	h.LastSync = s.clock.Now().UTC().Truncate(time.Second)
	if err := s.store.SaveHealth(h); err != nil {
		slog.Warn("[GATT] saving health record", "error", err)
	} else {
		slog.Info("[GATT] health record updated", "deci_years", h.BioAge)
	}
	s.NotifyCurrent()
}

// NotifyCurrent pushes the current package to a subscribed peer.
func (s *Health) NotifyCurrent() {
	v := EncodeHealthPackage(s.store.LoadHealth())
	if _, err := s.ch.Push(v[:]); err != nil {
		slog.Debug("[GATT] health notify skipped", "error", err)
	}
}

func (s *Health) OnSubscribe(h uint16) {
	if h != s.pkg.Handle() {
		return
	}
	s.ch.SetEnabled(true)
	s.NotifyCurrent()
}

func (s *Health) OnUnsubscribe(h uint16) {
	if h == s.pkg.Handle() {
		s.ch.SetEnabled(false)
	}
}

// OnConnected starts the periodic push and sends the package right away if
// the peer is already subscribed.
func (s *Health) OnConnected(gatt.ConnHandle) {
	s.mu.Lock()
	s.periodic.Reset(s.period)
	s.mu.Unlock()
	s.NotifyCurrent()
}

// OnDisconnected stops the periodic push and clears the subscription.
func (s *Health) OnDisconnected() {
	s.mu.Lock()
	s.periodic.Stop()
	s.mu.Unlock()
	s.ch.SetEnabled(false)
}

// Record returns the stored health record.
func (s *Health) Record() store.Health { return s.store.LoadHealth() }
