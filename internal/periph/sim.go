package periph

import (
	"fmt"
	"sync"
	"time"
)

// Journal records the commands a simulated board receives, in order.
type Journal struct {
	mu   sync.Mutex
	cmds []string
}

func (j *Journal) add(format string, args ...any) {
	j.mu.Lock()
	j.cmds = append(j.cmds, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

// Commands returns a copy of every recorded command.
func (j *Journal) Commands() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.cmds))
	copy(out, j.cmds)
	return out
}

// Count returns how many times cmd was recorded.
func (j *Journal) Count(cmd string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, c := range j.cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

// Reset forgets recorded commands.
func (j *Journal) Reset() {
	j.mu.Lock()
	j.cmds = nil
	j.mu.Unlock()
}

// SimDisplay records sleep, wake and brightness commands.
type SimDisplay struct {
	j          *Journal
	mu         sync.Mutex
	asleep     bool
	brightness uint8
}

func (d *SimDisplay) Sleep() error {
	d.mu.Lock()
	d.asleep = true
	d.mu.Unlock()
	d.j.add("display.sleep")
	return nil
}

func (d *SimDisplay) Wakeup() error {
	d.mu.Lock()
	d.asleep = false
	d.mu.Unlock()
	d.j.add("display.wakeup")
	return nil
}

func (d *SimDisplay) SetBrightness(level uint8) {
	d.mu.Lock()
	d.brightness = level
	d.mu.Unlock()
	d.j.add("display.brightness %d", level)
}

func (d *SimDisplay) Asleep() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asleep
}

func (d *SimDisplay) Brightness() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness
}

// SimSensor records enable and disable.
type SimSensor struct {
	j       *Journal
	name    string
	mu      sync.Mutex
	enabled bool
}

func (s *SimSensor) Enable() error {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	s.j.add("%s.enable", s.name)
	return nil
}

func (s *SimSensor) Disable() error {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	s.j.add("%s.disable", s.name)
	return nil
}

func (s *SimSensor) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SimMotion is a sensor whose wake gestures are armed by tests. An armed
// gesture is reported once.
type SimMotion struct {
	SimSensor
	shake, raise bool
	updates      int
}

func (m *SimMotion) Update() error {
	m.mu.Lock()
	m.updates++
	m.mu.Unlock()
	return nil
}

func (m *SimMotion) ShouldShakeWake(uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	hit := m.shake
	m.shake = false
	return hit
}

func (m *SimMotion) ShouldRaiseWake() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	hit := m.raise
	m.raise = false
	return hit
}

// Shake arms a shake gesture.
func (m *SimMotion) Shake() {
	m.mu.Lock()
	m.shake = true
	m.mu.Unlock()
}

// RaiseWrist arms a wrist-raise gesture.
func (m *SimMotion) RaiseWrist() {
	m.mu.Lock()
	m.raise = true
	m.mu.Unlock()
}

// Updates returns how many times Update was called.
func (m *SimMotion) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// SimTouch reports whatever contact was last set.
type SimTouch struct {
	mu   sync.Mutex
	info TouchInfo
}

func (t *SimTouch) Info() TouchInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Set replaces the reported contact.
func (t *SimTouch) Set(info TouchInfo) {
	t.mu.Lock()
	t.info = info
	t.mu.Unlock()
}

// SimBattery reports a settable reading.
type SimBattery struct {
	mu      sync.Mutex
	reading BatteryReading
	samples int
}

func (b *SimBattery) Sample() (BatteryReading, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples++
	return b.reading, nil
}

// Set replaces the reported reading.
func (b *SimBattery) Set(r BatteryReading) {
	b.mu.Lock()
	b.reading = r
	b.mu.Unlock()
}

// Samples returns how many times Sample was called.
func (b *SimBattery) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// SimMotor records vibration commands.
type SimMotor struct{ j *Journal }

func (m *SimMotor) RunFor(d time.Duration) { m.j.add("motor.run %s", d) }
func (m *SimMotor) StartRinging()          { m.j.add("motor.ring") }
func (m *SimMotor) StopRinging()           { m.j.add("motor.stop") }

// SimFlash records sleep and wake.
type SimFlash struct{ j *Journal }

func (f *SimFlash) Sleep() error  { f.j.add("flash.sleep"); return nil }
func (f *SimFlash) Wakeup() error { f.j.add("flash.wakeup"); return nil }

// SimWatchdog counts kicks.
type SimWatchdog struct {
	mu    sync.Mutex
	kicks int
}

func (w *SimWatchdog) Kick() {
	w.mu.Lock()
	w.kicks++
	w.mu.Unlock()
}

func (w *SimWatchdog) Kicks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kicks
}

// SimRadio tracks the power switch.
type SimRadio struct {
	j  *Journal
	mu sync.Mutex
	on bool
}

func (r *SimRadio) SetPower(on bool) error {
	r.mu.Lock()
	r.on = on
	r.mu.Unlock()
	r.j.add("radio.power %t", on)
	return nil
}

func (r *SimRadio) Powered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// SimIdentity returns a fixed device ID.
type SimIdentity struct{ ID []byte }

func (i SimIdentity) DeviceID() []byte { return i.ID }

// SimBoard is a fully simulated board. Every part is exported so tests and
// the desktop console can drive inputs and inspect commands.
type SimBoard struct {
	Board
	Journal *Journal

	SimDisplay  *SimDisplay
	SimHR       *SimSensor
	SimMotion   *SimMotion
	SimTouch    *SimTouch
	SimBattery  *SimBattery
	SimWatchdog *SimWatchdog
	SimRadio    *SimRadio
}

// NewSimBoard returns a powered-on simulated board with a full battery.
func NewSimBoard() *SimBoard {
	j := &Journal{}
	sb := &SimBoard{
		Journal:     j,
		SimDisplay:  &SimDisplay{j: j, brightness: 2},
		SimHR:       &SimSensor{j: j, name: "hr"},
		SimMotion:   &SimMotion{SimSensor: SimSensor{j: j, name: "motion"}},
		SimTouch:    &SimTouch{},
		SimBattery:  &SimBattery{reading: BatteryReading{Millivolts: 4100, Percent: 100}},
		SimWatchdog: &SimWatchdog{},
		SimRadio:    &SimRadio{j: j, on: true},
	}
	sb.Board = Board{
		Display:   sb.SimDisplay,
		HeartRate: sb.SimHR,
		Motion:    sb.SimMotion,
		Touch:     sb.SimTouch,
		Battery:   sb.SimBattery,
		Motor:     &SimMotor{j: j},
		Flash:     &SimFlash{j: j},
		Watchdog:  sb.SimWatchdog,
		Radio:     sb.SimRadio,
		Identity:  SimIdentity{ID: []byte("praxiom-sim-0001")},
	}
	return sb
}
