// Package system is the activity state machine. One Task drains the message
// queue, decides between running, dimmed and sleeping, and drives the
// display, sensors and BLE layer accordingly.
package system

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/periph"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
	"github.com/chaz8081/praxiom-core/internal/ui"
)

// BLE is the part of the protocol layer the task drives.
type BLE interface {
	StartAdvertising()
	StartDiscovery()
	NotifyBatteryLevel(level uint8)
	EnableRadio() error
	DisableRadio() error
	RadioEnabled() bool
}

// EdgeClassifier turns raw button levels into gesture messages. It runs on
// the task goroutine, never in interrupt context.
type EdgeClassifier interface {
	Edge(pressed bool)
}

// Options tunes the loop.
type Options struct {
	// LoopTimeout bounds the wait for a message so housekeeping still runs
	// on an idle queue.
	LoopTimeout   time.Duration
	BatteryPeriod time.Duration
	TickPeriod    time.Duration
	// DiscoveryTicks is how many OnNewTime ticks follow BleConnected
	// before discovery starts.
	DiscoveryTicks int
	// Pulse is the short haptic used for notifications and charger events.
	Pulse     time.Duration
	MildAlert time.Duration
	HighAlert time.Duration
}

// DefaultOptions returns the stock loop timings.
func DefaultOptions() Options {
	return Options{
		LoopTimeout:    100 * time.Millisecond,
		BatteryPeriod:  10 * time.Minute,
		TickPeriod:     time.Second,
		DiscoveryTicks: 3,
		Pulse:          35 * time.Millisecond,
		MildAlert:      100 * time.Millisecond,
		HighAlert:      300 * time.Millisecond,
	}
}

// Deps are the task's collaborators. Board fields may be nil.
type Deps struct {
	Board    periph.Board
	BLE      BLE
	Settings *config.Settings
	UI       ui.Sink
	Timers   swtimer.Factory
	// Button classifies raw edges. Nil drops ButtonDown and ButtonUp.
	Button   EdgeClassifier
}

// Task is the system task. Only the goroutine calling Step or Run mutates
// it; State and Suppressed may be read from anywhere.
type Task struct {
	queue    *message.Queue
	board    periph.Board
	ble      BLE
	settings *config.Settings
	sink     ui.Sink
	timers   swtimer.Factory
	button   EdgeClassifier
	opts     Options

	mu         sync.Mutex
	state      ActivityState
	suppressed Suppression

	started     bool
	idle        swtimer.Timer
	dim         swtimer.Timer
	battery     swtimer.Timer
	tick        swtimer.Timer
	discArmed   bool
	discTicks   int
	lastPercent int
	charging    bool
}

// NewTask returns a task reading from q. It does nothing until Start.
func NewTask(q *message.Queue, d Deps, opts Options) *Task {
	if d.Timers == nil {
		d.Timers = swtimer.Real
	}
	if d.UI == nil {
		d.UI = ui.NewLogSink(q)
	}
	def := DefaultOptions()
	if opts.DiscoveryTicks <= 0 {
		opts.DiscoveryTicks = def.DiscoveryTicks
	}
	if opts.LoopTimeout <= 0 {
		opts.LoopTimeout = def.LoopTimeout
	}
	return &Task{
		queue:       q,
		board:       d.Board,
		ble:         d.BLE,
		settings:    d.Settings,
		sink:        d.UI,
		timers:      d.Timers,
		button:      d.Button,
		opts:        opts,
		state:       Running,
		lastPercent: -1,
	}
}

// State returns the current activity state.
func (t *Task) State() ActivityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Suppressed returns the sleep suppression flags.
func (t *Task) Suppressed() Suppression {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}

func (t *Task) setState(s ActivityState) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	if prev != s {
		slog.Debug("[SYS] state", "from", prev, "to", s)
	}
}

// Start arms the timers, powers the sensors and takes a first battery
// sample.
func (t *Task) Start() {
	if t.started {
		return
	}
	t.started = true
	dim, idle := t.timeouts()
	t.dim = t.timers.AfterFunc(dim, func() { t.queue.PushMessage(message.TimerDimExpired) })
	t.idle = t.timers.AfterFunc(idle, func() { t.queue.PushMessage(message.TimerIdleExpired) })
	if t.opts.BatteryPeriod > 0 {
		t.battery = t.timers.Every(t.opts.BatteryPeriod, func() { t.queue.PushMessage(message.BatteryTimerExpired) })
	}
	if t.opts.TickPeriod > 0 {
		t.tick = t.timers.Every(t.opts.TickPeriod, func() { t.queue.PushMessage(message.OnNewTime) })
	}
	t.enableSensors()
	if t.board.Battery != nil {
		if r, err := t.board.Battery.Sample(); err == nil {
			t.charging = r.Charging
		}
	}
	t.sampleBattery()
	slog.Info("[SYS] started", "dim", dim, "idle", idle)
}

// Stop disarms every timer.
func (t *Task) Stop() {
	for _, tm := range []swtimer.Timer{t.idle, t.dim, t.battery, t.tick} {
		if tm != nil {
			tm.Stop()
		}
	}
}

// Run loops until ctx ends.
func (t *Task) Run(ctx context.Context) error {
	t.Start()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		t.Step(t.opts.LoopTimeout)
	}
}

// Step runs one iteration: watchdog, housekeeping, then at most one message
// received within wait. It reports whether a message was handled.
func (t *Task) Step(wait time.Duration) bool {
	if t.board.Watchdog != nil {
		t.board.Watchdog.Kick()
	}
	t.housekeeping()
	k, ok := t.queue.Receive(wait)
	if !ok {
		return false
	}
	t.handle(k)
	return true
}

func (t *Task) timeouts() (dim, idle time.Duration) {
	idle = t.settings.ScreenTimeout()
	dim = idle - t.settings.DimLead()
	if dim <= 0 {
		dim = idle
	}
	return dim, idle
}

func (t *Task) resetTimers() {
	dim, idle := t.timeouts()
	t.dim.Reset(dim)
	t.idle.Reset(idle)
}

func (t *Task) housekeeping() {
	if m := t.board.Motion; m != nil {
		if err := m.Update(); err != nil {
			slog.Debug("[SYS] motion update", "error", err)
		}
		if !t.State().Awake() && t.motionWake(m) {
			slog.Debug("[SYS] motion wake")
			t.wake()
		}
	}
	if b := t.board.Battery; b != nil {
		r, err := b.Sample()
		if err == nil && r.Charging != t.charging {
			t.charging = r.Charging
			t.queue.PushMessage(message.ChargingStateChanged)
		}
	}
}

func (t *Task) motionWake(m periph.Motion) bool {
	if t.settings.IsWakeModeOn(config.WakeShake) && m.ShouldShakeWake(t.settings.ShakeThreshold()) {
		return true
	}
	return t.settings.IsWakeModeOn(config.WakeRaiseWrist) && m.ShouldRaiseWake()
}

func (t *Task) handle(k message.Kind) {
	if k != message.OnNewTime {
		slog.Debug("[SYS] message", "kind", k)
	}
	if k.IsInteraction() {
		t.interaction()
	}

	switch k {
	case message.ButtonDown, message.ButtonUp:
		if t.button != nil {
			t.button.Edge(k == message.ButtonDown)
		}
	case message.ButtonPressed:
		t.wakeIf(true)
		t.sink.Push(ui.ButtonPushed)
	case message.ButtonLongPressed:
		t.sink.Push(ui.ButtonLongPressed)
	case message.ButtonLongerPressed:
		t.sink.Push(ui.ButtonLongerPressed)
	case message.ButtonDoubleClicked:
		t.wakeIf(t.settings.IsWakeModeOn(config.WakeDoubleTap))
		t.sink.Push(ui.ButtonDoubleClicked)
	case message.TouchEvent:
		t.wakeIf(t.touchWakes())
		t.sink.Push(ui.TouchEvent)
	case message.UpdateTimeOut:
		t.sink.Push(ui.UpdateTimeOut)

	case message.TimerDimExpired:
		if t.State() == Running && !t.Suppressed().Active() {
			if t.board.Display != nil {
				t.board.Display.SetBrightness(1)
			}
			t.setState(Dimmed)
			t.sink.Push(ui.GoDimmed)
		}
	case message.TimerIdleExpired, message.GoToSleep:
		t.goToSleep()
	case message.SleepAcknowledged:
		if t.State() == GoingToSleep {
			t.enterSleep()
		}
	case message.GoToRunning:
		t.wakeIf(true)

	case message.BleConnected:
		t.discArmed = true
		t.discTicks = 0
		t.sink.Push(ui.BleStateChanged)
	case message.BleDisconnected:
		t.discArmed = false
		t.sink.Push(ui.BleStateChanged)
	case message.OnNewTime:
		t.onTick()

	case message.NewNotificationArrived:
		if !t.settings.NotificationsEnabled() {
			return
		}
		t.vibrate(t.opts.Pulse)
		t.alerted()
		t.sink.Push(ui.NewNotification)
	case message.NewIncomingCall:
		if t.board.Motor != nil {
			t.board.Motor.StartRinging()
		}
		t.alerted()
		t.sink.Push(ui.IncomingCall)
	case message.PairingRequested:
		t.alerted()
		t.sink.Push(ui.PairingRequested)
	case message.ImmediateAlertMild:
		t.vibrate(t.opts.MildAlert)
	case message.ImmediateAlertHigh:
		t.vibrate(t.opts.HighAlert)

	case message.BatteryTimerExpired:
		t.sampleBattery()
	case message.ChargingStateChanged:
		t.vibrate(t.opts.Pulse)
		t.sampleBattery()
		if t.State().Awake() {
			t.resetTimers()
		}
	case message.RadioToggleRequested:
		t.toggleRadio()

	case message.FirmwareUpdateStarted:
		t.setSuppression(func(s *Suppression) { s.FirmwareUpdate = true })
		t.alerted()
		t.sink.Push(ui.FirmwareUpdateStarted)
	case message.FirmwareUpdateFinished:
		t.setSuppression(func(s *Suppression) { s.FirmwareUpdate = false })
		t.sink.Push(ui.FirmwareUpdateFinished)
	case message.FileTransferStarted:
		t.setSuppression(func(s *Suppression) { s.FileTransfer = true })
	case message.FileTransferFinished:
		t.setSuppression(func(s *Suppression) { s.FileTransfer = false })
	}
}

// interaction restores brightness and restarts the timeouts. Nothing is
// re-armed on the way to or in sleep.
func (t *Task) interaction() {
	switch t.State() {
	case Dimmed:
		t.undim()
		t.resetTimers()
	case Running:
		t.resetTimers()
	}
}

func (t *Task) undim() {
	if t.board.Display != nil {
		t.board.Display.SetBrightness(t.settings.Brightness())
	}
	t.setState(Running)
	t.sink.Push(ui.RestoreBrightness)
}

// alerted wakes the watch for something the wearer should see.
func (t *Task) alerted() {
	switch t.State() {
	case Dimmed:
		t.undim()
		t.resetTimers()
	case Running:
		t.resetTimers()
	default:
		t.wake()
	}
}

func (t *Task) wakeIf(ok bool) {
	if ok && !t.State().Awake() {
		t.wake()
	}
}

func (t *Task) touchWakes() bool {
	if t.board.Touch == nil {
		return false
	}
	info := t.board.Touch.Info()
	if !info.Valid {
		return false
	}
	switch info.Gesture {
	case periph.GestureSingleTap:
		return t.settings.IsWakeModeOn(config.WakeSingleTap)
	case periph.GestureDoubleTap:
		return t.settings.IsWakeModeOn(config.WakeDoubleTap)
	}
	return false
}

func (t *Task) goToSleep() {
	if !t.State().Awake() {
		return
	}
	if t.Suppressed().Active() {
		slog.Debug("[SYS] sleep suppressed", "flags", t.Suppressed())
		return
	}
	t.setState(GoingToSleep)
	t.sink.Push(ui.GoSleep)
}

func (t *Task) enterSleep() {
	t.idle.Stop()
	t.dim.Stop()
	if d := t.board.Display; d != nil {
		if err := d.Sleep(); err != nil {
			slog.Warn("[SYS] display sleep", "error", err)
		}
	}
	if s := t.board.HeartRate; s != nil {
		if err := s.Disable(); err != nil {
			slog.Warn("[SYS] heart rate disable", "error", err)
		}
	}
	if m := t.board.Motion; m != nil && !t.motionWakeConfigured() {
		if err := m.Disable(); err != nil {
			slog.Warn("[SYS] motion disable", "error", err)
		}
	}
	if f := t.board.Flash; f != nil {
		if err := f.Sleep(); err != nil {
			slog.Warn("[SYS] flash sleep", "error", err)
		}
	}
	t.setState(Sleeping)
	slog.Info("[SYS] sleeping")
}

func (t *Task) motionWakeConfigured() bool {
	return t.settings.IsWakeModeOn(config.WakeShake) || t.settings.IsWakeModeOn(config.WakeRaiseWrist)
}

func (t *Task) wake() {
	if f := t.board.Flash; f != nil {
		if err := f.Wakeup(); err != nil {
			slog.Warn("[SYS] flash wakeup", "error", err)
		}
	}
	if d := t.board.Display; d != nil {
		if err := d.Wakeup(); err != nil {
			slog.Warn("[SYS] display wakeup", "error", err)
		}
		d.SetBrightness(t.settings.Brightness())
	}
	t.enableSensors()
	t.ble.StartAdvertising()
	t.setState(Running)
	t.resetTimers()
	t.sink.Push(ui.GoRunning)
	t.sink.Push(ui.BleStateChanged)
	slog.Info("[SYS] running")
}

func (t *Task) enableSensors() {
	if s := t.board.HeartRate; s != nil {
		if err := s.Enable(); err != nil {
			slog.Warn("[SYS] heart rate enable", "error", err)
		}
	}
	if m := t.board.Motion; m != nil {
		if err := m.Enable(); err != nil {
			slog.Warn("[SYS] motion enable", "error", err)
		}
	}
}

func (t *Task) onTick() {
	if t.State().Awake() {
		t.sink.Push(ui.ClockTick)
	}
	if !t.discArmed {
		return
	}
	t.discTicks++
	if t.discTicks >= t.opts.DiscoveryTicks {
		t.discArmed = false
		slog.Debug("[SYS] starting discovery")
		t.ble.StartDiscovery()
	}
}

func (t *Task) sampleBattery() {
	if t.board.Battery == nil {
		return
	}
	r, err := t.board.Battery.Sample()
	if err != nil {
		slog.Warn("[SYS] battery sample", "error", err)
		return
	}
	if int(r.Percent) == t.lastPercent {
		return
	}
	t.lastPercent = int(r.Percent)
	t.ble.NotifyBatteryLevel(r.Percent)
	t.sink.Push(ui.BatteryUpdated)
}

func (t *Task) vibrate(d time.Duration) {
	if t.board.Motor != nil && d > 0 {
		t.board.Motor.RunFor(d)
	}
}

func (t *Task) toggleRadio() {
	if t.ble.RadioEnabled() {
		if err := t.ble.DisableRadio(); err != nil {
			slog.Error("[SYS] radio off", "error", err)
		}
	} else {
		if err := t.ble.EnableRadio(); err != nil {
			slog.Error("[SYS] radio on", "error", err)
			return
		}
		t.ble.StartAdvertising()
	}
	t.sink.Push(ui.BleRadioChanged)
}

// setSuppression applies fn. Clearing the last flag restarts the timeouts
// from now.
func (t *Task) setSuppression(fn func(*Suppression)) {
	t.mu.Lock()
	was := t.suppressed.Active()
	fn(&t.suppressed)
	now := t.suppressed.Active()
	t.mu.Unlock()
	if was && !now && t.State().Awake() {
		t.resetTimers()
	}
}
