package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/praxiom-core/internal/button"
	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/periph"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
	"github.com/chaz8081/praxiom-core/internal/ui"
)

type fakeBLE struct {
	mu          sync.Mutex
	advStarts   int
	discoveries int
	levels      []uint8
	radio       bool
	radioCalls  []string
}

func (b *fakeBLE) StartAdvertising() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.radio {
		b.advStarts++
	}
}

func (b *fakeBLE) StartDiscovery() {
	b.mu.Lock()
	b.discoveries++
	b.mu.Unlock()
}

func (b *fakeBLE) NotifyBatteryLevel(level uint8) {
	b.mu.Lock()
	b.levels = append(b.levels, level)
	b.mu.Unlock()
}

func (b *fakeBLE) EnableRadio() error {
	b.mu.Lock()
	b.radio = true
	b.radioCalls = append(b.radioCalls, "enable")
	b.mu.Unlock()
	return nil
}

func (b *fakeBLE) DisableRadio() error {
	b.mu.Lock()
	b.radio = false
	b.radioCalls = append(b.radioCalls, "disable")
	b.mu.Unlock()
	return nil
}

func (b *fakeBLE) RadioEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.radio
}

var _ BLE = (*fakeBLE)(nil)

type fixture struct {
	q      *message.Queue
	board  *periph.SimBoard
	ble    *fakeBLE
	rec    *ui.Recorder
	timers *swtimer.Manual
	task   *Task
}

func settings(notifications bool, modes ...config.WakeMode) *config.Settings {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return config.NewSettings(config.SettingsConfig{
		WakeModes:      names,
		ScreenTimeout:  config.Duration(15 * time.Second),
		DimLead:        config.Duration(5 * time.Second),
		Notifications:  notifications,
		ShakeThreshold: 150,
		Brightness:     2,
	})
}

// newFixture starts a task with dim at 10s and idle at 15s. The periodic
// tick and battery timers are off so long waits cannot flood the queue.
func newFixture(t *testing.T, s *config.Settings) *fixture {
	t.Helper()
	f := &fixture{
		q:      message.NewQueue(32),
		board:  periph.NewSimBoard(),
		ble:    &fakeBLE{radio: true},
		timers: swtimer.NewManual(),
	}
	f.rec = ui.NewRecorder(f.q)
	f.rec.AutoAck = true
	opts := DefaultOptions()
	opts.TickPeriod = 0
	opts.BatteryPeriod = 0
	f.task = NewTask(f.q, Deps{
		Board:    f.board.Board,
		BLE:      f.ble,
		Settings: s,
		UI:       f.rec,
		Timers:   f.timers,
		Button:   button.New(f.q, f.timers, button.DefaultOptions()),
	}, opts)
	f.task.Start()
	return f
}

func (f *fixture) drain() {
	for f.task.Step(0) {
	}
}

func (f *fixture) send(k message.Kind) {
	f.q.PushMessage(k)
	f.drain()
}

func (f *fixture) advance(d time.Duration) {
	f.timers.Advance(d)
	f.drain()
}

func (f *fixture) sleep(t *testing.T) {
	t.Helper()
	f.send(message.GoToSleep)
	if got := f.task.State(); got != Sleeping {
		t.Fatalf("state after GoToSleep = %v, want Sleeping", got)
	}
	f.rec.Reset()
}

func TestIdleDimSleepSequence(t *testing.T) {
	f := newFixture(t, settings(true))

	f.advance(9 * time.Second)
	if got := f.task.State(); got != Running {
		t.Fatalf("state at 9s = %v, want Running", got)
	}

	f.advance(time.Second)
	if got := f.task.State(); got != Dimmed {
		t.Fatalf("state at 10s = %v, want Dimmed", got)
	}
	if got := f.board.SimDisplay.Brightness(); got != 1 {
		t.Errorf("brightness while dimmed = %d, want 1", got)
	}

	f.advance(5 * time.Second)
	if got := f.task.State(); got != Sleeping {
		t.Fatalf("state at 15s = %v, want Sleeping", got)
	}
	if !f.board.SimDisplay.Asleep() {
		t.Error("display should be asleep")
	}
	if f.board.SimHR.Enabled() {
		t.Error("heart rate sensor should be disabled")
	}
	if f.board.Journal.Count("flash.sleep") != 1 {
		t.Error("flash should be put to sleep once")
	}
	if !f.rec.Contains(ui.GoDimmed) || !f.rec.Contains(ui.GoSleep) {
		t.Errorf("ui events = %v, want GoDimmed and GoSleep", f.rec.Events())
	}
}

func TestRawButtonEdgesBecomeGestures(t *testing.T) {
	f := newFixture(t, settings(true))
	f.sleep(t)

	f.send(message.ButtonDown)
	if got := f.task.State(); got != Sleeping {
		t.Fatalf("state after press edge = %v, want Sleeping", got)
	}
	f.send(message.ButtonUp)
	if got := f.task.State(); got != Running {
		t.Fatalf("state after release edge = %v, want Running", got)
	}
	if !f.rec.Contains(ui.ButtonPushed) {
		t.Errorf("ui events = %v, want ButtonPushed", f.rec.Events())
	}

	f.advance(time.Second)
	f.rec.Reset()
	f.send(message.ButtonDown)
	f.advance(500 * time.Millisecond)
	f.send(message.ButtonUp)
	if got := f.rec.Events(); len(got) != 1 || got[0] != ui.ButtonLongPressed {
		t.Errorf("ui events = %v, want [ButtonLongPressed]", got)
	}
}

func TestRawButtonEdgesWithoutClassifier(t *testing.T) {
	q := message.NewQueue(4)
	task := NewTask(q, Deps{Board: periph.NewSimBoard().Board, BLE: &fakeBLE{}, Settings: settings(true), Timers: swtimer.NewManual()}, DefaultOptions())
	q.PushMessage(message.ButtonDown)
	q.PushMessage(message.ButtonUp)
	for task.Step(0) {
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestScreenTimeoutChangeRearmsTimers(t *testing.T) {
	s := settings(true)
	f := newFixture(t, s)
	f.advance(5 * time.Second)

	if !s.SetScreenTimeout(30 * time.Second) {
		t.Fatal("SetScreenTimeout(30s) rejected")
	}
	f.send(message.UpdateTimeOut)
	if !f.rec.Contains(ui.UpdateTimeOut) {
		t.Errorf("ui events = %v, want UpdateTimeOut", f.rec.Events())
	}

	f.advance(20 * time.Second)
	if got := f.task.State(); got != Running {
		t.Fatalf("state 20s after change = %v, want Running", got)
	}
	f.advance(10 * time.Second)
	if got := f.task.State(); got != Sleeping {
		t.Fatalf("state 30s after change = %v, want Sleeping", got)
	}
}

func TestGoingToSleepWaitsForAcknowledge(t *testing.T) {
	f := newFixture(t, settings(true))
	f.rec.AutoAck = false

	f.send(message.GoToSleep)
	if got := f.task.State(); got != GoingToSleep {
		t.Fatalf("state = %v, want GoingToSleep", got)
	}
	if f.board.SimDisplay.Asleep() {
		t.Fatal("display slept before acknowledging")
	}

	f.rec.Ack()
	f.drain()
	if got := f.task.State(); got != Sleeping {
		t.Fatalf("state after ack = %v, want Sleeping", got)
	}
}

func TestInteractionResetsTimers(t *testing.T) {
	f := newFixture(t, settings(true))

	f.advance(9 * time.Second)
	f.send(message.ButtonLongPressed)
	f.advance(9 * time.Second)
	if got := f.task.State(); got != Running {
		t.Fatalf("state 9s after interaction = %v, want Running", got)
	}

	f.advance(time.Second)
	if got := f.task.State(); got != Dimmed {
		t.Fatalf("state 10s after interaction = %v, want Dimmed", got)
	}

	f.board.SimTouch.Set(periph.TouchInfo{Valid: true, Gesture: periph.GestureSlideUp})
	f.send(message.TouchEvent)
	if got := f.task.State(); got != Running {
		t.Fatalf("state after touch = %v, want Running", got)
	}
	if got := f.board.SimDisplay.Brightness(); got != 2 {
		t.Errorf("brightness after touch = %d, want 2", got)
	}

	f.advance(14 * time.Second)
	if got := f.task.State(); got == GoingToSleep || got == Sleeping {
		t.Fatalf("slept 14s after touch, state %v", got)
	}
}

func TestInteractionWhileAsleepArmsNothing(t *testing.T) {
	f := newFixture(t, settings(true))
	f.sleep(t)
	if got := f.timers.Armed(); got != 0 {
		t.Fatalf("armed timers while asleep = %d, want 0", got)
	}
	f.send(message.ButtonLongPressed)
	if got := f.timers.Armed(); got != 0 {
		t.Errorf("armed timers after long press in sleep = %d, want 0", got)
	}
	if got := f.task.State(); got != Sleeping {
		t.Errorf("state = %v, want Sleeping", got)
	}
}

func TestWakeTriggers(t *testing.T) {
	tests := []struct {
		name    string
		notify  bool
		modes   []config.WakeMode
		gesture periph.Gesture
		kind    message.Kind
		want    bool
	}{
		{name: "button", kind: message.ButtonPressed, want: true},
		{name: "single tap configured", modes: []config.WakeMode{config.WakeSingleTap}, gesture: periph.GestureSingleTap, kind: message.TouchEvent, want: true},
		{name: "single tap not configured", modes: []config.WakeMode{config.WakeDoubleTap}, gesture: periph.GestureSingleTap, kind: message.TouchEvent},
		{name: "double tap configured", modes: []config.WakeMode{config.WakeDoubleTap}, gesture: periph.GestureDoubleTap, kind: message.TouchEvent, want: true},
		{name: "swipe never wakes", modes: []config.WakeMode{config.WakeSingleTap, config.WakeDoubleTap}, gesture: periph.GestureSlideLeft, kind: message.TouchEvent},
		{name: "double click configured", modes: []config.WakeMode{config.WakeDoubleTap}, kind: message.ButtonDoubleClicked, want: true},
		{name: "double click not configured", kind: message.ButtonDoubleClicked},
		{name: "long press", kind: message.ButtonLongPressed},
		{name: "notification", notify: true, kind: message.NewNotificationArrived, want: true},
		{name: "notification disabled", kind: message.NewNotificationArrived},
		{name: "incoming call", kind: message.NewIncomingCall, want: true},
		{name: "pairing", kind: message.PairingRequested, want: true},
		{name: "firmware update", kind: message.FirmwareUpdateStarted, want: true},
		{name: "explicit wake", kind: message.GoToRunning, want: true},
		{name: "battery timer", kind: message.BatteryTimerExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, settings(tt.notify, tt.modes...))
			f.sleep(t)
			f.board.SimTouch.Set(periph.TouchInfo{Valid: true, Gesture: tt.gesture})

			f.send(tt.kind)

			woke := f.task.State() == Running
			if woke != tt.want {
				t.Fatalf("woke = %v, want %v (state %v)", woke, tt.want, f.task.State())
			}
			if !tt.want {
				return
			}
			if f.board.SimDisplay.Asleep() {
				t.Error("display still asleep")
			}
			if got := f.ble.advStarts; got != 1 {
				t.Errorf("advertising starts = %d, want 1", got)
			}
			if !f.rec.Contains(ui.GoRunning) {
				t.Errorf("ui events = %v, want GoRunning", f.rec.Events())
			}
			if got := f.timers.Armed(); got != 2 {
				t.Errorf("armed timers after wake = %d, want 2", got)
			}
		})
	}
}

func TestMotionWake(t *testing.T) {
	tests := []struct {
		name      string
		modes     []config.WakeMode
		gesture   func(*periph.SimMotion)
		want      bool
		motionOff bool
	}{
		{"shake", []config.WakeMode{config.WakeShake}, (*periph.SimMotion).Shake, true, false},
		{"raise wrist", []config.WakeMode{config.WakeRaiseWrist}, (*periph.SimMotion).RaiseWrist, true, false},
		{"shake not configured", []config.WakeMode{config.WakeRaiseWrist}, (*periph.SimMotion).Shake, false, false},
		{"no motion modes", []config.WakeMode{config.WakeSingleTap}, (*periph.SimMotion).Shake, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, settings(true, tt.modes...))
			f.sleep(t)
			if got := !f.board.SimMotion.Enabled(); got != tt.motionOff {
				t.Fatalf("motion disabled in sleep = %v, want %v", got, tt.motionOff)
			}

			tt.gesture(f.board.SimMotion)
			f.task.Step(0)

			if woke := f.task.State() == Running; woke != tt.want {
				t.Errorf("woke = %v, want %v", woke, tt.want)
			}
		})
	}
}

func TestSleepSuppression(t *testing.T) {
	f := newFixture(t, settings(true))

	f.send(message.FirmwareUpdateStarted)
	if !f.task.Suppressed().FirmwareUpdate {
		t.Fatal("firmware update flag not set")
	}

	f.advance(60 * time.Second)
	if got := f.task.State(); got != Running {
		t.Fatalf("state during update = %v, want Running", got)
	}
	f.send(message.GoToSleep)
	if got := f.task.State(); got != Running {
		t.Fatalf("GoToSleep during update moved to %v", got)
	}

	f.send(message.FirmwareUpdateFinished)
	if f.task.Suppressed().Active() {
		t.Fatal("suppression still active")
	}
	if got := f.task.State(); got != Running {
		t.Fatalf("clearing the flag moved to %v", got)
	}

	f.advance(14 * time.Second)
	if got := f.task.State(); got == Sleeping || got == GoingToSleep {
		t.Fatalf("slept %v after the flag cleared", 14*time.Second)
	}
	f.advance(time.Second)
	if got := f.task.State(); got != Sleeping {
		t.Fatalf("state 15s after the flag cleared = %v, want Sleeping", got)
	}
}

func TestFileTransferSuppression(t *testing.T) {
	f := newFixture(t, settings(true))
	f.send(message.FileTransferStarted)
	f.send(message.FirmwareUpdateStarted)
	f.send(message.FirmwareUpdateFinished)

	f.advance(30 * time.Second)
	if got := f.task.State(); got != Running {
		t.Fatalf("state with a transfer running = %v, want Running", got)
	}

	f.send(message.FileTransferFinished)
	f.advance(15 * time.Second)
	if got := f.task.State(); got != Sleeping {
		t.Fatalf("state after the transfer = %v, want Sleeping", got)
	}
}

func TestDiscoveryDebounce(t *testing.T) {
	tests := []struct {
		name  string
		steps []message.Kind
		want  int
	}{
		{
			name:  "same tick",
			steps: []message.Kind{message.BleConnected},
			want:  0,
		},
		{
			name:  "two ticks",
			steps: []message.Kind{message.BleConnected, message.OnNewTime, message.OnNewTime},
			want:  0,
		},
		{
			name:  "third tick",
			steps: []message.Kind{message.BleConnected, message.OnNewTime, message.OnNewTime, message.OnNewTime},
			want:  1,
		},
		{
			name:  "fires once",
			steps: []message.Kind{message.BleConnected, message.OnNewTime, message.OnNewTime, message.OnNewTime, message.OnNewTime, message.OnNewTime},
			want:  1,
		},
		{
			name:  "disconnect cancels",
			steps: []message.Kind{message.BleConnected, message.OnNewTime, message.OnNewTime, message.BleDisconnected, message.OnNewTime, message.OnNewTime},
			want:  0,
		},
		{
			name:  "reconnect restarts count",
			steps: []message.Kind{message.BleConnected, message.OnNewTime, message.OnNewTime, message.BleDisconnected, message.BleConnected, message.OnNewTime, message.OnNewTime, message.OnNewTime},
			want:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, settings(true))
			for _, k := range tt.steps {
				f.send(k)
			}
			if got := f.ble.discoveries; got != tt.want {
				t.Errorf("discoveries = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBatteryNotifiesOnChange(t *testing.T) {
	f := newFixture(t, settings(true))
	if len(f.ble.levels) != 1 || f.ble.levels[0] != 100 {
		t.Fatalf("levels after start = %v, want [100]", f.ble.levels)
	}

	f.send(message.BatteryTimerExpired)
	if len(f.ble.levels) != 1 {
		t.Fatalf("unchanged level notified again: %v", f.ble.levels)
	}

	f.board.SimBattery.Set(periph.BatteryReading{Millivolts: 3800, Percent: 80})
	f.send(message.BatteryTimerExpired)
	if len(f.ble.levels) != 2 || f.ble.levels[1] != 80 {
		t.Fatalf("levels = %v, want [100 80]", f.ble.levels)
	}
	if !f.rec.Contains(ui.BatteryUpdated) {
		t.Error("BatteryUpdated not forwarded")
	}
}

func TestChargingStateChange(t *testing.T) {
	f := newFixture(t, settings(true))
	f.board.SimBattery.Set(periph.BatteryReading{Millivolts: 4100, Percent: 100, Charging: true, PowerPresent: true})

	if !f.task.Step(0) {
		t.Fatal("charging change was not queued")
	}
	if got := f.board.Journal.Count("motor.run 35ms"); got != 1 {
		t.Errorf("haptic pulses = %d, want 1", got)
	}
	if got := f.task.State(); got != Running {
		t.Errorf("state = %v, want Running", got)
	}
	if f.task.Step(0) {
		t.Error("unchanged charging state queued another message")
	}
}

func TestImmediateAlertVibrates(t *testing.T) {
	f := newFixture(t, settings(true))
	f.send(message.ImmediateAlertMild)
	f.send(message.ImmediateAlertHigh)
	if f.board.Journal.Count("motor.run 100ms") != 1 || f.board.Journal.Count("motor.run 300ms") != 1 {
		t.Errorf("motor commands = %v", f.board.Journal.Commands())
	}
}

func TestRadioToggle(t *testing.T) {
	f := newFixture(t, settings(true))

	f.send(message.RadioToggleRequested)
	if f.ble.RadioEnabled() {
		t.Fatal("radio still on after first toggle")
	}
	f.send(message.RadioToggleRequested)
	if !f.ble.RadioEnabled() {
		t.Fatal("radio off after second toggle")
	}

	want := []string{"disable", "enable"}
	if len(f.ble.radioCalls) != len(want) {
		t.Fatalf("radio calls = %v, want %v", f.ble.radioCalls, want)
	}
	for i := range want {
		if f.ble.radioCalls[i] != want[i] {
			t.Errorf("radio call %d = %q, want %q", i, f.ble.radioCalls[i], want[i])
		}
	}
	if f.ble.advStarts != 1 {
		t.Errorf("advertising starts = %d, want 1", f.ble.advStarts)
	}
}

func TestWatchdogKickedEveryIteration(t *testing.T) {
	f := newFixture(t, settings(true))
	for i := 0; i < 3; i++ {
		f.task.Step(0)
	}
	f.q.PushMessage(message.ButtonLongPressed)
	f.task.Step(0)
	if got := f.board.SimWatchdog.Kicks(); got != 4 {
		t.Errorf("kicks = %d, want 4", got)
	}
}

func TestTickTimerFeedsQueue(t *testing.T) {
	f := newFixture(t, settings(true))
	tick := f.timers.Every(time.Second, func() { f.q.PushMessage(message.OnNewTime) })
	defer tick.Stop()

	f.send(message.BleConnected)
	f.advance(3 * time.Second)
	if f.ble.discoveries != 1 {
		t.Errorf("discoveries after 3 ticks = %d, want 1", f.ble.discoveries)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	q := message.NewQueue(8)
	board := periph.NewSimBoard()
	opts := DefaultOptions()
	opts.LoopTimeout = time.Millisecond
	task := NewTask(q, Deps{
		Board:    board.Board,
		BLE:      &fakeBLE{radio: true},
		Settings: settings(true),
		Timers:   swtimer.NewManual(),
	}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	q.PushMessage(message.ButtonPressed)
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if board.SimWatchdog.Kicks() == 0 {
		t.Error("watchdog never kicked")
	}
}

func TestActivityStateString(t *testing.T) {
	if Dimmed.String() != "Dimmed" || ActivityState(9).String() != "ActivityState(9)" {
		t.Errorf("unexpected names %q %q", Dimmed, ActivityState(9))
	}
}
