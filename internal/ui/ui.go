// Package ui is the boundary to the display task. The control core only
// emits events; rendering lives elsewhere.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/praxiom-core/internal/message"
)

// Event is a directive or notice for the display task.
type Event uint8

const (
	GoRunning Event = iota
	GoDimmed
	GoSleep
	RestoreBrightness
	BleStateChanged
	BleRadioChanged
	NewNotification
	IncomingCall
	PairingRequested
	ButtonPushed
	ButtonLongPressed
	ButtonLongerPressed
	ButtonDoubleClicked
	TouchEvent
	ClockTick
	BatteryUpdated
	FirmwareUpdateStarted
	FirmwareUpdateFinished
	UpdateTimeOut
	numEvents
)

var eventNames = [numEvents]string{
	GoRunning:              "GoRunning",
	GoDimmed:               "GoDimmed",
	GoSleep:                "GoSleep",
	RestoreBrightness:      "RestoreBrightness",
	BleStateChanged:        "BleStateChanged",
	BleRadioChanged:        "BleRadioChanged",
	NewNotification:        "NewNotification",
	IncomingCall:           "IncomingCall",
	PairingRequested:       "PairingRequested",
	ButtonPushed:           "ButtonPushed",
	ButtonLongPressed:      "ButtonLongPressed",
	ButtonLongerPressed:    "ButtonLongerPressed",
	ButtonDoubleClicked:    "ButtonDoubleClicked",
	TouchEvent:             "TouchEvent",
	ClockTick:              "ClockTick",
	BatteryUpdated:         "BatteryUpdated",
	FirmwareUpdateStarted:  "FirmwareUpdateStarted",
	FirmwareUpdateFinished: "FirmwareUpdateFinished",
	UpdateTimeOut:          "UpdateTimeOut",
}

func (e Event) String() string {
	if e < numEvents {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

// Sink receives UI events. Push must not block.
type Sink interface {
	Push(e Event)
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*Recorder)(nil)
)

// LogSink logs events and plays the display's part in the sleep handshake:
// it answers GoSleep with SleepAcknowledged on the system queue.
type LogSink struct {
	sys   message.Pusher
	level slog.Level
}

// NewLogSink returns a sink that acknowledges sleep through sys.
func NewLogSink(sys message.Pusher) *LogSink {
	return &LogSink{sys: sys, level: slog.LevelDebug}
}

func (s *LogSink) Push(e Event) {
	slog.Log(context.Background(), s.level, "[UI] event", "event", e)
	if e == GoSleep && s.sys != nil {
		s.sys.PushMessage(message.SleepAcknowledged)
	}
}

// Recorder keeps every event for inspection. With AutoAck set it answers
// GoSleep like a display would.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	sys     message.Pusher
	AutoAck bool
}

// NewRecorder returns a recorder that acknowledges through sys.
func NewRecorder(sys message.Pusher) *Recorder {
	return &Recorder{sys: sys}
}

func (r *Recorder) Push(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	ack := r.AutoAck && e == GoSleep
	r.mu.Unlock()
	if ack {
		r.Ack()
	}
}

// Ack reports that the display finished going to sleep.
func (r *Recorder) Ack() {
	if r.sys != nil {
		r.sys.PushMessage(message.SleepAcknowledged)
	}
}

// Events returns a copy of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Contains reports whether e was recorded.
func (r *Recorder) Contains(e Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
