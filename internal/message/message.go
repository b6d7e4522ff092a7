// Package message defines the kinds of events the activity state machine
// consumes and the queue that carries them. PushMessage is the only way into
// the core from timers and the BLE layer; interrupt handlers use
// PushFromISR.
package message

import "fmt"

// Kind identifies a single event delivered to the system task.
type Kind uint8

const (
	ButtonPressed Kind = iota
	ButtonLongPressed
	ButtonLongerPressed
	ButtonDoubleClicked
	TouchEvent
	TimerIdleExpired
	TimerDimExpired
	BleConnected
	BleDisconnected
	NewNotificationArrived
	NewIncomingCall
	PairingRequested
	BatteryTimerExpired
	RadioToggleRequested
	ChargingStateChanged
	FirmwareUpdateStarted
	FirmwareUpdateFinished

	// OnNewTime is the ~1 Hz housekeeping tick.
	OnNewTime
	// GoToSleep is an explicit sleep request from the UI.
	GoToSleep
	// SleepAcknowledged is sent by the display once it has finished
	// its own sleep transition.
	SleepAcknowledged
	// GoToRunning is an explicit wake request.
	GoToRunning
	// UpdateTimeOut tells the task the configured screen timeout changed.
	UpdateTimeOut
	FileTransferStarted
	FileTransferFinished
	ImmediateAlertMild
	ImmediateAlertHigh
	// ButtonDown and ButtonUp are raw side-button levels from the GPIO
	// interrupt. The system task turns them into gestures.
	ButtonDown
	ButtonUp

	numKinds
)

var kindNames = [numKinds]string{
	ButtonPressed:          "ButtonPressed",
	ButtonLongPressed:      "ButtonLongPressed",
	ButtonLongerPressed:    "ButtonLongerPressed",
	ButtonDoubleClicked:    "ButtonDoubleClicked",
	TouchEvent:             "TouchEvent",
	TimerIdleExpired:       "TimerIdleExpired",
	TimerDimExpired:        "TimerDimExpired",
	BleConnected:           "BleConnected",
	BleDisconnected:        "BleDisconnected",
	NewNotificationArrived: "NewNotificationArrived",
	NewIncomingCall:        "NewIncomingCall",
	PairingRequested:       "PairingRequested",
	BatteryTimerExpired:    "BatteryTimerExpired",
	RadioToggleRequested:   "RadioToggleRequested",
	ChargingStateChanged:   "ChargingStateChanged",
	FirmwareUpdateStarted:  "FirmwareUpdateStarted",
	FirmwareUpdateFinished: "FirmwareUpdateFinished",
	OnNewTime:              "OnNewTime",
	GoToSleep:              "GoToSleep",
	SleepAcknowledged:      "SleepAcknowledged",
	GoToRunning:            "GoToRunning",
	UpdateTimeOut:          "UpdateTimeOut",
	FileTransferStarted:    "FileTransferStarted",
	FileTransferFinished:   "FileTransferFinished",
	ImmediateAlertMild:     "ImmediateAlertMild",
	ImmediateAlertHigh:     "ImmediateAlertHigh",
	ButtonDown:             "ButtonDown",
	ButtonUp:               "ButtonUp",
}

// ButtonEdge returns the raw edge kind for a button level.
func ButtonEdge(pressed bool) Kind {
	if pressed {
		return ButtonDown
	}
	return ButtonUp
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsInteraction reports whether k counts as user interaction for the
// purpose of resetting the idle and dim timers.
func (k Kind) IsInteraction() bool {
	switch k {
	case ButtonPressed, ButtonLongPressed, ButtonLongerPressed, ButtonDoubleClicked,
		TouchEvent, UpdateTimeOut:
		return true
	}
	return false
}

// Pusher accepts messages for the system task.
type Pusher interface {
	PushMessage(k Kind) bool
}

// PusherFunc adapts a function to the Pusher interface.
type PusherFunc func(Kind) bool

func (f PusherFunc) PushMessage(k Kind) bool { return f(k) }
