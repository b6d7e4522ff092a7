// Package periph declares the capabilities the control core needs from the
// watch hardware. Drivers behind these interfaces are thin: they act on
// commands and report readings, and any interrupt they own only enqueues a
// message for the system task.
package periph

import "time"

// Display is the panel and its backlight.
type Display interface {
	Sleep() error
	Wakeup() error
	// SetBrightness takes a level from 0 (off) to 3 (high).
	SetBrightness(level uint8)
}

// Sensor is a peripheral that can be powered down.
type Sensor interface {
	Enable() error
	Disable() error
}

// Motion is the accelerometer and its wake-gesture detectors.
type Motion interface {
	Sensor
	// Update samples the sensor. It is called once per system loop iteration.
	Update() error
	ShouldShakeWake(threshold uint16) bool
	ShouldRaiseWake() bool
}

// Gesture is the touch controller's classification of a contact.
type Gesture uint8

const (
	GestureNone Gesture = iota
	GestureSingleTap
	GestureDoubleTap
	GestureSlideUp
	GestureSlideDown
	GestureSlideLeft
	GestureSlideRight
	GestureLongPress
)

// TouchInfo is the last contact reported by the touch controller.
type TouchInfo struct {
	Valid    bool
	Touching bool
	Gesture  Gesture
}

// TouchPanel reports the latest touch sample.
type TouchPanel interface {
	Info() TouchInfo
}

// BatteryReading is one battery sample.
type BatteryReading struct {
	Millivolts   uint16
	Percent      uint8
	Charging     bool
	PowerPresent bool
}

// Battery samples the battery gauge.
type Battery interface {
	Sample() (BatteryReading, error)
}

// Motor is the vibration motor.
type Motor interface {
	RunFor(d time.Duration)
	StartRinging()
	StopRinging()
}

// Flash is the external SPI flash.
type Flash interface {
	Sleep() error
	Wakeup() error
}

// Watchdog must be kicked periodically or the board resets.
type Watchdog interface {
	Kick()
}

// Radio is the BLE radio power switch.
type Radio interface {
	SetPower(on bool) error
	Powered() bool
}

// Identity exposes the per-device identifier.
type Identity interface {
	DeviceID() []byte
}

// BondStore persists the peer identity key across reboots.
type BondStore interface {
	ReadBondID() ([16]byte, error)
	WriteBondID(id [16]byte) error
	ClearBond() error
}

// Board aggregates every capability. Fields may be nil on hardware that
// lacks the device; the system task checks before use where noted.
type Board struct {
	Display   Display
	HeartRate Sensor
	Motion    Motion
	Touch     TouchPanel
	Battery   Battery
	Motor     Motor
	Flash     Flash
	Watchdog  Watchdog
	Radio     Radio
	Identity  Identity
}
