package system

import "fmt"

// ActivityState is the power state of the watch.
type ActivityState uint8

const (
	Running ActivityState = iota
	// Dimmed is Running with the backlight lowered.
	Dimmed
	// GoingToSleep waits for the display to acknowledge its sleep.
	GoingToSleep
	Sleeping
)

func (s ActivityState) String() string {
	switch s {
	case Running:
		return "Running"
	case Dimmed:
		return "Dimmed"
	case GoingToSleep:
		return "GoingToSleep"
	case Sleeping:
		return "Sleeping"
	}
	return fmt.Sprintf("ActivityState(%d)", uint8(s))
}

// Awake reports whether the screen is on.
func (s ActivityState) Awake() bool { return s == Running || s == Dimmed }

// Suppression lists what currently holds the watch awake.
type Suppression struct {
	FirmwareUpdate bool
	FileTransfer   bool
}

// Active reports whether any flag is set.
func (s Suppression) Active() bool { return s.FirmwareUpdate || s.FileTransfer }
