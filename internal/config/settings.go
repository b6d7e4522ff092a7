package config

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Settings is the live, read-mostly view of SettingsConfig shared by the
// system task and the UI. The UI may change the screen timeout and wake
// modes at runtime; the system task picks them up on UpdateTimeOut.
type Settings struct {
	mu    sync.RWMutex
	cfg   SettingsConfig
	modes mapset.Set[WakeMode]
}

// NewSettings builds a live view from a validated SettingsConfig.
func NewSettings(cfg SettingsConfig) *Settings {
	modes := mapset.NewSet[WakeMode]()
	for _, m := range cfg.WakeModes {
		modes.Add(WakeMode(m))
	}
	return &Settings{cfg: cfg, modes: modes}
}

// WakeModes returns a copy of the configured wake modes.
func (s *Settings) WakeModes() mapset.Set[WakeMode] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes.Clone()
}

// IsWakeModeOn reports whether m is configured.
func (s *Settings) IsWakeModeOn(m WakeMode) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes.Contains(m)
}

// SetWakeMode turns m on or off.
func (s *Settings) SetWakeMode(m WakeMode, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.modes.Add(m)
	} else {
		s.modes.Remove(m)
	}
}

func (s *Settings) ScreenTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ScreenTimeout.D()
}

// SetScreenTimeout changes the timeout; values not above the dim lead are
// ignored.
func (s *Settings) SetScreenTimeout(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= s.cfg.DimLead.D() {
		return false
	}
	s.cfg.ScreenTimeout = Duration(d)
	return true
}

func (s *Settings) DimLead() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.DimLead.D()
}

func (s *Settings) NotificationsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Notifications
}

func (s *Settings) ShakeThreshold() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ShakeThreshold
}

func (s *Settings) Brightness() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Brightness
}
