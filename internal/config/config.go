package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all firmware and simulator configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	BLE      BLEConfig      `yaml:"ble"`
	Settings SettingsConfig `yaml:"settings"`
	System   SystemConfig   `yaml:"system"`
	Health   HealthConfig   `yaml:"health"`
	Storage  StorageConfig  `yaml:"storage"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig holds identity strings exposed over GAP and Device Information.
type DeviceConfig struct {
	Name            string `yaml:"name"`
	Manufacturer    string `yaml:"manufacturer"`
	Model           string `yaml:"model"`
	Serial          string `yaml:"serial"`
	FirmwareVersion string `yaml:"firmware_version"`
	HardwareVersion string `yaml:"hardware_version"`
	SoftwareVersion string `yaml:"software_version"`
	// ID seeds the static random address. Empty means "derive from serial".
	ID string `yaml:"id"`
}

// BLEConfig holds radio and advertising settings.
type BLEConfig struct {
	Backend     string   `yaml:"backend"` // "sim", "tinygo" or "goble"
	HCIDevice   int      `yaml:"hci_device"`
	FastCycles  int      `yaml:"fast_cycles"`
	AdvDuration Duration `yaml:"adv_duration"`
	Appearance  uint16   `yaml:"appearance"`
}

// SettingsConfig is the user-facing settings block, read by the activity
// state machine through the Settings view.
type SettingsConfig struct {
	WakeModes      []string `yaml:"wake_modes"`
	ScreenTimeout  Duration `yaml:"screen_timeout"`
	DimLead        Duration `yaml:"dim_lead"`
	Notifications  bool     `yaml:"notifications"`
	ShakeThreshold uint16   `yaml:"shake_threshold"`
	Brightness     uint8    `yaml:"brightness"`
}

// SystemConfig holds system task tuning.
type SystemConfig struct {
	QueueSize     int      `yaml:"queue_size"`
	LoopTimeout   Duration `yaml:"loop_timeout"`
	BatteryPeriod Duration `yaml:"battery_period"`
}

// HealthConfig holds health data service settings.
type HealthConfig struct {
	NotifyPeriod Duration `yaml:"notify_period"`
}

// StorageConfig holds the persistent store location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Duration is a time.Duration that reads and writes Go duration strings.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// WakeMode names one way of waking the watch from sleep.
type WakeMode string

const (
	WakeSingleTap  WakeMode = "single_tap"
	WakeDoubleTap  WakeMode = "double_tap"
	WakeRaiseWrist WakeMode = "raise_wrist"
	WakeShake      WakeMode = "shake"
)

var knownWakeModes = mapset.NewSet(WakeSingleTap, WakeDoubleTap, WakeRaiseWrist, WakeShake)

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "praxiom")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	storePath := filepath.Join(home, ".local", "share", "praxiom", "store.bin")

	return &Config{
		Device: DeviceConfig{
			Name:            "Praxiom",
			Manufacturer:    "Praxiom Health",
			Model:           "PineTime",
			Serial:          "0000000001",
			FirmwareVersion: "1.0.0",
			HardwareVersion: "1.0a",
			SoftwareVersion: "core",
		},
		BLE: BLEConfig{
			Backend:     "sim",
			FastCycles:  5,
			AdvDuration: Duration(180 * time.Second),
			Appearance:  0x00C2,
		},
		Settings: SettingsConfig{
			WakeModes:      []string{string(WakeSingleTap), string(WakeRaiseWrist)},
			ScreenTimeout:  Duration(15 * time.Second),
			DimLead:        Duration(5 * time.Second),
			Notifications:  true,
			ShakeThreshold: 150,
			Brightness:     2,
		},
		System: SystemConfig{
			QueueSize:     10,
			LoopTimeout:   Duration(100 * time.Millisecond),
			BatteryPeriod: Duration(10 * time.Minute),
		},
		Health: HealthConfig{
			NotifyPeriod: Duration(3 * time.Minute),
		},
		Storage: StorageConfig{
			Path: storePath,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in storage.path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Storage.Path = expandTilde(cfg.Storage.Path)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" when a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	header := "# praxiom configuration\n# Durations use Go syntax, e.g. 15s, 3m.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}
	if len(c.Device.Name) > 29 {
		return fmt.Errorf("device.name must fit a scan response (29 bytes), got %d", len(c.Device.Name))
	}

	switch c.BLE.Backend {
	case "sim", "tinygo", "goble":
	default:
		return fmt.Errorf("ble.backend must be sim, tinygo, or goble, got %q", c.BLE.Backend)
	}

	if c.BLE.FastCycles < 0 {
		return fmt.Errorf("ble.fast_cycles must be >= 0")
	}

	if c.BLE.AdvDuration <= 0 {
		return fmt.Errorf("ble.adv_duration must be > 0")
	}

	for _, m := range c.Settings.WakeModes {
		if !knownWakeModes.Contains(WakeMode(m)) {
			return fmt.Errorf("settings.wake_modes: unknown mode %q", m)
		}
	}

	if c.Settings.ScreenTimeout <= 0 {
		return fmt.Errorf("settings.screen_timeout must be > 0")
	}

	if c.Settings.DimLead < 0 || c.Settings.DimLead >= c.Settings.ScreenTimeout {
		return fmt.Errorf("settings.dim_lead must be >= 0 and below screen_timeout")
	}

	if c.Settings.Brightness > 3 {
		return fmt.Errorf("settings.brightness must be 0-3, got %d", c.Settings.Brightness)
	}

	if c.System.QueueSize <= 0 {
		return fmt.Errorf("system.queue_size must be > 0")
	}

	if c.System.LoopTimeout <= 0 {
		return fmt.Errorf("system.loop_timeout must be > 0")
	}

	if c.System.BatteryPeriod <= 0 {
		return fmt.Errorf("system.battery_period must be > 0")
	}

	if c.Health.NotifyPeriod <= 0 {
		return fmt.Errorf("health.notify_period must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
