package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.Name != "Praxiom" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "Praxiom")
	}
	if cfg.BLE.Backend != "sim" {
		t.Errorf("BLE.Backend = %q, want %q", cfg.BLE.Backend, "sim")
	}
	if cfg.BLE.FastCycles != 5 {
		t.Errorf("BLE.FastCycles = %d, want 5", cfg.BLE.FastCycles)
	}
	if cfg.BLE.AdvDuration.D() != 180*time.Second {
		t.Errorf("BLE.AdvDuration = %v, want 3m0s", cfg.BLE.AdvDuration.D())
	}
	if cfg.BLE.Appearance != 0xC2 {
		t.Errorf("BLE.Appearance = %#x, want 0xc2", cfg.BLE.Appearance)
	}
	if cfg.System.QueueSize != 10 {
		t.Errorf("System.QueueSize = %d, want 10", cfg.System.QueueSize)
	}
	if cfg.Health.NotifyPeriod.D() != 3*time.Minute {
		t.Errorf("Health.NotifyPeriod = %v, want 3m0s", cfg.Health.NotifyPeriod.D())
	}
	if cfg.Storage.Path == "" {
		t.Error("Storage.Path should not be empty")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device:
  name: TestWatch
ble:
  backend: goble
  hci_device: 1
  fast_cycles: 2
  adv_duration: 30s
settings:
  wake_modes: [double_tap, shake]
  screen_timeout: 30s
  dim_lead: 10s
  notifications: false
system:
  queue_size: 16
  loop_timeout: 50ms
storage:
  path: /tmp/praxiom.bin
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Name != "TestWatch" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "TestWatch")
	}
	if cfg.Device.Manufacturer != "Praxiom Health" {
		t.Errorf("Device.Manufacturer = %q, want default", cfg.Device.Manufacturer)
	}
	if cfg.BLE.Backend != "goble" || cfg.BLE.HCIDevice != 1 || cfg.BLE.FastCycles != 2 {
		t.Errorf("BLE = %+v", cfg.BLE)
	}
	if cfg.BLE.AdvDuration.D() != 30*time.Second {
		t.Errorf("BLE.AdvDuration = %v, want 30s", cfg.BLE.AdvDuration.D())
	}
	if len(cfg.Settings.WakeModes) != 2 || cfg.Settings.WakeModes[0] != "double_tap" {
		t.Errorf("Settings.WakeModes = %v", cfg.Settings.WakeModes)
	}
	if cfg.Settings.ScreenTimeout.D() != 30*time.Second || cfg.Settings.DimLead.D() != 10*time.Second {
		t.Errorf("Settings timeouts = %v / %v", cfg.Settings.ScreenTimeout.D(), cfg.Settings.DimLead.D())
	}
	if cfg.Settings.Notifications {
		t.Error("Settings.Notifications = true, want false")
	}
	if cfg.System.QueueSize != 16 || cfg.System.LoopTimeout.D() != 50*time.Millisecond {
		t.Errorf("System = %+v", cfg.System)
	}
	if cfg.Storage.Path != "/tmp/praxiom.bin" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
storage:
  path: ~/praxiom/store.bin
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "praxiom/store.bin")
	if cfg.Storage.Path != expected {
		t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, expected)
	}
}

func TestLoadBadDuration(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("settings:\n  screen_timeout: soon\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should reject an unparsable duration")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty device name",
			modify:  func(c *Config) { c.Device.Name = "" },
			wantErr: true,
		},
		{
			name:    "device name too long",
			modify:  func(c *Config) { c.Device.Name = strings.Repeat("x", 30) },
			wantErr: true,
		},
		{
			name:    "invalid backend",
			modify:  func(c *Config) { c.BLE.Backend = "corebluetooth" },
			wantErr: true,
		},
		{
			name:    "negative fast cycles",
			modify:  func(c *Config) { c.BLE.FastCycles = -1 },
			wantErr: true,
		},
		{
			name:    "unknown wake mode",
			modify:  func(c *Config) { c.Settings.WakeModes = []string{"wiggle"} },
			wantErr: true,
		},
		{
			name:    "dim lead not below timeout",
			modify:  func(c *Config) { c.Settings.DimLead = c.Settings.ScreenTimeout },
			wantErr: true,
		},
		{
			name:    "zero screen timeout",
			modify:  func(c *Config) { c.Settings.ScreenTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "brightness out of range",
			modify:  func(c *Config) { c.Settings.Brightness = 7 },
			wantErr: true,
		},
		{
			name:    "zero queue size",
			modify:  func(c *Config) { c.System.QueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "zero health period",
			modify:  func(c *Config) { c.Health.NotifyPeriod = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "praxiom", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# praxiom") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Settings.ScreenTimeout.D() != 15*time.Second {
		t.Errorf("written ScreenTimeout = %v, want 15s", cfg.Settings.ScreenTimeout.D())
	}
	if cfg.BLE.Backend != "sim" {
		t.Errorf("written BLE.Backend = %q, want sim", cfg.BLE.Backend)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "praxiom")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestSettingsView(t *testing.T) {
	s := NewSettings(Default().Settings)

	if !s.IsWakeModeOn(WakeSingleTap) || !s.IsWakeModeOn(WakeRaiseWrist) {
		t.Errorf("default wake modes = %v", s.WakeModes())
	}
	if s.IsWakeModeOn(WakeShake) {
		t.Error("shake should be off by default")
	}

	modes := s.WakeModes()
	modes.Add(WakeShake)
	if s.IsWakeModeOn(WakeShake) {
		t.Error("WakeModes() should return a copy")
	}

	s.SetWakeMode(WakeDoubleTap, true)
	s.SetWakeMode(WakeSingleTap, false)
	if !s.IsWakeModeOn(WakeDoubleTap) || s.IsWakeModeOn(WakeSingleTap) {
		t.Errorf("wake modes after toggle = %v", s.WakeModes())
	}

	if s.SetScreenTimeout(3 * time.Second) {
		t.Error("SetScreenTimeout accepted a timeout below the dim lead")
	}
	if !s.SetScreenTimeout(30*time.Second) || s.ScreenTimeout() != 30*time.Second {
		t.Errorf("ScreenTimeout() = %v, want 30s", s.ScreenTimeout())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
