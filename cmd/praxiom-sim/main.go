// Command praxiom-sim runs the watch core on a desktop. The peripherals are
// simulated; the BLE host is the in-memory simulator by default, or a real
// adapter on Linux. A console on stdin drives buttons, touches, the battery
// and, with the simulated host, the phone.
//
// Usage:
//
//	go run ./cmd/praxiom-sim [-config path] [-backend sim|tinygo|goble] [-hotkey ctrl+shift+b]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/praxiom-core/internal/app"
	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/host/sim"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/periph"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/praxiom/config.yaml)")
	backend := flag.String("backend", "", "BLE backend, overrides ble.backend: sim, tinygo or goble")
	button := flag.String("hotkey", "", "global key combination that acts as the side button, e.g. ctrl+shift+b")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return
		}
		fmt.Println("Wrote", path)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *backend != "" {
		cfg.BLE.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(app.NewLogger(os.Stderr, cfg.LogLevel))
	printBanner(cfg)

	h, err := newHost(cfg, swtimer.Real)
	if err != nil {
		log.Fatalf("BLE host: %v", err)
	}
	if c, ok := h.(io.Closer); ok {
		defer c.Close()
	}

	board := periph.NewSimBoard()
	a, err := app.New(cfg, app.Options{Board: board.Board, Host: h})
	if err != nil {
		log.Fatalf("Failed to build the watch: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Init(ctx); err != nil {
		log.Fatalf("Failed to start the watch: %v", err)
	}

	if *button != "" {
		unhook, err := startHotkey(*button, func(pressed bool) {
			a.Queue.PushMessage(message.ButtonEdge(pressed))
		})
		if err != nil {
			log.Printf("Hotkey disabled: %v", err)
		} else {
			defer unhook()
		}
	}

	con := &console{app: a, board: board}
	if s, ok := h.(*sim.Host); ok {
		con.phone = s
	}
	go func() {
		con.run(os.Stdin, os.Stdout)
		stop()
	}()

	log.Println("Ready! Type 'help' for commands. Ctrl+C to quit.")
	if err := a.Run(ctx); err != nil {
		log.Fatalf("watch stopped: %v", err)
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== praxiom-sim ===")
	fmt.Printf("  Device:  %s (%s %s)\n", cfg.Device.Name, cfg.Device.Model, cfg.Device.FirmwareVersion)
	fmt.Printf("  BLE:     %s\n", cfg.BLE.Backend)
	fmt.Printf("  Wake:    %s\n", strings.Join(cfg.Settings.WakeModes, ", "))
	fmt.Printf("  Timeout: %s (dim %s before)\n", cfg.Settings.ScreenTimeout.D(), cfg.Settings.DimLead.D())
	fmt.Printf("  Store:   %s\n", cfg.Storage.Path)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===================")
}
