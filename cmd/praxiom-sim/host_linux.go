//go:build linux

package main

import (
	"fmt"

	"github.com/chaz8081/praxiom-core/internal/app"
	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/host/goble"
	"github.com/chaz8081/praxiom-core/internal/host/tinygo"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

func adapterHost(cfg *config.Config, timers swtimer.Factory) (app.Host, error) {
	switch cfg.BLE.Backend {
	case "tinygo":
		return tinygo.New(timers), nil
	case "goble":
		return goble.New(cfg.BLE.HCIDevice), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.BLE.Backend)
}
