//go:build !linux

package main

import (
	"fmt"

	"github.com/chaz8081/praxiom-core/internal/app"
	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

func adapterHost(cfg *config.Config, _ swtimer.Factory) (app.Host, error) {
	return nil, fmt.Errorf("backend %q needs a Linux BlueZ adapter; use -backend sim", cfg.BLE.Backend)
}
