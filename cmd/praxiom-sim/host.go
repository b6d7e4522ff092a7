package main

import (
	"github.com/chaz8081/praxiom-core/internal/app"
	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/host/sim"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

// newHost builds the configured BLE backend. Adapter-backed hosts are only
// available on Linux.
func newHost(cfg *config.Config, timers swtimer.Factory) (app.Host, error) {
	if cfg.BLE.Backend == "sim" {
		return sim.New(sim.Options{Timers: timers}), nil
	}
	return adapterHost(cfg, timers)
}
