//go:build tinygo && pinetime

// Command praxiom-firmware is the PineTime image. Build it with
//
//	tinygo flash -target=pinetime ./cmd/praxiom-firmware
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"github.com/chaz8081/praxiom-core/internal/app"
	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/host/tinygo"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/periph"
	"github.com/chaz8081/praxiom-core/internal/store"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
)

const watchdogTimeout = 7 * time.Second

func main() {
	slog.SetDefault(app.NewLogger(machine.Serial, "info"))
	cfg := config.Default()

	// The board's interrupt callbacks fire before the app exists.
	var a *app.App
	board, err := periph.NewPineTimeBoard(periph.Callbacks{
		ButtonEdge: func(pressed bool) {
			if a != nil {
				a.Queue.PushFromISR(message.ButtonEdge(pressed))
			}
		},
		ChargingChange: func() {
			if a != nil {
				a.Queue.PushFromISR(message.ChargingStateChanged)
			}
		},
	}, watchdogTimeout)
	if err != nil {
		fatal("board", err)
	}

	st, err := store.Open(periph.FlashBackend{Dev: machine.Flash})
	if err != nil {
		slog.Error("[APP] flash store unavailable, bonds will not survive a reset", "error", err)
		st = store.NewMemory()
	}
	a, err = app.New(cfg, app.Options{
		Board:  *board,
		Host:   tinygo.New(swtimer.Real),
		Timers: swtimer.Real,
		Store:  st,
	})
	if err != nil {
		fatal("app", err)
	}

	ctx := context.Background()
	if err := a.Init(ctx); err != nil {
		fatal("init", err)
	}
	if err := a.Run(ctx); err != nil {
		fatal("run", err)
	}
}

// fatal logs err and halts. The watchdog resets the watch once the system
// task stops kicking it.
func fatal(stage string, err error) {
	slog.Error("[APP] fatal", "stage", stage, "error", err)
	panic(err)
}
