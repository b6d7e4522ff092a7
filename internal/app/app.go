// Package app is the composition root. It builds the services, the BLE
// controller and the system task from a config, a board and a host, and runs
// the host's event task beside the system task.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/praxiom-core/internal/ble"
	"github.com/chaz8081/praxiom-core/internal/button"
	"github.com/chaz8081/praxiom-core/internal/clock"
	"github.com/chaz8081/praxiom-core/internal/config"
	"github.com/chaz8081/praxiom-core/internal/discovery"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/notification"
	"github.com/chaz8081/praxiom-core/internal/periph"
	"github.com/chaz8081/praxiom-core/internal/services"
	"github.com/chaz8081/praxiom-core/internal/store"
	"github.com/chaz8081/praxiom-core/internal/swtimer"
	"github.com/chaz8081/praxiom-core/internal/system"
	"github.com/chaz8081/praxiom-core/internal/ui"
)

// Host is a BLE host with its own event task.
type Host interface {
	ble.Host
	Run(ctx context.Context) error
}

var (
	_ system.BLE            = (*ble.Controller)(nil)
	_ ble.BatteryNotifier   = (*services.Battery)(nil)
	_ system.EdgeClassifier = (*button.Classifier)(nil)
)

// Options carries what the caller provides beyond the config.
type Options struct {
	Board periph.Board
	Host  Host
	// Timers defaults to swtimer.Real.
	Timers swtimer.Factory
	// Store defaults to a file store at cfg.Storage.Path.
	Store *store.Store
	// UI defaults to a logging sink that acknowledges sleep.
	UI    ui.Sink
	Clock *clock.Clock
}

// App holds every wired component. Fields are exported for the console and
// tests.
type App struct {
	Config   *config.Config
	Settings *config.Settings
	Queue    *message.Queue
	Board    periph.Board
	Host     Host
	Store    *store.Store
	Clock    *clock.Clock
	Notes    *notification.Manager
	UI       ui.Sink

	Battery        *services.Battery
	CurrentTime    *services.CurrentTime
	Alert          *services.AlertNotification
	DeviceInfo     *services.DeviceInfo
	ImmediateAlert *services.ImmediateAlert
	Health         *services.Health

	Registry   *gatt.Registry
	Discovery  *discovery.Discovery
	Controller *ble.Controller
	Task       *system.Task
	Button     *button.Classifier
}

// New wires an App. Nothing runs until Init.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Host == nil {
		return nil, errors.New("app: no BLE host")
	}
	if opts.Timers == nil {
		opts.Timers = swtimer.Real
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	st := opts.Store
	if st == nil {
		var err error
		st, err = store.Open(store.FileBackend{Path: cfg.Storage.Path})
		if err != nil {
			return nil, fmt.Errorf("app: opening store: %w", err)
		}
	}

	a := &App{
		Config:   cfg,
		Settings: config.NewSettings(cfg.Settings),
		Queue:    message.NewQueue(cfg.System.QueueSize),
		Board:    opts.Board,
		Host:     opts.Host,
		Store:    st,
		Clock:    opts.Clock,
		Notes:    notification.New(),
	}
	a.UI = opts.UI
	if a.UI == nil {
		a.UI = ui.NewLogSink(a.Queue)
	}
	if a.Board.Identity == nil || cfg.Device.ID != "" {
		a.Board.Identity = deviceID(cfg.Device)
	}

	link := ble.NewLink()
	h := opts.Host
	a.Battery = services.NewBattery(h, link)
	a.CurrentTime = services.NewCurrentTime(h, link, a.Clock)
	a.Alert = services.NewAlertNotification(a.Notes, a.Clock, a.Queue)
	a.DeviceInfo = services.NewDeviceInfo(services.DeviceInfoStrings{
		Manufacturer: cfg.Device.Manufacturer,
		Model:        cfg.Device.Model,
		Serial:       cfg.Device.Serial,
		Firmware:     cfg.Device.FirmwareVersion,
		Hardware:     cfg.Device.HardwareVersion,
		Software:     cfg.Device.SoftwareVersion,
	})
	a.ImmediateAlert = services.NewImmediateAlert(a.Queue)
	a.Health = services.NewHealth(h, link, st, a.Clock, opts.Timers, cfg.Health.NotifyPeriod.D())

	handlers := []gatt.Handler{a.DeviceInfo, a.Battery, a.CurrentTime, a.Alert, a.ImmediateAlert, a.Health}
	a.Registry = gatt.NewRegistry(len(handlers))
	for _, hd := range handlers {
		if err := a.Registry.Add(hd); err != nil {
			return nil, fmt.Errorf("app: registering %s: %w", hd.Descriptor().UUID(), err)
		}
	}

	a.Discovery = discovery.New(h,
		discovery.NewCurrentTimeClient(a.Clock),
		discovery.NewAlertNotificationClient(a.Notes, a.Clock, a.Queue),
	)

	a.Controller = ble.NewController(ble.Deps{
		Host:      h,
		Services:  a.Registry,
		Discovery: a.Discovery,
		Battery:   a.Battery,
		System:    a.Queue,
		Bonds:     st,
		Identity:  a.Board.Identity,
		Radio:     a.Board.Radio,
	}, link, ble.Options{
		DeviceName:        cfg.Device.Name,
		Appearance:        cfg.BLE.Appearance,
		AdvertisedService: services.HealthServiceUUID,
		FastCycles:        cfg.BLE.FastCycles,
		AdvDuration:       cfg.BLE.AdvDuration.D(),
	})

	sysOpts := system.DefaultOptions()
	sysOpts.LoopTimeout = cfg.System.LoopTimeout.D()
	sysOpts.BatteryPeriod = cfg.System.BatteryPeriod.D()
	a.Button = button.New(a.Queue, opts.Timers, button.DefaultOptions())
	a.Task = system.NewTask(a.Queue, system.Deps{
		Board:    a.Board,
		BLE:      a.Controller,
		Settings: a.Settings,
		UI:       a.UI,
		Timers:   opts.Timers,
		Button:   a.Button,
	}, sysOpts)
	return a, nil
}

// Init brings the BLE layer up, starts the system task's timers and begins
// advertising. An error wraps ble.ErrFatal when the watch cannot continue.
func (a *App) Init(ctx context.Context) error {
	if err := a.Controller.Init(ctx); err != nil {
		return err
	}
	a.Task.Start()
	a.Controller.StartAdvertising()
	slog.Info("[APP] ready", "name", a.Config.Device.Name, "address", a.Controller.Address())
	return nil
}

// Run drives the host event task and the system task until ctx ends. Init
// must have succeeded first.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, run := range []func(context.Context) error{a.Host.Run, a.Task.Run} {
		run := run
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				errs <- err
				cancel()
			}
		}()
	}
	wg.Wait()
	a.Button.Stop()
	close(errs)
	return <-errs
}

// NewLogger returns the text logger used by the runners.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(time.TimeOnly))
			}
			return a
		},
	}))
}

type staticID []byte

func (s staticID) DeviceID() []byte { return s }

// deviceID seeds the address from the configured ID, else the serial.
func deviceID(d config.DeviceConfig) periph.Identity {
	if d.ID != "" {
		return staticID(d.ID)
	}
	return staticID("praxiom-" + d.Serial)
}
