package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"garage-opener/internal/adapter/ble"
	"garage-opener/internal/adapter/display"
	"garage-opener/internal/adapter/gpio"
	"garage-opener/internal/adapter/store"
	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
	"garage-opener/internal/infra/config"
	"garage-opener/internal/infra/logger"
	"garage-opener/internal/usecase/access"
	"garage-opener/internal/usecase/audit"
	"garage-opener/internal/usecase/engine"
	"garage-opener/internal/usecase/eventbus"
	"garage-opener/internal/usecase/gesture"
	"garage-opener/internal/usecase/registry"
)

// bootOnce wires every component, runs the boot sequence and the event loop.
// It returns domain.ErrRestartRequested when the device must boot again.
func bootOnce(ctx context.Context, cfg *config.Config, input <-chan string, log *slog.Logger) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	restarter := domain.RestartFunc(func(reason string) {
		log.Warn("restart scheduled", "reason", reason)
		cancel(domain.ErrRestartRequested)
	})

	// 1. Storage
	bonds, err := store.NewSQLiteBondStore(cfg.Storage.BondsPath, cfg.Registry.MaxBonds)
	if err != nil {
		return fmt.Errorf("bond store: %w", err)
	}
	defer bonds.Close()

	events, err := store.NewSQLiteEventStore(cfg.Storage.EventsPath)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer events.Close()

	reg := registry.New(bonds, restarter, registry.Config{
		MaxBonds:     cfg.Registry.MaxBonds,
		Buffers:      cfg.Registry.Buffers,
		LeaseTimeout: cfg.Registry.LeaseTimeout,
	}, logger.Component(log, "registry"))

	// 2. Event bus + access log
	bus := eventbus.New(logger.Component(log, "eventbus"))
	defer bus.Close()
	recorder := audit.NewRecorder(events, []byte(cfg.Storage.AuditKey), logger.Component(log, "audit"))
	defer recorder.Attach(bus)()

	// 3. Hardware
	clk := clock.Real()
	screen := display.NewConsole(os.Stdout, clk)

	pins, err := gpio.Open(cfg.GPIO.Backend, log)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	defer pins.Close()

	relay, err := gpio.NewRelay(pins, cfg.GPIO.RelayPin, logger.Component(log, "relay"))
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	// 4. Transport
	sim := ble.SimConfig{
		StatusValue: cfg.Device.StatusValue,
		Bonds:       bonds,
		ButtonPin:   cfg.GPIO.ButtonPin,
		Out:         os.Stdout,
	}
	if mock, ok := pins.(*gpio.Mock); ok {
		sim.Buttons = mock
	}
	transport, err := ble.Open(cfg.Transport.Backend, sim, ble.GATTConfig{
		Name:               cfg.Device.Name,
		ServiceUUID:        cfg.Device.ServiceUUID,
		CharacteristicUUID: cfg.Device.CharacteristicUUID,
		InitialValue:       cfg.Device.InitialValue,
		Bonds:              bonds,
	}, logger.Component(log, "transport"))
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	// 5. Access core + engine
	core := access.New(access.Deps{
		Bonds:     reg,
		Transport: transport,
		Display:   screen,
		Relay:     relay,
		Clock:     clk,
		Bus:       bus,
		Logger:    log,
	}, access.Options{
		Command:                  cfg.Device.Command,
		RelayPulse:               cfg.GPIO.RelayPulse,
		WindowTimeout:            cfg.Pairing.WindowTimeout,
		DisplayTimeout:           cfg.Loop.DisplayTimeout,
		RejectHold:               cfg.Loop.RejectHold,
		RequireAuthenticatedLink: cfg.Transport.RequireAuthenticatedLink,
		AllowFirstPairing:        cfg.Pairing.AllowFirstPairing,
		RejectLogRate:            cfg.Transport.RejectLogRate,
		RejectLogBurst:           cfg.Transport.RejectLogBurst,
	})

	detector := gesture.NewDetector(pins, core.Screen, clk, cfg.GPIO.Debounce, cfg.GPIO.PollInterval,
		logger.Component(log, "gesture"))

	eng := engine.New(engine.Deps{
		Core:      core,
		Registry:  reg,
		Detector:  detector,
		Transport: transport,
		Clock:     clk,
		Bus:       bus,
		Logger:    logger.Component(log, "engine"),
	}, engine.Config{
		Tick:       cfg.Loop.Tick,
		EventQueue: cfg.Loop.EventQueue,
		ResetHold:  gesture.Hold{Pin: cfg.GPIO.ButtonPin, Required: cfg.Reset.PressDuration, Label: cfg.Reset.Label},
		PairHold:   gesture.Hold{Pin: cfg.GPIO.ButtonPin, Required: cfg.Pairing.PressDuration, Label: cfg.Pairing.Label},
	})

	if err := eng.Boot(ctx); err != nil {
		return err
	}

	if s, ok := transport.(*ble.Sim); ok && input != nil {
		go func() {
			if err := s.Serve(ctx, input); err != nil && ctx.Err() == nil {
				log.Error("simulator input stopped", "error", err)
			}
		}()
	}
	return eng.Run(ctx)
}

// stdinLines is shared by every boot so a restart never loses operator input.
func stdinLines() <-chan string {
	return ble.ReadLines(os.Stdin)
}
