package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateDevice(cfg, ve)
	validateGestures(cfg, ve)
	validateGPIO(cfg, ve)
	validateLoop(cfg, ve)
	validateRegistry(cfg, ve)
	validateTransport(cfg, ve)
	validateStorage(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateDevice(cfg *Config, ve *ValidationError) {
	d := cfg.Device
	if d.Name == "" {
		ve.Add("device.name is required")
	}
	svc, err := uuid.Parse(d.ServiceUUID)
	if err != nil {
		ve.Add("device.service_uuid %q: %v", d.ServiceUUID, err)
	}
	chr, err := uuid.Parse(d.CharacteristicUUID)
	if err != nil {
		ve.Add("device.characteristic_uuid %q: %v", d.CharacteristicUUID, err)
	}
	if svc != uuid.Nil && svc == chr {
		ve.Add("device.service_uuid and device.characteristic_uuid must differ")
	}
	if d.Command == "" {
		ve.Add("device.command is required")
	}
	for _, r := range d.Command {
		if r > 0x7e || r < 0x20 {
			ve.Add("device.command must be printable ASCII")
			break
		}
	}
}

func validateGestures(cfg *Config, ve *ValidationError) {
	if cfg.Pairing.PressDuration < time.Second {
		ve.Add("pairing.press_duration must be at least 1s (got %v)", cfg.Pairing.PressDuration)
	}
	if cfg.Pairing.WindowTimeout <= 0 {
		ve.Add("pairing.window_timeout must be positive")
	}
	if cfg.Reset.PressDuration < time.Second {
		ve.Add("reset.press_duration must be at least 1s (got %v)", cfg.Reset.PressDuration)
	}
	if len(cfg.Pairing.Label) > 7 || len(cfg.Reset.Label) > 7 {
		ve.Add("gesture labels must fit the display (max 7 characters)")
	}
}

func validateGPIO(cfg *Config, ve *ValidationError) {
	g := cfg.GPIO
	switch g.Backend {
	case "mock", "periph":
	default:
		ve.Add("gpio.backend %q: must be mock or periph", g.Backend)
	}
	if g.ButtonPin < 0 || g.RelayPin < 0 {
		ve.Add("gpio pins must be non-negative")
	}
	if g.ButtonPin == g.RelayPin {
		ve.Add("gpio.button_pin and gpio.relay_pin must differ (both %d)", g.ButtonPin)
	}
	if g.RelayPulse <= 0 || g.RelayPulse > 5*time.Second {
		ve.Add("gpio.relay_pulse must be in (0, 5s] (got %v)", g.RelayPulse)
	}
	if g.Debounce < 0 {
		ve.Add("gpio.debounce must not be negative")
	}
	if g.PollInterval <= 0 {
		ve.Add("gpio.poll_interval must be positive")
	}
}

func validateLoop(cfg *Config, ve *ValidationError) {
	if cfg.Loop.Tick <= 0 {
		ve.Add("loop.tick must be positive")
	}
	if cfg.Loop.Tick >= cfg.Pairing.WindowTimeout {
		ve.Add("loop.tick (%v) must be shorter than pairing.window_timeout (%v)", cfg.Loop.Tick, cfg.Pairing.WindowTimeout)
	}
	if cfg.Loop.DisplayTimeout <= 0 {
		ve.Add("loop.display_timeout must be positive")
	}
	if cfg.Loop.EventQueue <= 0 {
		ve.Add("loop.event_queue must be positive")
	}
	if cfg.Loop.RejectHold < 0 {
		ve.Add("loop.reject_hold must not be negative")
	}
}

func validateRegistry(cfg *Config, ve *ValidationError) {
	if cfg.Registry.MaxBonds <= 0 {
		ve.Add("registry.max_bonds must be positive")
	}
	if cfg.Registry.Buffers <= 0 {
		ve.Add("registry.buffers must be positive")
	}
	if cfg.Registry.LeaseTimeout < 0 {
		ve.Add("registry.lease_timeout must not be negative")
	}
}

func validateTransport(cfg *Config, ve *ValidationError) {
	switch cfg.Transport.Backend {
	case "sim", "tinygo":
	default:
		ve.Add("transport.backend %q: must be sim or tinygo", cfg.Transport.Backend)
	}
	if cfg.Transport.RejectLogRate <= 0 {
		ve.Add("transport.reject_log_rate must be positive")
	}
	if cfg.Transport.RejectLogBurst <= 0 {
		ve.Add("transport.reject_log_burst must be positive")
	}
}

func validateStorage(cfg *Config, ve *ValidationError) {
	if cfg.Storage.BondsPath == "" {
		ve.Add("storage.bonds_path is required")
	}
	if cfg.Storage.EventsPath == "" {
		ve.Add("storage.events_path is required")
	}
	if cfg.Storage.BondsPath != "" && cfg.Storage.BondsPath == cfg.Storage.EventsPath {
		ve.Add("storage.bonds_path and storage.events_path must differ")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q: must be stdout or noop", cfg.Tracer.Exporter)
	}
}
