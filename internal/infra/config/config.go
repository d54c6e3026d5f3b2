package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Reset     ResetConfig     `yaml:"reset"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Loop      LoopConfig      `yaml:"loop"`
	Registry  RegistryConfig  `yaml:"registry"`
	Transport TransportConfig `yaml:"transport"`
	Storage   StorageConfig   `yaml:"storage"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// DeviceConfig describes the advertised service and its single characteristic.
type DeviceConfig struct {
	Name               string `yaml:"name"`
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`
	Command            string `yaml:"command"`       // the only recognized write literal
	StatusValue        string `yaml:"status_value"`  // returned on read
	InitialValue       string `yaml:"initial_value"` // characteristic value before the first write
}

// PairingConfig holds the pairing-window gesture and timeout.
type PairingConfig struct {
	PressDuration     time.Duration `yaml:"press_duration"`
	WindowTimeout     time.Duration `yaml:"window_timeout"`
	Label             string        `yaml:"label"`
	AllowFirstPairing bool          `yaml:"allow_first_pairing"` // empty registry admits any peer
}

// ResetConfig holds the boot-time factory reset gesture.
type ResetConfig struct {
	PressDuration time.Duration `yaml:"press_duration"`
	Label         string        `yaml:"label"`
}

// GPIOConfig holds the button and relay wiring.
type GPIOConfig struct {
	Backend      string        `yaml:"backend"` // "mock", "periph"
	ButtonPin    int           `yaml:"button_pin"`
	RelayPin     int           `yaml:"relay_pin"`
	RelayPulse   time.Duration `yaml:"relay_pulse"`
	Debounce     time.Duration `yaml:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoopConfig holds the foreground loop cadence.
type LoopConfig struct {
	Tick           time.Duration `yaml:"tick"`
	DisplayTimeout time.Duration `yaml:"display_timeout"`
	EventQueue     int           `yaml:"event_queue"`
	RejectHold     time.Duration `yaml:"reject_hold"` // how long rejection indicators stay before the link drops
}

// RegistryConfig bounds bonded-device enumeration.
type RegistryConfig struct {
	MaxBonds     int           `yaml:"max_bonds"`
	Buffers      int           `yaml:"buffers"`
	LeaseTimeout time.Duration `yaml:"lease_timeout"`
}

// TransportConfig selects the wireless stack.
type TransportConfig struct {
	Backend                  string  `yaml:"backend"` // "sim", "tinygo"
	RequireAuthenticatedLink bool    `yaml:"require_authenticated_link"`
	RejectLogRate            float64 `yaml:"reject_log_rate"` // warn lines per second for rejected links
	RejectLogBurst           int     `yaml:"reject_log_burst"`
}

// StorageConfig holds the SQLite database paths.
type StorageConfig struct {
	BondsPath  string `yaml:"bonds_path"`
	EventsPath string `yaml:"events_path"`
	AuditKey   string `yaml:"audit_key"` // salts peer identity hashes in the access log
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".garage-opener")
	}
	return "./data"
}

// Defaults returns a Config with the values of the reference hardware build.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Device: DeviceConfig{
			Name:               "Garage",
			ServiceUUID:        "9ba08ea3-3fa9-4622-bae5-bdd3f0c7fedf",
			CharacteristicUUID: "427c5c12-0f90-46be-ba43-7e4a207be489",
			Command:            "TRIGGER",
			StatusValue:        "Status: Ready",
			InitialValue:       "Garage ready",
		},
		Pairing: PairingConfig{
			PressDuration:     5 * time.Second,
			WindowTimeout:     60 * time.Second,
			Label:             "PAIr",
			AllowFirstPairing: true,
		},
		Reset: ResetConfig{
			PressDuration: 5 * time.Second,
			Label:         "rst",
		},
		GPIO: GPIOConfig{
			Backend:      "mock",
			ButtonPin:    13,
			RelayPin:     12,
			RelayPulse:   750 * time.Millisecond,
			Debounce:     15 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		},
		Loop: LoopConfig{
			Tick:           100 * time.Millisecond,
			DisplayTimeout: 5 * time.Second,
			EventQueue:     32,
			RejectHold:     0,
		},
		Registry: RegistryConfig{
			MaxBonds:     15,
			Buffers:      4,
			LeaseTimeout: 50 * time.Millisecond,
		},
		Transport: TransportConfig{
			Backend:                  "sim",
			RequireAuthenticatedLink: true,
			RejectLogRate:            1,
			RejectLogBurst:           5,
		},
		Storage: StorageConfig{
			BondsPath:  filepath.Join(dataDir, "bonds.db"),
			EventsPath: filepath.Join(dataDir, "events.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file over Defaults, applies env var overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps OPENER_* env vars to config fields. Malformed
// values are ignored and leave the field unchanged.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENER_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}
	if v := os.Getenv("OPENER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("OPENER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("OPENER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("OPENER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("OPENER_GPIO_BACKEND"); v != "" {
		cfg.GPIO.Backend = v
	}
	if v := os.Getenv("OPENER_GPIO_BUTTON_PIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GPIO.ButtonPin = n
		}
	}
	if v := os.Getenv("OPENER_GPIO_RELAY_PIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GPIO.RelayPin = n
		}
	}
	if v := os.Getenv("OPENER_PAIRING_WINDOW_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pairing.WindowTimeout = d
		}
	}
	if v := os.Getenv("OPENER_TRANSPORT_BACKEND"); v != "" {
		cfg.Transport.Backend = v
	}
	if v := os.Getenv("OPENER_TRANSPORT_REQUIRE_AUTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Transport.RequireAuthenticatedLink = b
		}
	}
	if v := os.Getenv("OPENER_STORAGE_BONDS_PATH"); v != "" {
		cfg.Storage.BondsPath = v
	}
	if v := os.Getenv("OPENER_STORAGE_EVENTS_PATH"); v != "" {
		cfg.Storage.EventsPath = v
	}
	if v := os.Getenv("OPENER_STORAGE_AUDIT_KEY"); v != "" {
		cfg.Storage.AuditKey = v
	}
	if v := os.Getenv("OPENER_DEVICE_COMMAND"); v != "" {
		cfg.Device.Command = strings.TrimSpace(v)
	}
}
