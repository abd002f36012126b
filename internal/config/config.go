// Package config loads the orchestrator engine's settings from TOML,
// defaults, then environment (env wins), and exposes a runtime-mutable
// global lock satisfying orchestrator.EngineSettings.
package config

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk / env shape of engine settings.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Retry     RetryConfig     `toml:"retry"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Callback  CallbackConfig  `toml:"callback"`
	Engine    EngineConfig    `toml:"engine"`
}

// DatabaseConfig names the persistence backend a LogWriter/ProcessStatStore
// is constructed against. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// RetryConfig is the backoff policy internal/scheduling applies to Waiting
// processes.
type RetryConfig struct {
	MaxAttempts      int `toml:"max_attempts"`
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	MaxDelaySeconds  int `toml:"max_delay_seconds"`
}

// TelemetryConfig configures the OTEL exporter observer.Init wires up.
type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// CallbackConfig configures the HTTP address callback.Server listens on.
// PublicBaseURL is loaded but not used: generated callback routes are
// relative paths under orchestrator.CallbackRoutePrefix.
type CallbackConfig struct {
	ListenAddr    string `toml:"listen_addr"`
	PublicBaseURL string `toml:"public_base_url"`
}

// EngineConfig holds settings that start locked/unlocked at boot but remain
// runtime-mutable afterward.
type EngineConfig struct {
	StartLocked bool `toml:"start_locked"`
}

// Default returns a Config with every field set to a usable default.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "orchestrator.db"},
		Retry: RetryConfig{
			MaxAttempts:      5,
			BaseDelaySeconds: 10,
			MaxDelaySeconds:  900,
		},
		Telemetry: TelemetryConfig{ServiceName: "orchestrator-core"},
		Callback:  CallbackConfig{ListenAddr: ":8089"},
	}
}

// Load reads config: defaults -> TOML file (if present) -> environment
// (env wins). A missing file at path is not an error; Load falls back to
// defaults overlaid with whatever TOML was found, then env.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "orchestrator.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("ORCHESTRATOR_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("ORCHESTRATOR_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ORCHESTRATOR_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
	if v := os.Getenv("ORCHESTRATOR_CALLBACK_LISTEN_ADDR"); v != "" {
		cfg.Callback.ListenAddr = v
	}
	if v := os.Getenv("ORCHESTRATOR_CALLBACK_PUBLIC_BASE_URL"); v != "" {
		cfg.Callback.PublicBaseURL = v
	}
	if v := os.Getenv("ORCHESTRATOR_START_LOCKED"); v != "" {
		if locked, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.StartLocked = locked
		}
	}

	return cfg
}

// Settings is the loaded Config plus the atomically toggled global lock,
// satisfying orchestrator.EngineSettings. Safe for concurrent use by many
// ExecSteps calls.
type Settings struct {
	cfg    Config
	locked atomic.Bool
}

// NewSettings wraps cfg as a Settings, honoring cfg.Engine.StartLocked as the
// lock's initial value.
func NewSettings(cfg Config) *Settings {
	s := &Settings{cfg: cfg}
	s.locked.Store(cfg.Engine.StartLocked)
	return s
}

// GlobalLock implements orchestrator.EngineSettings.
func (s *Settings) GlobalLock() bool { return s.locked.Load() }

// SetGlobalLock pauses (true) or resumes (false) every ExecSteps call
// consulting this Settings, without restarting the process.
func (s *Settings) SetGlobalLock(locked bool) { s.locked.Store(locked) }

// Config returns the loaded configuration. Callers should treat the result
// as read-only; mutate the engine's runtime behavior through SetGlobalLock.
func (s *Settings) Config() Config { return s.cfg }
