// Package config provides configuration loading and management for storyloop.
//
// Configuration is loaded using Viper, supporting YAML config files and environment
// variable overrides. The defaults work without any configuration file; only the
// worker command has to be supplied before `storyloop run` can act on stories.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [StoreConfig] selects the persistence backend
//   - [WorkerConfig] names the external worker process
//
// Configuration priority (highest to lowest):
//  1. Environment variables (STORYLOOP_ prefix, e.g. STORYLOOP_WORKER_COMMAND)
//  2. Config file specified by STORYLOOP_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/storyloop/config.yaml
//     - macOS: ~/Library/Application Support/storyloop/config.yaml
//     - Windows: %APPDATA%\storyloop\config.yaml
//  4. ./storyloop.yaml
//  5. [DefaultConfig] defaults
package config

import (
	"errors"
	"fmt"

	"storyloop/internal/store"
	"storyloop/internal/telemetry"
	"storyloop/internal/transition"
)

// Config represents the root configuration structure.
type Config struct {
	// Store selects where the story records and run state live.
	Store StoreConfig `mapstructure:"store"`

	// Driver controls the iteration loop.
	Driver DriverConfig `mapstructure:"driver"`

	// Worker names the process that acts on directives.
	Worker WorkerConfig `mapstructure:"worker"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Output contains terminal output formatting configuration.
	Output OutputConfig `mapstructure:"output"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "yaml" (single document, default) or "sqlite".
	Backend string `mapstructure:"backend"`

	// Path is the state file. Empty means the backend's default location.
	Path string `mapstructure:"path"`
}

// DriverConfig controls the iteration loop.
type DriverConfig struct {
	// MaxIterations bounds one `storyloop run` invocation.
	// Default: 50
	MaxIterations int `mapstructure:"max_iterations"`

	// LogDir receives one JSON-lines audit log per iteration.
	// Empty disables audit logs.
	// Default: ".storyloop/logs"
	LogDir string `mapstructure:"log_dir"`

	// EscalationThreshold is the number of distinct failed strategies (or
	// retries) after which a story is annotated as blocked.
	// Default: 3
	EscalationThreshold int `mapstructure:"escalation_threshold"`
}

// WorkerConfig names the external worker process.
type WorkerConfig struct {
	// Command is the executable run for every directive.
	Command string `mapstructure:"command"`

	// Args are passed to Command unchanged.
	Args []string `mapstructure:"args"`

	// Dir is the working directory. Empty means the current directory.
	Dir string `mapstructure:"dir"`

	// TestCommand, when set, is run after the worker reports new code. A
	// non-zero exit turns the outcome into tests_failed.
	TestCommand string `mapstructure:"test_command"`

	// TestArgs are passed to TestCommand unchanged.
	TestArgs []string `mapstructure:"test_args"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Stdout       bool   `mapstructure:"stdout"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// OutputConfig contains terminal output formatting configuration.
type OutputConfig struct {
	// TruncateLength is the maximum width of free-text columns such as titles
	// and skip reasons. Longer values are truncated with "..." suffix.
	// Default: 60
	TruncateLength int `mapstructure:"truncate_length"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: store.BackendYAML,
		},
		Driver: DriverConfig{
			MaxIterations:       50,
			LogDir:              ".storyloop/logs",
			EscalationThreshold: transition.DefaultEscalationThreshold,
		},
		Output: OutputConfig{
			TruncateLength: 60,
		},
	}
}

// StorePath returns the configured state path, or the backend's default.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Backend == store.BackendSQLite {
		return store.DefaultSQLitePath
	}
	return store.DefaultFilePath
}

// TelemetrySettings converts the telemetry section for [telemetry.Init].
func (c *Config) TelemetrySettings() telemetry.Settings {
	return telemetry.Settings{
		Enabled:      c.Telemetry.Enabled,
		Stdout:       c.Telemetry.Stdout,
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
	}
}

// Validate checks values that cannot be corrected silently.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case store.BackendYAML, store.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", store.BackendYAML, store.BackendSQLite, c.Store.Backend))
	}
	if c.Driver.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("driver.max_iterations must be positive, got %d", c.Driver.MaxIterations))
	}
	if c.Driver.EscalationThreshold <= 0 {
		errs = append(errs, fmt.Errorf("driver.escalation_threshold must be positive, got %d", c.Driver.EscalationThreshold))
	}
	return errors.Join(errs...)
}
