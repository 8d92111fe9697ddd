package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	appName        = "storyloop"
	envPrefix      = "STORYLOOP"
	configFileName = "config.yaml"
	localFileName  = "storyloop.yaml"
)

// Loader handles configuration loading using Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new [Loader] with a fresh Viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load resolves the config file per the package priority order, applies
// environment overrides and returns the result. A missing config file is not
// an error; defaults apply.
func (l *Loader) Load() (*Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return l.load(path)
}

// LoadFromFile loads configuration from the given file, with environment
// overrides still applied. The format follows the file extension.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	return l.load(path)
}

func (l *Loader) load(path string) (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()
	l.v.SetDefault("store.backend", d.Store.Backend)
	l.v.SetDefault("store.path", d.Store.Path)
	l.v.SetDefault("driver.max_iterations", d.Driver.MaxIterations)
	l.v.SetDefault("driver.log_dir", d.Driver.LogDir)
	l.v.SetDefault("driver.escalation_threshold", d.Driver.EscalationThreshold)
	l.v.SetDefault("worker.command", d.Worker.Command)
	l.v.SetDefault("worker.args", []string{})
	l.v.SetDefault("worker.dir", d.Worker.Dir)
	l.v.SetDefault("worker.test_command", d.Worker.TestCommand)
	l.v.SetDefault("worker.test_args", []string{})
	l.v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	l.v.SetDefault("telemetry.stdout", d.Telemetry.Stdout)
	l.v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	l.v.SetDefault("output.truncate_length", d.Output.TruncateLength)
}

func resolveConfigPath() (string, error) {
	if p := os.Getenv(envPrefix + "_CONFIG_PATH"); p != "" {
		return p, nil
	}

	if p, err := DefaultConfigPath(); err == nil {
		if _, statErr := os.Stat(p); statErr == nil {
			return p, nil
		}
	}

	if _, err := os.Stat(localFileName); err == nil {
		return localFileName, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("error checking %s: %w", localFileName, err)
	}
	return "", nil
}

// ConfigDir returns the platform-standard storyloop configuration directory.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigPath returns the config file path inside [ConfigDir].
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}
