package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/store"
)

// isolate points every config lookup at empty temp locations.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))
	t.Setenv("STORYLOOP_CONFIG_PATH", "")
	t.Chdir(tmpDir)
	return tmpDir
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, store.BackendYAML, cfg.Store.Backend)
	assert.Equal(t, 50, cfg.Driver.MaxIterations)
	assert.Equal(t, ".storyloop/logs", cfg.Driver.LogDir)
	assert.Equal(t, 3, cfg.Driver.EscalationThreshold)
	assert.Empty(t, cfg.Worker.Command)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 60, cfg.Output.TruncateLength)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_StorePath(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		path    string
		want    string
	}{
		{"yaml default", store.BackendYAML, "", store.DefaultFilePath},
		{"sqlite default", store.BackendSQLite, "", store.DefaultSQLitePath},
		{"explicit path", store.BackendSQLite, "/tmp/x.db", "/tmp/x.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Store.Backend = tt.backend
			cfg.Store.Path = tt.path
			assert.Equal(t, tt.want, cfg.StorePath())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "postgres"
	cfg.Driver.MaxIterations = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.backend must be "yaml" or "sqlite", got "postgres"`)
	assert.Contains(t, err.Error(), "driver.max_iterations must be positive")
}

func TestConfig_TelemetrySettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry = TelemetryConfig{Enabled: true, Stdout: true, OTLPEndpoint: "localhost:4318"}

	s := cfg.TelemetrySettings()
	assert.True(t, s.Enabled)
	assert.True(t, s.Stdout)
	assert.Equal(t, "localhost:4318", s.OTLPEndpoint)
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.v)
}

func TestLoader_LoadFromFile(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, t.TempDir(), "test-config.yaml", `
store:
  backend: sqlite
  path: /var/lib/storyloop/state.db
driver:
  max_iterations: 5
worker:
  command: ./bin/worker
  args: ["--fast", "--quiet"]
  test_command: make
  test_args: ["test"]
telemetry:
  enabled: true
  otlp_endpoint: localhost:4318
`)

	cfg, err := NewLoader().LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, store.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/storyloop/state.db", cfg.StorePath())
	assert.Equal(t, 5, cfg.Driver.MaxIterations)
	assert.Equal(t, ".storyloop/logs", cfg.Driver.LogDir, "unset keys keep defaults")
	assert.Equal(t, "./bin/worker", cfg.Worker.Command)
	assert.Equal(t, []string{"--fast", "--quiet"}, cfg.Worker.Args)
	assert.Equal(t, "make", cfg.Worker.TestCommand)
	assert.Equal(t, []string{"test"}, cfg.Worker.TestArgs)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.OTLPEndpoint)
}

func TestLoader_LoadFromFile_NonExistent(t *testing.T) {
	isolate(t)
	_, err := NewLoader().LoadFromFile("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoader_LoadFromFile_InvalidStructure(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, t.TempDir(), "invalid.yaml", `
driver:
  - this is not valid yaml for this structure
    missing: colon here
`)

	_, err := NewLoader().LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestLoader_LoadFromFile_InvalidValues(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, t.TempDir(), "bad.yaml", "store:\n  backend: postgres\n")

	_, err := NewLoader().LoadFromFile(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoader_LoadFromFile_JSON(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, t.TempDir(), "config.json", `{
		"worker": {
			"command": "/json/worker"
		}
	}`)

	cfg, err := NewLoader().LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/json/worker", cfg.Worker.Command)
}

func TestLoader_Load_DefaultsWithNoConfigFile(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), withNilArgs(cfg))
}

func TestLoader_Load_LocalFile(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "storyloop.yaml", "driver:\n  log_dir: audit\n")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "audit", cfg.Driver.LogDir)
}

func TestLoader_Load_UserConfigDir(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "storyloop.yaml", "driver:\n  log_dir: local\n")

	userPath, err := DefaultConfigPath()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0755))
	require.NoError(t, os.WriteFile(userPath, []byte("driver:\n  log_dir: user\n"), 0644))

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "user", cfg.Driver.LogDir, "user config dir outranks ./storyloop.yaml")
}

func TestLoader_Load_WithConfigPathEnv(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, t.TempDir(), "custom-config.yaml", "worker:\n  command: /from/env/path/worker\n")
	t.Setenv("STORYLOOP_CONFIG_PATH", configPath)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/env/path/worker", cfg.Worker.Command)
}

func TestLoader_Load_EnvOverridesTakePrecedence(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, t.TempDir(), "config.yaml", `
worker:
  command: /from/file/worker
driver:
  max_iterations: 5
`)
	t.Setenv("STORYLOOP_CONFIG_PATH", configPath)
	t.Setenv("STORYLOOP_WORKER_COMMAND", "/from/env/override/worker")
	t.Setenv("STORYLOOP_DRIVER_MAX_ITERATIONS", "7")
	t.Setenv("STORYLOOP_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/env/override/worker", cfg.Worker.Command)
	assert.Equal(t, 7, cfg.Driver.MaxIterations)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestConfigDir(t *testing.T) {
	isolate(t)
	configDir, err := ConfigDir()
	require.NoError(t, err)
	assert.Contains(t, configDir, "storyloop")
}

func TestDefaultConfigPath(t *testing.T) {
	isolate(t)
	configPath, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Contains(t, configPath, "storyloop")
	assert.Equal(t, "config.yaml", filepath.Base(configPath))
}

// withNilArgs normalizes the empty args default so configs compare equal.
func withNilArgs(cfg *Config) *Config {
	if len(cfg.Worker.Args) == 0 {
		cfg.Worker.Args = nil
	}
	if len(cfg.Worker.TestArgs) == 0 {
		cfg.Worker.TestArgs = nil
	}
	return cfg
}
