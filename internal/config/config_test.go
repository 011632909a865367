package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "duckdb-ui.yaml")

	yaml := `
server:
  port: 5000
events:
  wait_timeout: 2s
  max_waiters: 3
watcher:
  poll_interval: 1s
executor:
  chunk_size: 100
database:
  path: /tmp/ui.db
log:
  level: debug
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.Events.WaitTimeout)
	assert.Equal(t, 3, cfg.Events.MaxWaiters)
	assert.Equal(t, time.Second, cfg.Watcher.PollInterval)
	assert.Equal(t, time.Millisecond, cfg.Executor.StepInterval)
	assert.Equal(t, 100, cfg.Executor.ChunkSize)
	assert.Equal(t, "/tmp/ui.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644))

	_, err := Load(cfgPath)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, 4213, cfg.Server.Port)
	assert.Equal(t, 284*time.Millisecond, cfg.Watcher.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Events.WaitTimeout)
	assert.Equal(t, 6, cfg.Events.MaxWaiters)
	assert.Equal(t, "http://localhost:4213", cfg.LocalURL())
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UI_LOCAL_PORT", "4999")
	t.Setenv("ui_polling_interval", "0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4999, cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Watcher.PollInterval, "zero disables the watcher")
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("ui_local_port", "not-a-port")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"no waiters", func(c *Config) { c.Events.MaxWaiters = 0 }},
		{"too many waiters", func(c *Config) { c.Events.MaxWaiters = MaxWaitersLimit + 1 }},
		{"zero wait timeout", func(c *Config) { c.Events.WaitTimeout = 0 }},
		{"negative poll", func(c *Config) { c.Watcher.PollInterval = -time.Second }},
		{"zero step", func(c *Config) { c.Executor.StepInterval = 0 }},
		{"zero chunk", func(c *Config) { c.Executor.ChunkSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.NotValid), "got %v", err)
		})
	}
}

func TestEnvEnabled(t *testing.T) {
	tests := []struct {
		value string
		set   bool
		want  bool
	}{
		{"1", true, true},
		{"true", true, true},
		{"TRUE", true, true},
		{"0", true, false},
		{"yes", true, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if tt.set {
				t.Setenv("UI_TEST_FLAG", tt.value)
			}
			assert.Equal(t, tt.want, EnvEnabled("ui_test_flag"))
		})
	}
}

func TestLookupEnvPrefersExactName(t *testing.T) {
	t.Setenv("ui_case_probe", "lower")
	t.Setenv("UI_CASE_PROBE", "upper")

	v, ok := LookupEnv("ui_case_probe")
	require.True(t, ok)
	assert.Equal(t, "lower", v)
	assert.Equal(t, "fallback", EnvOrDefault("ui_case_missing", "fallback"))
}
