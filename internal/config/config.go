package config

import (
	"os"
	"strconv"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// MaxWaitersLimit bounds events.max_waiters. Browsers allow six concurrent
// streams per origin, and the UI also needs room for regular requests.
const MaxWaitersLimit = 8

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Events   EventsConfig   `yaml:"events"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Executor ExecutorConfig `yaml:"executor"`
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type EventsConfig struct {
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	MaxWaiters  int           `yaml:"max_waiters"`
}

// WatcherConfig controls the catalog poll loop. A zero PollInterval disables it.
type WatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ExecutorConfig struct {
	StepInterval time.Duration `yaml:"step_interval"`
	ChunkSize    int           `yaml:"chunk_size"`
}

type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"read_only"`
}

type RemoteConfig struct {
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            4213,
			ShutdownTimeout: 5 * time.Second,
		},
		Events: EventsConfig{
			WaitTimeout: 5 * time.Second,
			MaxWaiters:  6,
		},
		Watcher: WatcherConfig{
			PollInterval: 284 * time.Millisecond,
		},
		Executor: ExecutorConfig{
			StepInterval: time.Millisecond,
			ChunkSize:    2048,
		},
		Database: DatabaseConfig{
			Path: ":memory:",
		},
		Remote: RemoteConfig{
			TokenEnv: "motherduck_token",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Annotatef(err, "reading config %q", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Annotatef(err, "parsing config %q", path)
			}
		}
	}

	if err := cfg.applyEnv(LookupEnv); err != nil {
		return nil, errors.Trace(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ui_local_port"); ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return errors.NotValidf("ui_local_port %q", v)
		}
		c.Server.Port = int(port)
	}
	if v, ok := lookup("ui_polling_interval"); ok {
		ms, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.NotValidf("ui_polling_interval %q", v)
		}
		c.Watcher.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if v, ok := lookup("ui_log_level"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("ui_database"); ok {
		c.Database.Path = v
	}
	return nil
}

// Validate reports the first setting that would make the server misbehave.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NotValidf("server port %d", c.Server.Port)
	}
	if c.Events.MaxWaiters < 1 || c.Events.MaxWaiters > MaxWaitersLimit {
		return errors.NotValidf("events max_waiters %d (want 1..%d)", c.Events.MaxWaiters, MaxWaitersLimit)
	}
	if c.Events.WaitTimeout <= 0 {
		return errors.NotValidf("events wait_timeout %v", c.Events.WaitTimeout)
	}
	if c.Watcher.PollInterval < 0 {
		return errors.NotValidf("watcher poll_interval %v", c.Watcher.PollInterval)
	}
	if c.Executor.StepInterval <= 0 {
		return errors.NotValidf("executor step_interval %v", c.Executor.StepInterval)
	}
	if c.Executor.ChunkSize <= 0 {
		return errors.NotValidf("executor chunk_size %d", c.Executor.ChunkSize)
	}
	return nil
}

// LocalURL is the origin the browser UI is served from. Mutating requests
// must declare it as their Origin.
func (c *Config) LocalURL() string {
	return "http://localhost:" + strconv.Itoa(c.Server.Port)
}
