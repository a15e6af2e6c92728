// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "NEWSRIVER_CONFIG"

// defaultConfigPaths are searched in order; the first existing file wins.
var defaultConfigPaths = []string{
	"newsriver.yaml",
	"newsriver.yml",
	"/etc/newsriver/config.yaml",
}

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string          `koanf:"listen_addr"`
	DataDir    string          `koanf:"data_dir"`
	LogLevel   string          `koanf:"log_level"`
	Database   DatabaseConfig  `koanf:"database"`
	Fetch      FetchConfig     `koanf:"fetch"`
	Scheduler  SchedulerConfig `koanf:"scheduler"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// FetchConfig tunes the HTTP transport retry behavior.
type FetchConfig struct {
	MaxRetries   int           `koanf:"max_retries"`
	BackoffBase  time.Duration `koanf:"backoff_base"`
	BackoffMax   time.Duration `koanf:"backoff_max"`
	UserAgent    string        `koanf:"user_agent"`
	AcceptHeader string        `koanf:"accept_header"`
}

// SchedulerConfig tunes the refresh cadences.
type SchedulerConfig struct {
	TickInterval        time.Duration `koanf:"tick_interval"`
	BatchSize           int           `koanf:"batch_size"`
	InterFeedDelay      time.Duration `koanf:"inter_feed_delay"`
	WarmStartDelay      time.Duration `koanf:"warm_start_delay"`
	MaintenanceInterval time.Duration `koanf:"maintenance_interval"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddr: ":8520",
		DataDir:    "./data",
		LogLevel:   "info",
		Database: DatabaseConfig{
			Path: "./data/newsriver.db",
		},
		Fetch: FetchConfig{
			MaxRetries:   2,
			BackoffBase:  300 * time.Millisecond,
			BackoffMax:   2 * time.Second,
			UserAgent:    "newsriver/1.0 (+https://github.com/bryan-buckman/newsriver)",
			AcceptHeader: "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
		},
		Scheduler: SchedulerConfig{
			TickInterval:        5 * time.Minute,
			BatchSize:           10,
			InterFeedDelay:      time.Second,
			WarmStartDelay:      10 * time.Second,
			MaintenanceInterval: 24 * time.Hour,
		},
	}
}

// Load builds the configuration with precedence env > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// NEWSRIVER_LISTEN_ADDR -> listen_addr
	// NEWSRIVER_SCHEDULER__BATCH_SIZE -> scheduler.batch_size
	if err := k.Load(env.Provider("NEWSRIVER_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps variable names to config paths. A double underscore
// separates nesting levels so single underscores survive inside key names.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "NEWSRIVER_"))
	return strings.ReplaceAll(key, "__", ".")
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative")
	}
	if c.Scheduler.BatchSize < 0 {
		return fmt.Errorf("scheduler.batch_size must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
