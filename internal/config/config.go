// Package config loads runtime settings for the sync engine.
//
// Settings come from an optional imotara.yaml config file, IMOTARA_*
// environment variables, and built-in defaults, in that precedence order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all runtime settings for the sync engine and CLI.
type Config struct {
	// RemoteBaseURL is the record service endpoint.
	RemoteBaseURL string `mapstructure:"remote_base_url"`

	// RequestTimeout bounds a single push or fetch request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// AutoSyncDelaySeconds is the debounce delay before an automatic
	// sync after unsynced changes appear. Clamped to [3, 60] at load.
	AutoSyncDelaySeconds int `mapstructure:"auto_sync_delay_seconds"`

	// ThrottleWindow deduplicates near-simultaneous manual triggers.
	ThrottleWindow time.Duration `mapstructure:"throttle_window"`

	// DatabasePath is the SQLite file backing the local store.
	DatabasePath string `mapstructure:"database_path"`

	// InboxDir is the drop directory watched in daemon mode.
	InboxDir string `mapstructure:"inbox_dir"`

	// LogFile receives rotating daemon logs; empty means stderr only.
	LogFile string `mapstructure:"log_file"`
}

// Load reads configuration from the given file (optional), the
// environment, and defaults.
//
// A missing config file is fine; a malformed one is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("remote_base_url", "https://api.imotara.app")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("auto_sync_delay_seconds", 10)
	v.SetDefault("throttle_window", 900*time.Millisecond)
	v.SetDefault("database_path", ".imotara/store.db")
	v.SetDefault("inbox_dir", ".imotara/inbox")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("IMOTARA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("imotara")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(".imotara")
		if err := v.ReadInConfig(); err != nil {
			// Defaults are a complete configuration.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// The debounce delay is clamped, not rejected: a bad value from the
	// collaborator should degrade to a usable one.
	if cfg.AutoSyncDelaySeconds < 3 {
		cfg.AutoSyncDelaySeconds = 3
	}
	if cfg.AutoSyncDelaySeconds > 60 {
		cfg.AutoSyncDelaySeconds = 60
	}

	if cfg.RemoteBaseURL == "" {
		return nil, fmt.Errorf("remote_base_url cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = 900 * time.Millisecond
	}

	return &cfg, nil
}
