package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/inspector-proxy-go/reaper"
	"github.com/joeshaw/envdecode"
)

const (
	backendNone  = "none"
	backendFS    = "fs"
	backendRedis = "redis"
)

// Config is read from the environment.
type Config struct {
	// ListenAddr accepts TCP debuggers. ENV: INSPECTOR_LISTEN_ADDR
	ListenAddr string `env:"INSPECTOR_LISTEN_ADDR,default=127.0.0.1:8082"`
	// DeviceAddr is the device inspector endpoint, host:port or ws:// URL.
	// ENV: INSPECTOR_DEVICE_ADDR
	DeviceAddr string `env:"INSPECTOR_DEVICE_ADDR,required"`
	// StatusAddr serves WebSocket debuggers and the session list.
	// ENV: INSPECTOR_STATUS_ADDR
	StatusAddr string `env:"INSPECTOR_STATUS_ADDR,default=127.0.0.1:8083"`
	// LogLevel is one of debug, info, warn, error. ENV: INSPECTOR_LOG_LEVEL
	LogLevel string `env:"INSPECTOR_LOG_LEVEL,default=info"`
	// LogFormat is text or json. ENV: INSPECTOR_LOG_FORMAT
	LogFormat string `env:"INSPECTOR_LOG_FORMAT,default=text"`

	Updates UpdatesConfig
}

// UpdatesConfig controls where updates live and how many are kept.
type UpdatesConfig struct {
	// Backend is none, fs or redis. ENV: UPDATES_BACKEND
	Backend string `env:"UPDATES_BACKEND,default=none"`
	// Dir is the fs backend root. ENV: UPDATES_DIR
	Dir string `env:"UPDATES_DIR"`
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for redis keys. ENV: UPDATES_KEY_PREFIX
	KeyPrefix string `env:"UPDATES_KEY_PREFIX"`
	// MaxToKeep is the retention threshold. ENV: UPDATES_MAX_TO_KEEP
	MaxToKeep int `env:"UPDATES_MAX_TO_KEEP,default=10"`
	// LaunchedID is the update currently running; it is never reaped.
	// ENV: UPDATES_LAUNCHED_ID
	LaunchedID string `env:"UPDATES_LAUNCHED_ID"`
	// ReapInterval between periodic passes; 0 reaps only on change.
	// ENV: UPDATES_REAP_INTERVAL
	ReapInterval time.Duration `env:"UPDATES_REAP_INTERVAL,default=10m"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem with cfg.
func (c Config) Validate() error {
	if c.DeviceAddr == "" {
		return fmt.Errorf("INSPECTOR_DEVICE_ADDR is required")
	}
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	switch c.Updates.Backend {
	case backendNone:
		return nil
	case backendFS:
		if c.Updates.Dir == "" {
			return fmt.Errorf("UPDATES_DIR is required for the %s backend", backendFS)
		}
	case backendRedis:
		if c.Updates.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s backend", backendRedis)
		}
	default:
		return fmt.Errorf("unknown updates backend %q", c.Updates.Backend)
	}

	if _, err := reaper.NewDevelopmentClientPolicy(c.Updates.MaxToKeep); err != nil {
		return err
	}
	if c.Updates.ReapInterval < 0 {
		return fmt.Errorf("UPDATES_REAP_INTERVAL must not be negative")
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
