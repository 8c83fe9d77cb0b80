package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/inspector-proxy-go/reaper"
	"github.com/ggoodman/inspector-proxy-go/updates"
	"github.com/ggoodman/inspector-proxy-go/updates/fsstore"
)

// setEnv clears every variable Config reads, then applies vars.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range []string{
		"INSPECTOR_LISTEN_ADDR", "INSPECTOR_DEVICE_ADDR", "INSPECTOR_STATUS_ADDR",
		"INSPECTOR_LOG_LEVEL", "INSPECTOR_LOG_FORMAT",
		"UPDATES_BACKEND", "UPDATES_DIR", "REDIS_ADDR", "UPDATES_KEY_PREFIX",
		"UPDATES_MAX_TO_KEEP", "UPDATES_LAUNCHED_ID", "UPDATES_REAP_INTERVAL",
	} {
		t.Setenv(k, vars[k])
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setEnv(t, map[string]string{"INSPECTOR_DEVICE_ADDR": "127.0.0.1:9229"})

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8082" || cfg.StatusAddr != "127.0.0.1:8083" {
		t.Errorf("unexpected addresses %q %q", cfg.ListenAddr, cfg.StatusAddr)
	}
	if cfg.Updates.Backend != backendNone {
		t.Errorf("backend = %q, want none", cfg.Updates.Backend)
	}
	if cfg.Updates.MaxToKeep != reaper.DefaultMaxUpdatesToKeep {
		t.Errorf("max to keep = %d, want %d", cfg.Updates.MaxToKeep, reaper.DefaultMaxUpdatesToKeep)
	}
	if cfg.Updates.ReapInterval != 10*time.Minute {
		t.Errorf("reap interval = %v, want 10m", cfg.Updates.ReapInterval)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"INSPECTOR_DEVICE_ADDR": "ws://10.0.2.2:8081/inspector/device",
		"INSPECTOR_LOG_LEVEL":   "debug",
		"UPDATES_BACKEND":       "fs",
		"UPDATES_DIR":           t.TempDir(),
		"UPDATES_MAX_TO_KEEP":   "3",
		"UPDATES_REAP_INTERVAL": "30s",
	})

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}
	if cfg.Updates.MaxToKeep != 3 || cfg.Updates.ReapInterval != 30*time.Second {
		t.Fatalf("unexpected updates config %+v", cfg.Updates)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DeviceAddr: "127.0.0.1:9229",
			LogLevel:   "info",
			LogFormat:  "text",
			Updates:    UpdatesConfig{Backend: backendFS, Dir: "/tmp/updates", MaxToKeep: 10},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing device", func(c *Config) { c.DeviceAddr = "" }, nil},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, nil},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, nil},
		{"unknown backend", func(c *Config) { c.Updates.Backend = "s3" }, nil},
		{"fs without dir", func(c *Config) { c.Updates.Dir = "" }, nil},
		{"zero max to keep", func(c *Config) { c.Updates.MaxToKeep = 0 }, reaper.ErrInvalidMaxToKeep},
		{"negative interval", func(c *Config) { c.Updates.ReapInterval = -time.Second }, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.name == "valid" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tc.target != nil && !errors.Is(err, tc.target) {
				t.Fatalf("Validate() = %v, want %v", err, tc.target)
			}
		})
	}
}

func TestNoBackendSkipsRetentionChecks(t *testing.T) {
	cfg := Config{DeviceAddr: "d:1", LogLevel: "info", LogFormat: "json", Updates: UpdatesConfig{Backend: backendNone}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestOpenStoreFS(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, trigger, err := openStore(ctx, UpdatesConfig{Backend: backendFS, Dir: t.TempDir()}, newLogger(Config{LogLevel: "error"}))
	if err != nil {
		t.Fatalf("openStore() failed: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*fsstore.Store); !ok {
		t.Fatalf("unexpected store type %T", store)
	}
	if trigger == nil {
		t.Fatal("fs backend should provide a change trigger")
	}
}

func TestOpenStoreNone(t *testing.T) {
	store, trigger, err := openStore(context.Background(), UpdatesConfig{Backend: backendNone}, newLogger(Config{LogLevel: "error"}))
	if err != nil || store != nil || trigger != nil {
		t.Fatalf("openStore(none) = %v, %v, %v", store, trigger, err)
	}
}

func TestMarkLaunched(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("fsstore.New() failed: %v", err)
	}
	ctx := context.Background()
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Put(ctx, updates.Update{ID: "u1", CommitTime: old, LastAccessed: old}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	log := newLogger(Config{LogLevel: "error"})
	markLaunched(ctx, store, "u1", log)
	markLaunched(ctx, store, "missing", log)

	u, err := store.Get(ctx, "u1")
	if err != nil || u == nil {
		t.Fatalf("Get() = %v, %v", u, err)
	}
	if !u.LastAccessed.After(old) {
		t.Fatalf("last accessed not bumped: %v", u.LastAccessed)
	}
}

func TestRunPrintsSchema(t *testing.T) {
	if err := run([]string{"--manifest-schema"}); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
}

func TestRunRejectsArguments(t *testing.T) {
	if err := run([]string{"extra"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}
