// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Recommend.RequestBudget != 5*time.Second {
		t.Errorf("RequestBudget = %v, want 5s", cfg.Recommend.RequestBudget)
	}
	if cfg.Recommend.ColdStartCeiling != 0.3 {
		t.Errorf("ColdStartCeiling = %v, want 0.3", cfg.Recommend.ColdStartCeiling)
	}
	if cfg.Recommend.HeuristicWindow != 4 {
		t.Errorf("HeuristicWindow = %d, want 4", cfg.Recommend.HeuristicWindow)
	}
	if cfg.Signals.AdapterTimeout >= cfg.Recommend.RequestBudget {
		t.Error("adapter timeout must be shorter than the request budget")
	}
	if cfg.Retrain.WindowDays != 730 {
		t.Errorf("Retrain.WindowDays = %d, want 730", cfg.Retrain.WindowDays)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"DUCKDB_PATH", "database.path"},
		{"CACHE_BACKEND", "cache.backend"},
		{"WEATHER_URL", "signals.weather_url"},
		{"RECOMMEND_COLD_START_CEILING", "recommend.cold_start_ceiling"},
		{"RETRAIN_SCHEDULE", "retrain.schedule"},
		{"log_level", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "CACHE_BACKEND"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis"; c.Cache.RedisAddr = "" }, "REDIS_ADDR"},
		{"adapter timeout exceeds budget", func(c *Config) { c.Signals.AdapterTimeout = 6 * time.Second }, "SIGNAL_ADAPTER_TIMEOUT"},
		{"relative weather url", func(c *Config) { c.Signals.WeatherURL = "/forecast" }, "WEATHER_URL"},
		{"ceiling above one", func(c *Config) { c.Recommend.ColdStartCeiling = 1.5 }, "RECOMMEND_COLD_START_CEILING"},
		{"multiplier below one", func(c *Config) { c.Recommend.LargeEventMultiplier = 0.5 }, "event multipliers"},
		{"bad cron", func(c *Config) { c.Retrain.Schedule = "every sunday" }, "RETRAIN_SCHEDULE"},
		{"bad cron ignored when disabled", func(c *Config) { c.Retrain.Enabled = false; c.Retrain.Schedule = "x" }, ""},
		{"holdout out of range", func(c *Config) { c.Retrain.HoldoutFraction = 1 }, "RETRAIN_HOLDOUT_FRACTION"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"wildcard cors in production", func(c *Config) { c.Server.Environment = "production" }, "CORS_ORIGINS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9100
cache:
  backend: redis
  redis_addr: "cache.internal:6379"
recommend:
  stale_penalty: 0.4
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9200")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want env override 9200", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "cache.internal:6379" {
		t.Errorf("cache from file not applied: %+v", cfg.Cache)
	}
	if cfg.Recommend.StalePenalty != 0.4 {
		t.Errorf("StalePenalty = %v, want 0.4", cfg.Recommend.StalePenalty)
	}
	if cfg.Recommend.MinVisits != 4 {
		t.Errorf("MinVisits default lost: %d", cfg.Recommend.MinVisits)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestFindConfigFileMissingEnvPath(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/non/existent/stallcast.yaml")
	t.Chdir(t.TempDir())

	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() = %q, want empty", got)
	}
}
