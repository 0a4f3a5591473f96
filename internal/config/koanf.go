// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

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

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/stallcast/config.yaml",
	"/etc/stallcast/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8470,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			Environment:     "development",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:      "/data/stallcast.duckdb",
			MaxMemory: "1GB",
		},
		Cache: CacheConfig{
			Backend:       "memory",
			RedisAddr:     "127.0.0.1:6379",
			KeyPrefix:     "stallcast:recs:",
			MaxEntries:    10000,
			SweepInterval: 15 * time.Minute,
		},
		Signals: SignalsConfig{
			AdapterTimeout:     1500 * time.Millisecond,
			WeatherMaxAge:      12 * time.Hour,
			EventsMaxAge:       72 * time.Hour,
			EventRadiusKm:      5,
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
			RefreshInterval:    time.Hour,
			RefreshHorizonDays: 7,
		},
		Recommend: RecommendConfig{
			RequestBudget:          5 * time.Second,
			HistoryDays:            730,
			HeuristicWindow:        4,
			MinVisits:              4,
			LargeEventMultiplier:   1.5,
			MediumEventMultiplier:  1.2,
			LargeEventAttendance:   5000,
			MediumEventAttendance:  1000,
			ColdStartCeiling:       0.3,
			LowConfidenceThreshold: 0.5,
			StalePenalty:           0.25,
			VisitSaturation:        8,
			UncertaintyWeight:      0.4,
		},
		Retrain: RetrainConfig{
			Enabled:             true,
			Schedule:            "0 3 * * 0",
			TrainOnStartup:      true,
			Timeout:             30 * time.Minute,
			WindowDays:          730,
			MaxFeedbackVariance: 3.0,
			Tolerance:           0.05,
			HoldoutFraction:     0.2,
			Trees:               25,
			MaxDepth:            6,
			MinLeaf:             3,
			Seed:                42,
			RetainedVersions:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and the environment,
// then validates the result. Precedence is ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variables (lowercased) to koanf paths. Unmapped
// variables are ignored so the process environment cannot pollute the config.
var envMappings = map[string]string{
	"http_port":           "server.port",
	"http_host":           "server.host",
	"http_timeout":        "server.timeout",
	"environment":         "server.environment",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",
	"cors_origins":        "server.cors_origins",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"cache_backend":        "cache.backend",
	"redis_addr":           "cache.redis_addr",
	"redis_password":       "cache.redis_password",
	"redis_db":             "cache.redis_db",
	"cache_key_prefix":     "cache.key_prefix",
	"cache_max_entries":    "cache.max_entries",
	"cache_sweep_interval": "cache.sweep_interval",

	"weather_url":             "signals.weather_url",
	"weather_api_key":         "signals.weather_api_key",
	"events_url":              "signals.events_url",
	"events_api_key":          "signals.events_api_key",
	"signal_adapter_timeout":  "signals.adapter_timeout",
	"weather_max_age":         "signals.weather_max_age",
	"events_max_age":          "signals.events_max_age",
	"event_radius_km":         "signals.event_radius_km",
	"signal_rate_limit":       "signals.rate_limit_per_second",
	"signal_rate_burst":       "signals.rate_limit_burst",
	"breaker_max_failures":    "signals.breaker_max_failures",
	"breaker_timeout":         "signals.breaker_timeout",
	"signal_snapshot_path":    "signals.snapshot_path",
	"signal_refresh_interval": "signals.refresh_interval",
	"signal_refresh_horizon":  "signals.refresh_horizon_days",

	"recommend_request_budget":      "recommend.request_budget",
	"recommend_history_days":        "recommend.history_days",
	"recommend_heuristic_window":    "recommend.heuristic_window",
	"recommend_min_visits":          "recommend.min_visits",
	"recommend_large_event_mult":    "recommend.large_event_multiplier",
	"recommend_medium_event_mult":   "recommend.medium_event_multiplier",
	"recommend_large_event_size":    "recommend.large_event_attendance",
	"recommend_medium_event_size":   "recommend.medium_event_attendance",
	"recommend_cold_start_ceiling":  "recommend.cold_start_ceiling",
	"recommend_low_confidence":      "recommend.low_confidence_threshold",
	"recommend_stale_penalty":       "recommend.stale_penalty",
	"recommend_visit_saturation":    "recommend.visit_saturation",
	"recommend_uncertainty_weight":  "recommend.uncertainty_weight",
	"retrain_enabled":               "retrain.enabled",
	"retrain_schedule":              "retrain.schedule",
	"retrain_on_startup":            "retrain.train_on_startup",
	"retrain_timeout":               "retrain.timeout",
	"retrain_window_days":           "retrain.window_days",
	"retrain_max_feedback_variance": "retrain.max_feedback_variance",
	"retrain_tolerance":             "retrain.tolerance",
	"retrain_holdout_fraction":      "retrain.holdout_fraction",
	"retrain_trees":                 "retrain.trees",
	"retrain_max_depth":             "retrain.max_depth",
	"retrain_min_leaf":              "retrain.min_leaf",
	"retrain_seed":                  "retrain.seed",
	"retrain_retained_versions":     "retrain.retained_versions",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
