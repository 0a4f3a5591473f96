// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package config loads Stallcast configuration.
//
// Loading order (Koanf v2), later layers override earlier ones:
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/stallcast/config.yaml)
//  3. Mapped environment variables (see envTransformFunc)
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load config")
//	}
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Signals   SignalsConfig   `koanf:"signals"`
	Recommend RecommendConfig `koanf:"recommend"`
	Retrain   RetrainConfig   `koanf:"retrain"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener and its middleware.
type ServerConfig struct {
	Port              int           `koanf:"port"`
	Host              string        `koanf:"host"`
	Timeout           time.Duration `koanf:"timeout"`
	Environment       string        `koanf:"environment"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// DatabaseConfig configures the DuckDB relational store.
type DatabaseConfig struct {
	Path      string `koanf:"path"` // ":memory:" for an ephemeral store
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// CacheConfig configures the recommendation cache. The cache is a derived view and
// may be cleared at any time.
type CacheConfig struct {
	Backend       string        `koanf:"backend"` // memory or redis
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
	MaxEntries    int           `koanf:"max_entries"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// SignalsConfig configures the external weather and event providers and the
// last-known-good snapshot store used by their fallback ladders.
type SignalsConfig struct {
	WeatherURL         string        `koanf:"weather_url"`
	WeatherAPIKey      string        `koanf:"weather_api_key"`
	EventsURL          string        `koanf:"events_url"`
	EventsAPIKey       string        `koanf:"events_api_key"`
	AdapterTimeout     time.Duration `koanf:"adapter_timeout"`
	WeatherMaxAge      time.Duration `koanf:"weather_max_age"`
	EventsMaxAge       time.Duration `koanf:"events_max_age"`
	EventRadiusKm      float64       `koanf:"event_radius_km"`
	RateLimitPerSecond float64       `koanf:"rate_limit_per_second"`
	RateLimitBurst     int           `koanf:"rate_limit_burst"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	SnapshotPath       string        `koanf:"snapshot_path"` // empty = in-memory badger
	// RefreshInterval controls how often signals for upcoming planned appearances
	// are re-fetched; 0 disables the refresher.
	RefreshInterval    time.Duration `koanf:"refresh_interval"`
	RefreshHorizonDays int           `koanf:"refresh_horizon_days"`
}

// RecommendConfig holds the request-path tuning knobs.
type RecommendConfig struct {
	RequestBudget          time.Duration `koanf:"request_budget"`
	HistoryDays            int           `koanf:"history_days"`
	HeuristicWindow        int           `koanf:"heuristic_window"`
	MinVisits              int           `koanf:"min_visits"`
	LargeEventMultiplier   float64       `koanf:"large_event_multiplier"`
	MediumEventMultiplier  float64       `koanf:"medium_event_multiplier"`
	LargeEventAttendance   int           `koanf:"large_event_attendance"`
	MediumEventAttendance  int           `koanf:"medium_event_attendance"`
	ColdStartCeiling       float64       `koanf:"cold_start_ceiling"`
	LowConfidenceThreshold float64       `koanf:"low_confidence_threshold"`
	StalePenalty           float64       `koanf:"stale_penalty"`
	VisitSaturation        int           `koanf:"visit_saturation"`
	UncertaintyWeight      float64       `koanf:"uncertainty_weight"`
}

// RetrainConfig configures the retraining scheduler.
type RetrainConfig struct {
	Enabled             bool          `koanf:"enabled"`
	Schedule            string        `koanf:"schedule"` // standard 5-field cron expression
	TrainOnStartup      bool          `koanf:"train_on_startup"`
	Timeout             time.Duration `koanf:"timeout"`
	WindowDays          int           `koanf:"window_days"`
	MaxFeedbackVariance float64       `koanf:"max_feedback_variance"`
	Tolerance           float64       `koanf:"tolerance"`
	HoldoutFraction     float64       `koanf:"holdout_fraction"`
	Trees               int           `koanf:"trees"`
	MaxDepth            int           `koanf:"max_depth"`
	MinLeaf             int           `koanf:"min_leaf"`
	Seed                int64         `koanf:"seed"`
	RetainedVersions    int           `koanf:"retained_versions"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (s *ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}
