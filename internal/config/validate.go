// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{"json": true, "console": true}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateServer(),
		c.validateDatabase(),
		c.validateCache(),
		c.validateSignals(),
		c.validateRecommend(),
		c.validateRetrain(),
		c.validateLogging(),
	)
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitReqs <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive when rate limiting is enabled")
	}
	if c.Server.IsProduction() {
		for _, o := range c.Server.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain '*' in production")
			}
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "memory":
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of: memory, redis")
	}
	return nil
}

func (c *Config) validateSignals() error {
	s := c.Signals
	for name, raw := range map[string]string{"WEATHER_URL": s.WeatherURL, "EVENTS_URL": s.EventsURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL", name)
		}
	}
	if s.AdapterTimeout <= 0 {
		return fmt.Errorf("SIGNAL_ADAPTER_TIMEOUT must be positive")
	}
	if c.Recommend.RequestBudget > 0 && s.AdapterTimeout >= c.Recommend.RequestBudget {
		return fmt.Errorf("SIGNAL_ADAPTER_TIMEOUT (%s) must be shorter than RECOMMEND_REQUEST_BUDGET (%s)",
			s.AdapterTimeout, c.Recommend.RequestBudget)
	}
	if s.WeatherMaxAge <= 0 || s.EventsMaxAge <= 0 {
		return fmt.Errorf("WEATHER_MAX_AGE and EVENTS_MAX_AGE must be positive")
	}
	if s.EventRadiusKm <= 0 {
		return fmt.Errorf("EVENT_RADIUS_KM must be positive")
	}
	if s.RefreshInterval < 0 {
		return fmt.Errorf("SIGNAL_REFRESH_INTERVAL must not be negative")
	}
	if s.RefreshInterval > 0 && (s.RefreshHorizonDays < 1 || s.RefreshHorizonDays > 30) {
		return fmt.Errorf("SIGNAL_REFRESH_HORIZON must be between 1 and 30 days")
	}
	return nil
}

func (c *Config) validateRecommend() error {
	r := c.Recommend
	if r.RequestBudget <= 0 {
		return fmt.Errorf("RECOMMEND_REQUEST_BUDGET must be positive")
	}
	if r.HeuristicWindow < 1 {
		return fmt.Errorf("RECOMMEND_HEURISTIC_WINDOW must be at least 1")
	}
	if r.MinVisits < 1 {
		return fmt.Errorf("RECOMMEND_MIN_VISITS must be at least 1")
	}
	if r.LargeEventMultiplier < 1 || r.MediumEventMultiplier < 1 {
		return fmt.Errorf("event multipliers must be >= 1")
	}
	if r.MediumEventAttendance <= 0 || r.LargeEventAttendance <= r.MediumEventAttendance {
		return fmt.Errorf("RECOMMEND_LARGE_EVENT_SIZE must exceed RECOMMEND_MEDIUM_EVENT_SIZE")
	}
	for name, v := range map[string]float64{
		"RECOMMEND_COLD_START_CEILING": r.ColdStartCeiling,
		"RECOMMEND_LOW_CONFIDENCE":     r.LowConfidenceThreshold,
		"RECOMMEND_STALE_PENALTY":      r.StalePenalty,
		"RECOMMEND_UNCERTAINTY_WEIGHT": r.UncertaintyWeight,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if r.VisitSaturation < 1 {
		return fmt.Errorf("RECOMMEND_VISIT_SATURATION must be at least 1")
	}
	return nil
}

func (c *Config) validateRetrain() error {
	r := c.Retrain
	if !r.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return fmt.Errorf("RETRAIN_SCHEDULE %q is not a valid cron expression: %w", r.Schedule, err)
	}
	if r.WindowDays < 1 {
		return fmt.Errorf("RETRAIN_WINDOW_DAYS must be at least 1")
	}
	if r.Tolerance < 0 {
		return fmt.Errorf("RETRAIN_TOLERANCE must not be negative")
	}
	if r.HoldoutFraction <= 0 || r.HoldoutFraction >= 1 {
		return fmt.Errorf("RETRAIN_HOLDOUT_FRACTION must be between 0 and 1 (exclusive)")
	}
	if r.Trees < 1 || r.MaxDepth < 1 || r.MinLeaf < 1 {
		return fmt.Errorf("RETRAIN_TREES, RETRAIN_MAX_DEPTH and RETRAIN_MIN_LEAF must be at least 1")
	}
	if r.RetainedVersions < 1 {
		return fmt.Errorf("RETRAIN_RETAINED_VERSIONS must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
