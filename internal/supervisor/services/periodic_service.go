// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/stallcast/internal/logging"
)

// Job is one pass of a periodic task.
type Job func(ctx context.Context) error

// PeriodicConfig configures a PeriodicService.
type PeriodicConfig struct {
	// Name identifies the service in supervisor logs.
	Name string

	// Interval between runs. Default: 1h
	Interval time.Duration

	// RunOnStart runs the job once before the first tick.
	RunOnStart bool

	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
}

// PeriodicService runs a Job on a fixed interval until its context ends. A failed
// run is logged and retried at the next tick; it never stops the service.
type PeriodicService struct {
	job    Job
	config PeriodicConfig
	logger zerolog.Logger
}

// NewPeriodicService creates the service.
func NewPeriodicService(job Job, cfg PeriodicConfig) *PeriodicService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if cfg.Name == "" {
		cfg.Name = "periodic"
	}
	return &PeriodicService{
		job:    job,
		config: cfg,
		logger: logging.WithComponent(cfg.Name),
	}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Bool("run_on_start", s.config.RunOnStart).
		Msg("Periodic service starting")

	if s.config.RunOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *PeriodicService) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(logging.ContextWithNewCorrelationID(ctx), s.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.job(runCtx); err != nil {
		s.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Periodic run failed")
		return
	}
	s.logger.Debug().Dur("duration", time.Since(start)).Msg("Periodic run complete")
}

func (s *PeriodicService) String() string {
	return s.config.Name
}
