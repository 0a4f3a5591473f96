// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/stallcast/internal/cache"
	"github.com/tomtom215/stallcast/internal/config"
	"github.com/tomtom215/stallcast/internal/database"
	"github.com/tomtom215/stallcast/internal/eventbus"
	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/predict"
	"github.com/tomtom215/stallcast/internal/recommend"
	"github.com/tomtom215/stallcast/internal/retrain"
	"github.com/tomtom215/stallcast/internal/scoring"
	"github.com/tomtom215/stallcast/internal/signals"
	"github.com/tomtom215/stallcast/internal/supervisor"
	"github.com/tomtom215/stallcast/internal/supervisor/services"
)

// redisPingTimeout bounds the startup connectivity check of the Redis backend.
const redisPingTimeout = 5 * time.Second

// SignalComponents holds the four signal adapters and what backs them.
type SignalComponents struct {
	Snapshots    *signals.BadgerSnapshotStore
	Transactions *signals.TransactionAdapter
	Weather      *signals.WeatherAdapter
	Events       *signals.EventAdapter
	Venue        *signals.VenueAdapter
	Refresher    *signals.Refresher
}

// initSignals builds the provider clients and adapters. A provider without a
// configured URL is left out and its adapter falls back to snapshots and then to
// seasonal normals (weather) or an empty list (events).
func initSignals(cfg *config.Config, db *database.DB, bus *eventbus.Bus) (*SignalComponents, error) {
	sc := cfg.Signals

	snapshots, err := signals.OpenBadgerSnapshotStore(sc.SnapshotPath)
	if err != nil {
		return nil, err
	}

	clientCfg := func(url, key string) signals.ClientConfig {
		return signals.ClientConfig{
			BaseURL:            url,
			APIKey:             key,
			RateLimitPerSecond: sc.RateLimitPerSecond,
			RateLimitBurst:     sc.RateLimitBurst,
			BreakerMaxFailures: sc.BreakerMaxFailures,
			BreakerTimeout:     sc.BreakerTimeout,
		}
	}

	var weatherProvider signals.WeatherProvider
	if sc.WeatherURL != "" {
		client, err := signals.NewWeatherClient(clientCfg(sc.WeatherURL, sc.WeatherAPIKey))
		if err != nil {
			closeWithLog("snapshot store", snapshots.Close)
			return nil, fmt.Errorf("weather client: %w", err)
		}
		weatherProvider = client
	} else {
		logging.Warn().Msg("WEATHER_URL not set, weather comes from snapshots and seasonal normals")
	}

	var eventDetector signals.EventDetector
	if sc.EventsURL != "" {
		client, err := signals.NewEventClient(clientCfg(sc.EventsURL, sc.EventsAPIKey))
		if err != nil {
			closeWithLog("snapshot store", snapshots.Close)
			return nil, fmt.Errorf("event client: %w", err)
		}
		eventDetector = client
	} else {
		logging.Warn().Msg("EVENTS_URL not set, nearby events are not considered")
	}

	hook := eventbus.SignalChangePublisher(bus)
	weather := signals.NewWeatherAdapter(weatherProvider, snapshots, db, sc.AdapterTimeout, sc.WeatherMaxAge,
		signals.WithWeatherChangeHook(hook))
	events := signals.NewEventAdapter(eventDetector, snapshots, sc.AdapterTimeout, sc.EventsMaxAge, sc.EventRadiusKm,
		signals.WithEventChangeHook(hook))

	return &SignalComponents{
		Snapshots:    snapshots,
		Transactions: signals.NewTransactionAdapter(db, cfg.Recommend.HistoryDays),
		Weather:      weather,
		Events:       events,
		Venue:        signals.NewVenueAdapter(db),
		Refresher:    signals.NewRefresher(db, weather, events, sc.RefreshHorizonDays),
	}, nil
}

// ModelComponents holds the model registry and the scheduler that fills it.
type ModelComponents struct {
	Registry  *predict.Registry
	Predictor *predict.Engine
	Scheduler *retrain.Scheduler
}

func initModels(ctx context.Context, cfg *config.Config, db *database.DB, bus *eventbus.Bus) (*ModelComponents, error) {
	rc := cfg.Retrain
	registry := predict.NewRegistry(rc.RetainedVersions)
	predictor := predict.NewEngine(predictConfig(cfg))

	sched, err := retrain.New(db, registry, predictor, bus, retrain.Config{
		Enabled:          rc.Enabled,
		Schedule:         rc.Schedule,
		TrainOnStartup:   rc.TrainOnStartup,
		Timeout:          rc.Timeout,
		Tolerance:        rc.Tolerance,
		HoldoutFraction:  rc.HoldoutFraction,
		RetainedVersions: rc.RetainedVersions,
		Corpus: retrain.CorpusConfig{
			WindowDays:          rc.WindowDays,
			HistoryWindow:       cfg.Recommend.HeuristicWindow,
			MaxFeedbackVariance: rc.MaxFeedbackVariance,
			Thresholds:          attendanceThresholds(cfg),
		},
		Train: predict.TrainConfig{
			Trees:    rc.Trees,
			MaxDepth: rc.MaxDepth,
			MinLeaf:  rc.MinLeaf,
			Seed:     rc.Seed,
		},
	})
	if err != nil {
		return nil, err
	}

	// A model that fails to load is not fatal: requests take the heuristic path
	// until the next successful retrain.
	if err := sched.LoadActive(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to load active model")
	}
	return &ModelComponents{Registry: registry, Predictor: predictor, Scheduler: sched}, nil
}

// initCache selects the cache backend. The returned close function releases the
// Redis client, if any.
func initCache(ctx context.Context, cfg *config.Config) (*cache.Cache, func() error, error) {
	cc := cfg.Cache
	if cc.Backend != "redis" {
		logging.Info().Int("max_entries", cc.MaxEntries).Msg("Using in-memory recommendation cache")
		return cache.New(cache.NewMemoryStore(cc.MaxEntries)), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cc.RedisAddr,
		Password: cc.RedisPassword,
		DB:       cc.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cc.RedisAddr, err)
	}
	logging.Info().Str("addr", cc.RedisAddr).Str("prefix", cc.KeyPrefix).Msg("Using Redis recommendation cache")
	return cache.New(cache.NewRedisStore(client, cc.KeyPrefix)), client.Close, nil
}

func initEngine(cfg *config.Config, db *database.DB, sig *SignalComponents, mc *ModelComponents, c *cache.Cache) *recommend.Engine {
	rc := cfg.Recommend
	builder := features.NewBuilder(sig.Transactions, sig.Weather, sig.Events, sig.Venue, features.Config{
		Window:     rc.HeuristicWindow,
		Thresholds: attendanceThresholds(cfg),
	})
	return recommend.NewEngine(db, builder, mc.Registry, c, recommend.Config{
		RequestBudget: rc.RequestBudget,
		Predict:       predictConfig(cfg),
		Scoring: scoring.Config{
			VisitSaturation:        rc.VisitSaturation,
			UncertaintyWeight:      rc.UncertaintyWeight,
			StalePenalty:           rc.StalePenalty,
			ColdStartCeiling:       rc.ColdStartCeiling,
			LowConfidenceThreshold: rc.LowConfidenceThreshold,
		},
	})
}

// addBackgroundServices registers the periodic jobs. The cache sweeper only runs
// for the in-memory backend; Redis expires keys itself.
func addBackgroundServices(tree *supervisor.SupervisorTree, cfg *config.Config, sig *SignalComponents, c *cache.Cache) {
	if interval := cfg.Signals.RefreshInterval; interval > 0 {
		tree.AddBackgroundService(services.NewPeriodicService(func(ctx context.Context) error {
			n, err := sig.Refresher.RefreshOnce(ctx)
			if err == nil {
				logging.Ctx(ctx).Debug().Int("appearances", n).Msg("Signals refreshed")
			}
			return err
		}, services.PeriodicConfig{Name: "signal-refresher", Interval: interval, RunOnStart: true}))
	}

	if c.Backend() == "memory" && cfg.Cache.SweepInterval > 0 {
		tree.AddBackgroundService(services.NewPeriodicService(func(ctx context.Context) error {
			if n := c.Sweep(); n > 0 {
				logging.Ctx(ctx).Debug().Int("removed", n).Msg("Expired cache entries swept")
			}
			return nil
		}, services.PeriodicConfig{Name: "cache-sweeper", Interval: cfg.Cache.SweepInterval}))
	}
}

func predictConfig(cfg *config.Config) predict.Config {
	return predict.Config{
		MinVisits:             cfg.Recommend.MinVisits,
		LargeEventMultiplier:  cfg.Recommend.LargeEventMultiplier,
		MediumEventMultiplier: cfg.Recommend.MediumEventMultiplier,
	}
}

func attendanceThresholds(cfg *config.Config) features.AttendanceThresholds {
	return features.AttendanceThresholds{
		Large:  cfg.Recommend.LargeEventAttendance,
		Medium: cfg.Recommend.MediumEventAttendance,
	}
}
