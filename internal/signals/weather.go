// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package signals

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
)

// WeatherProvider is the external forecast service.
type WeatherProvider interface {
	Forecast(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherSignal, error)
}

// SeasonalWeatherSource averages weather recorded at a venue in earlier years.
type SeasonalWeatherSource interface {
	SeasonalWeather(ctx context.Context, venueID string, date time.Time) (*models.WeatherSignal, error)
}

// WeatherAdapter walks live forecast, cached forecast, seasonal average and finally
// the no-weather marker (a nil Value with SourceNone).
type WeatherAdapter struct {
	provider  WeatherProvider
	snapshots SnapshotStore
	seasonal  SeasonalWeatherSource
	timeout   time.Duration
	maxAge    time.Duration
	onChange  ChangeHook
	now       func() time.Time
}

// WeatherOption configures a WeatherAdapter.
type WeatherOption func(*WeatherAdapter)

// WithWeatherChangeHook registers a hook for changed live forecasts.
func WithWeatherChangeHook(h ChangeHook) WeatherOption {
	return func(a *WeatherAdapter) { a.onChange = h }
}

// NewWeatherAdapter creates the adapter. Any of provider, snapshots and seasonal may
// be nil, in which case that rung is skipped.
func NewWeatherAdapter(provider WeatherProvider, snapshots SnapshotStore, seasonal SeasonalWeatherSource,
	timeout, maxAge time.Duration, opts ...WeatherOption) *WeatherAdapter {
	a := &WeatherAdapter{
		provider:  provider,
		snapshots: snapshots,
		seasonal:  seasonal,
		timeout:   timeout,
		maxAge:    maxAge,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch implements Adapter.
func (a *WeatherAdapter) Fetch(ctx context.Context, q Query) Result[*models.WeatherSignal] {
	start := time.Now()
	log := logging.Ctx(ctx)
	key := snapshotKey(SignalWeather, q)

	reason := "provider not configured"
	if a.provider != nil {
		w, err := a.live(ctx, q)
		if err == nil {
			a.remember(ctx, key, q, w)
			observe(SignalWeather, SourceLive, start)
			return Result[*models.WeatherSignal]{Value: w, Source: SourceLive}
		}
		reason = reasonFor(err)
		log.Warn().Err(err).Str("venue_id", q.VenueID).Msg("Live weather unavailable, falling back")
	}

	if a.snapshots != nil {
		var cached models.WeatherSignal
		fetchedAt, err := a.snapshots.Get(key, &cached)
		if err == nil && a.now().Sub(fetchedAt) <= a.maxAge {
			cached.Source = SourceCached
			observe(SignalWeather, SourceCached, start)
			return Result[*models.WeatherSignal]{Value: &cached, Source: SourceCached, Degraded: true, Reason: reason}
		}
	}

	if a.seasonal != nil {
		sctx, cancel := withTimeout(ctx, a.timeout)
		w, err := a.seasonal.SeasonalWeather(sctx, q.VenueID, q.Date)
		cancel()
		if err == nil && w != nil {
			w.Source = SourceSeasonal
			observe(SignalWeather, SourceSeasonal, start)
			return Result[*models.WeatherSignal]{Value: w, Source: SourceSeasonal, Degraded: true, Reason: reason}
		}
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			log.Debug().Err(err).Msg("Seasonal weather lookup failed")
		}
	}

	observe(SignalWeather, SourceNone, start)
	return Result[*models.WeatherSignal]{Source: SourceNone, Degraded: true, Reason: reason}
}

func (a *WeatherAdapter) live(ctx context.Context, q Query) (*models.WeatherSignal, error) {
	lctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	w, err := a.provider.Forecast(lctx, q.Latitude, q.Longitude, q.Date)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errors.New("empty forecast")
	}
	w.Condition = models.NormalizeCondition(string(w.Condition))
	w.Source = SourceLive
	if w.FetchedAt.IsZero() {
		w.FetchedAt = a.now().UTC()
	}
	return w, nil
}

// remember stores w as the latest snapshot and fires the change hook when it
// differs from the previous one.
func (a *WeatherAdapter) remember(ctx context.Context, key string, q Query, w *models.WeatherSignal) {
	if a.snapshots == nil {
		return
	}
	var prev models.WeatherSignal
	_, prevErr := a.snapshots.Get(key, &prev)
	if err := a.snapshots.Put(key, w, w.FetchedAt); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to store weather snapshot")
		return
	}
	if prevErr == nil && a.onChange != nil && !sameWeather(&prev, w) {
		a.onChange(SignalWeather, q)
	}
}

// sameWeather compares forecasts at the precision the features use.
func sameWeather(a, b *models.WeatherSignal) bool {
	return a.Condition == b.Condition &&
		math.Abs(a.TemperatureC-b.TemperatureC) < 0.5 &&
		math.Abs(a.PrecipitationProb-b.PrecipitationProb) < 0.05
}
