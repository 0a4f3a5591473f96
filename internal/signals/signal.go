// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package signals adapts the four external inputs of a recommendation (transaction
// history, weather forecasts, local events and venue profiles) behind one contract:
//
//	Fetch(ctx, Query) Result[T]
//
// Adapters never return Go errors for upstream unavailability. Each walks its own
// fallback ladder and reports which rung answered through Result.Source; Degraded is
// set whenever the primary rung did not. Only the transaction adapter can fail a
// request, and it does so through Result.Err carrying a *models.UpstreamError.
package signals

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/stallcast/internal/metrics"
	"github.com/tomtom215/stallcast/internal/models"
)

// Sources reported by the ladders, in the order they are tried.
const (
	SourceStore    = "store"    // internal store (transactions, venue profile)
	SourceLive     = "live"     // provider answered within the adapter timeout
	SourceCached   = "cached"   // last successful provider answer, within max age
	SourceSeasonal = "seasonal" // venue's historical average for the time of year
	SourceNone     = "none"     // explicit no-signal marker
	SourceEmpty    = "empty"    // no events known, treated as no event
	SourceDefault  = "default"  // zero-history venue profile substituted after a store failure
)

// Signal names used for metrics, snapshot keys and reasoning factors.
const (
	SignalTransactions = "transactions"
	SignalWeather      = "weather"
	SignalEvents       = "events"
	SignalVenue        = "venue"
)

// Query identifies the appearance a signal is fetched for.
type Query struct {
	SellerID  string
	VenueID   string
	Latitude  float64
	Longitude float64
	Date      time.Time
}

// Result is the outcome of one adapter fetch.
type Result[T any] struct {
	Value    T
	Source   string
	Degraded bool
	// Reason describes why the primary rung was skipped.
	Reason string
	// Err is set only by adapters whose failure is fatal to the request.
	Err error
}

// Adapter fetches one signal for a query.
type Adapter[T any] interface {
	Fetch(ctx context.Context, q Query) Result[T]
}

// ChangeHook is called when a live fetch returns a value that differs from the
// previously stored snapshot for the same venue and date.
type ChangeHook func(signal string, q Query)

// reasonFor turns a rung failure into a short reason string.
func reasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrBreakerOpen):
		return "circuit open"
	case errors.Is(err, models.ErrNotFound):
		return "not found"
	}
	return err.Error()
}

// withTimeout bounds a rung by the adapter timeout; zero means only the caller's deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observe(signal, source string, start time.Time) {
	metrics.RecordSignalFetch(signal, source, time.Since(start))
}
