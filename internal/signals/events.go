// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package signals

import (
	"context"
	"slices"
	"time"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
)

// EventDetector is the external local-event service.
type EventDetector interface {
	EventsNear(ctx context.Context, lat, lon float64, date time.Time, radiusKm float64) ([]models.EventSignal, error)
}

// EventAdapter walks live lookup, last successful lookup and finally an empty list.
// An empty result means "no event" and never blocks a request.
type EventAdapter struct {
	detector  EventDetector
	snapshots SnapshotStore
	timeout   time.Duration
	maxAge    time.Duration
	radiusKm  float64
	onChange  ChangeHook
	now       func() time.Time
}

// EventOption configures an EventAdapter.
type EventOption func(*EventAdapter)

// WithEventChangeHook registers a hook for changed live lookups.
func WithEventChangeHook(h ChangeHook) EventOption {
	return func(a *EventAdapter) { a.onChange = h }
}

// NewEventAdapter creates the adapter; detector and snapshots may be nil.
func NewEventAdapter(detector EventDetector, snapshots SnapshotStore, timeout, maxAge time.Duration,
	radiusKm float64, opts ...EventOption) *EventAdapter {
	a := &EventAdapter{
		detector:  detector,
		snapshots: snapshots,
		timeout:   timeout,
		maxAge:    maxAge,
		radiusKm:  radiusKm,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch implements Adapter.
func (a *EventAdapter) Fetch(ctx context.Context, q Query) Result[[]models.EventSignal] {
	start := time.Now()
	key := snapshotKey(SignalEvents, q)

	reason := "detector not configured"
	if a.detector != nil {
		lctx, cancel := withTimeout(ctx, a.timeout)
		events, err := a.detector.EventsNear(lctx, q.Latitude, q.Longitude, q.Date, a.radiusKm)
		cancel()
		if err == nil {
			if events == nil {
				events = []models.EventSignal{}
			}
			a.remember(ctx, key, q, events)
			observe(SignalEvents, SourceLive, start)
			return Result[[]models.EventSignal]{Value: events, Source: SourceLive}
		}
		reason = reasonFor(err)
		logging.Ctx(ctx).Warn().Err(err).Str("venue_id", q.VenueID).Msg("Live event lookup unavailable, falling back")
	}

	if a.snapshots != nil {
		var cached []models.EventSignal
		fetchedAt, err := a.snapshots.Get(key, &cached)
		if err == nil && a.now().Sub(fetchedAt) <= a.maxAge {
			if cached == nil {
				cached = []models.EventSignal{}
			}
			observe(SignalEvents, SourceCached, start)
			return Result[[]models.EventSignal]{Value: cached, Source: SourceCached, Degraded: true, Reason: reason}
		}
	}

	observe(SignalEvents, SourceEmpty, start)
	return Result[[]models.EventSignal]{Value: []models.EventSignal{}, Source: SourceEmpty, Degraded: true, Reason: reason}
}

func (a *EventAdapter) remember(ctx context.Context, key string, q Query, events []models.EventSignal) {
	if a.snapshots == nil {
		return
	}
	var prev []models.EventSignal
	_, prevErr := a.snapshots.Get(key, &prev)
	if err := a.snapshots.Put(key, events, a.now()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to store event snapshot")
		return
	}
	if prevErr == nil && a.onChange != nil && !sameEvents(prev, events) {
		a.onChange(SignalEvents, q)
	}
}

func sameEvents(a, b []models.EventSignal) bool {
	return slices.EqualFunc(a, b, func(x, y models.EventSignal) bool {
		return x.Name == y.Name && x.ExpectedAttendance == y.ExpectedAttendance
	})
}

// LargestAttendance returns the biggest expected attendance among events, or 0.
func LargestAttendance(events []models.EventSignal) int {
	largest := 0
	for _, e := range events {
		largest = max(largest, e.ExpectedAttendance)
	}
	return largest
}
