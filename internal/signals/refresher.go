// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
)

// AppearanceStore is the part of the relational store the refresher needs.
type AppearanceStore interface {
	ListPlannedAppearances(ctx context.Context, from, to time.Time) ([]models.Appearance, error)
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	SetAppearanceSignals(ctx context.Context, id string, weather *models.WeatherSignal, events []models.EventSignal) error
}

// Refresher re-fetches weather and events for planned appearances in the coming
// days. Fetching through the adapters refreshes their snapshots and fires their
// change hooks, which is what invalidates stale cached recommendations.
type Refresher struct {
	store       AppearanceStore
	weather     Adapter[*models.WeatherSignal]
	events      Adapter[[]models.EventSignal]
	horizonDays int
	now         func() time.Time
}

// NewRefresher creates a refresher covering today plus horizonDays.
func NewRefresher(store AppearanceStore, weather Adapter[*models.WeatherSignal], events Adapter[[]models.EventSignal], horizonDays int) *Refresher {
	if horizonDays <= 0 {
		horizonDays = 7
	}
	return &Refresher{store: store, weather: weather, events: events, horizonDays: horizonDays, now: time.Now}
}

// RefreshOnce refreshes every planned appearance in the horizon and returns how many
// appearances had fresh signals stored.
func (r *Refresher) RefreshOnce(ctx context.Context) (int, error) {
	log := logging.WithComponent(logging.ComponentSignals)
	today := models.Day(r.now())

	appearances, err := r.store.ListPlannedAppearances(ctx, today, today.AddDate(0, 0, r.horizonDays))
	if err != nil {
		return 0, fmt.Errorf("list planned appearances: %w", err)
	}

	venues := make(map[string]*models.Venue)
	refreshed := 0
	for i := range appearances {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		a := &appearances[i]

		venue, ok := venues[a.VenueID]
		if !ok {
			venue, err = r.store.GetVenue(ctx, a.VenueID)
			if err != nil {
				log.Warn().Err(err).Str("venue_id", a.VenueID).Msg("Skipping appearance with unknown venue")
				continue
			}
			venues[a.VenueID] = venue
		}

		q := Query{SellerID: a.SellerID, VenueID: a.VenueID, Latitude: venue.Latitude, Longitude: venue.Longitude, Date: a.Date}
		weather := r.weather.Fetch(ctx, q)
		events := r.events.Fetch(ctx, q)

		// Only provider answers are worth recording; seasonal and empty fallbacks
		// are recomputed on demand.
		var w *models.WeatherSignal
		if weather.Source == SourceLive || weather.Source == SourceCached {
			w = weather.Value
		}
		ev, freshEvents := a.Events, events.Source == SourceLive || events.Source == SourceCached
		if freshEvents {
			ev = events.Value
		}
		if w == nil && !freshEvents {
			continue
		}
		if err := r.store.SetAppearanceSignals(ctx, a.ID, w, ev); err != nil {
			log.Warn().Err(err).Str("appearance_id", a.ID).Msg("Failed to store refreshed signals")
			continue
		}
		refreshed++
	}

	log.Debug().Int("planned", len(appearances)).Int("refreshed", refreshed).Msg("Signal refresh complete")
	return refreshed, nil
}
