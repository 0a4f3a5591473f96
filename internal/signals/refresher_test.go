// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/stallcast/internal/models"
)

type fakeAppearanceStore struct {
	planned []models.Appearance
	venues  map[string]*models.Venue
	stored  map[string]*models.WeatherSignal
	events  map[string][]models.EventSignal
}

func (f *fakeAppearanceStore) ListPlannedAppearances(context.Context, time.Time, time.Time) ([]models.Appearance, error) {
	return f.planned, nil
}

func (f *fakeAppearanceStore) GetVenue(_ context.Context, id string) (*models.Venue, error) {
	if v, ok := f.venues[id]; ok {
		return v, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeAppearanceStore) SetAppearanceSignals(_ context.Context, id string, w *models.WeatherSignal, ev []models.EventSignal) error {
	f.stored[id] = w
	f.events[id] = ev
	return nil
}

func TestRefresherStoresProviderAnswers(t *testing.T) {
	t.Parallel()

	soon := time.Now().AddDate(0, 0, 2)
	store := &fakeAppearanceStore{
		planned: []models.Appearance{
			{ID: "a1", SellerID: "s1", VenueID: "v1", Date: soon},
			{ID: "a2", SellerID: "s1", VenueID: "ghost", Date: soon},
		},
		venues: map[string]*models.Venue{"v1": {ID: "v1", Latitude: 51.5, Longitude: -0.1}},
		stored: map[string]*models.WeatherSignal{},
		events: map[string][]models.EventSignal{},
	}
	weather := NewWeatherAdapter(&fakeWeather{signal: &models.WeatherSignal{TemperatureC: 21, Condition: models.ConditionClear}}, nil, nil, time.Second, time.Hour)
	events := NewEventAdapter(&fakeEvents{events: []models.EventSignal{{Name: "Regatta", ExpectedAttendance: 2000}}}, nil, time.Second, time.Hour, 5)

	n, err := NewRefresher(store, weather, events, 7).RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("RefreshOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("refreshed = %d, want 1 (unknown venue skipped)", n)
	}
	if w := store.stored["a1"]; w == nil || w.TemperatureC != 21 {
		t.Errorf("stored weather = %+v", w)
	}
	if ev := store.events["a1"]; len(ev) != 1 {
		t.Errorf("stored events = %+v", ev)
	}
}

func TestRefresherSkipsFallbacks(t *testing.T) {
	t.Parallel()

	store := &fakeAppearanceStore{
		planned: []models.Appearance{{ID: "a1", SellerID: "s1", VenueID: "v1", Date: time.Now().AddDate(0, 0, 1)}},
		venues:  map[string]*models.Venue{"v1": {ID: "v1"}},
		stored:  map[string]*models.WeatherSignal{},
		events:  map[string][]models.EventSignal{},
	}
	down := errors.New("down")
	weather := NewWeatherAdapter(&fakeWeather{err: down}, nil, &fakeSeasonal{signal: &models.WeatherSignal{TemperatureC: 10}}, time.Second, time.Hour)
	events := NewEventAdapter(&fakeEvents{err: down}, nil, time.Second, time.Hour, 5)

	n, err := NewRefresher(store, weather, events, 7).RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("RefreshOnce: %v", err)
	}
	if n != 0 || len(store.stored) != 0 {
		t.Errorf("fallback signals must not be recorded, refreshed=%d stored=%v", n, store.stored)
	}
}
