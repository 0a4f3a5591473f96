// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/stallcast/internal/config"
	"github.com/tomtom215/stallcast/internal/models"
)

// testDBSemaphore serializes DuckDB usage across parallel tests; concurrent CGO
// connections can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	type result struct {
		db  *DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 1})
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() { _ = res.db.Close() })
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s")
		return nil
	}
}

// seedCatalog inserts one venue and two products for seller s1.
func seedCatalog(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	if err := db.UpsertVenue(ctx, &models.Venue{ID: "v1", Name: "Riverside Market", Latitude: 51.5, Longitude: -0.12}); err != nil {
		t.Fatalf("UpsertVenue: %v", err)
	}
	for _, p := range []models.Product{
		{ID: "p1", SellerID: "s1", Name: "Sourdough", Category: models.CategoryBakedGoods, Unit: "loaf", Active: true},
		{ID: "p2", SellerID: "s1", Name: "Potatoes", Category: models.CategoryBulkProduce, Unit: "pound", Active: true},
	} {
		p := p
		if err := db.UpsertProduct(ctx, &p); err != nil {
			t.Fatalf("UpsertProduct: %v", err)
		}
	}
}

func TestProductsSoftDelete(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	if err := db.SoftDeleteProduct(ctx, "s1", "p2"); err != nil {
		t.Fatalf("SoftDeleteProduct: %v", err)
	}
	if err := db.SoftDeleteProduct(ctx, "s1", "p2"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}

	active, err := db.ListProducts(ctx, "s1", true)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(active) != 1 || active[0].ID != "p1" {
		t.Errorf("active products = %+v, want only p1", active)
	}

	deleted, err := db.GetProduct(ctx, "p2")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if deleted.DeletedAt == nil || deleted.Active {
		t.Errorf("expected p2 to be soft deleted, got %+v", deleted)
	}
}

func TestAppearanceUniqueness(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()
	date := models.Day(time.Now().AddDate(0, 0, 3))

	a := &models.Appearance{SellerID: "s1", VenueID: "v1", Date: date}
	if err := db.CreateAppearance(ctx, a); err != nil {
		t.Fatalf("CreateAppearance: %v", err)
	}
	dup := &models.Appearance{SellerID: "s1", VenueID: "v1", Date: date}
	if err := db.CreateAppearance(ctx, dup); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate appearance error = %v, want ErrConflict", err)
	}
	unknown := &models.Appearance{SellerID: "s1", VenueID: "nope", Date: date}
	if err := db.CreateAppearance(ctx, unknown); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown venue error = %v, want ErrNotFound", err)
	}

	found, err := db.FindAppearance(ctx, "s1", "v1", date)
	if err != nil {
		t.Fatalf("FindAppearance: %v", err)
	}
	if found.ID != a.ID || found.Status != models.AppearancePlanned {
		t.Errorf("found = %+v, want %s planned", found, a.ID)
	}
}

func TestAppearanceSignalsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	a := &models.Appearance{SellerID: "s1", VenueID: "v1", Date: time.Now().AddDate(0, 0, 2)}
	if err := db.CreateAppearance(ctx, a); err != nil {
		t.Fatalf("CreateAppearance: %v", err)
	}
	w := &models.WeatherSignal{TemperatureC: 18.5, PrecipitationProb: 0.2, Condition: models.ConditionCloudy, Source: "live", FetchedAt: time.Now().UTC()}
	events := []models.EventSignal{{Name: "Jazz Festival", ExpectedAttendance: 8000, DistanceKm: 1.2}}
	if err := db.SetAppearanceSignals(ctx, a.ID, w, events); err != nil {
		t.Fatalf("SetAppearanceSignals: %v", err)
	}

	got, err := db.GetAppearance(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAppearance: %v", err)
	}
	if got.Weather == nil || got.Weather.Condition != models.ConditionCloudy || got.Weather.Source != "live" {
		t.Errorf("weather = %+v", got.Weather)
	}
	if len(got.Events) != 1 || got.Events[0].ExpectedAttendance != 8000 {
		t.Errorf("events = %+v", got.Events)
	}
}

func TestVenueHistory(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	txns := []models.Transaction{
		{SellerID: "s1", ProductID: "p1", VenueID: "v1", Quantity: 10, SoldAt: now.AddDate(0, 0, -14)},
		{SellerID: "s1", ProductID: "p2", VenueID: "v1", Quantity: 4, SoldAt: now.AddDate(0, 0, -14)},
		{SellerID: "s1", ProductID: "p1", VenueID: "v1", Quantity: 12, SoldAt: now.AddDate(0, 0, -7)},
	}
	n, err := db.InsertTransactions(ctx, txns)
	if err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
	if n != 3 {
		t.Errorf("inserted = %d, want 3", n)
	}
	// Re-syncing the same batch is a no-op.
	if n, err := db.InsertTransactions(ctx, txns); err != nil || n != 0 {
		t.Errorf("re-insert = %d, %v; want 0, nil", n, err)
	}

	profile, err := db.VenueHistory(ctx, "s1", "v1", models.Day(now))
	if err != nil {
		t.Fatalf("VenueHistory: %v", err)
	}
	if profile.AppearanceCount != 2 {
		t.Errorf("AppearanceCount = %d, want 2", profile.AppearanceCount)
	}
	if profile.LastSeen == nil || !profile.LastSeen.Equal(models.Day(now.AddDate(0, 0, -7))) {
		t.Errorf("LastSeen = %v", profile.LastSeen)
	}

	fresh, err := db.VenueHistory(ctx, "s2", "v1", models.Day(now))
	if err != nil {
		t.Fatalf("VenueHistory: %v", err)
	}
	if !fresh.IsNew() || fresh.FirstSeen != nil {
		t.Errorf("expected a new-venue profile, got %+v", fresh)
	}

	if _, err := db.VenueHistory(ctx, "s1", "missing", models.Day(now)); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown venue error = %v, want ErrNotFound", err)
	}
}

func TestInsertTransactionsUnknownProduct(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)

	_, err := db.InsertTransactions(context.Background(), []models.Transaction{
		{SellerID: "s1", ProductID: "ghost", VenueID: "v1", Quantity: 1, SoldAt: time.Now()},
	})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestSeasonalWeather(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	target := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	for i, d := range []time.Time{
		time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), // outside the window
	} {
		a := &models.Appearance{SellerID: "s1", VenueID: "v1", Date: d, Status: models.AppearanceCompleted}
		if err := db.CreateAppearance(ctx, a); err != nil {
			t.Fatalf("CreateAppearance %d: %v", i, err)
		}
		temp := 20.0 + float64(i)*4
		if err := db.SetAppearanceSignals(ctx, a.ID, &models.WeatherSignal{
			TemperatureC: temp, PrecipitationProb: 0.1, Condition: models.ConditionClear, Source: "live",
		}, nil); err != nil {
			t.Fatalf("SetAppearanceSignals: %v", err)
		}
	}

	w, err := db.SeasonalWeather(ctx, "v1", target)
	if err != nil {
		t.Fatalf("SeasonalWeather: %v", err)
	}
	if w.TemperatureC != 22 {
		t.Errorf("TemperatureC = %v, want 22", w.TemperatureC)
	}
	if w.Condition != models.ConditionClear || w.Source != "seasonal" {
		t.Errorf("weather = %+v", w)
	}

	if _, err := db.SeasonalWeather(ctx, "v1", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRecommendationsAndFeedback(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	future := &models.Appearance{SellerID: "s1", VenueID: "v1", Date: time.Now().AddDate(0, 0, 1)}
	past := &models.Appearance{SellerID: "s1", VenueID: "v1", Date: time.Now().AddDate(0, 0, -1)}
	for _, a := range []*models.Appearance{future, past} {
		if err := db.CreateAppearance(ctx, a); err != nil {
			t.Fatalf("CreateAppearance: %v", err)
		}
	}

	recs := []models.Recommendation{{ProductID: "p1", RawEstimate: 22.4, NormalizedQuantity: 23, Confidence: 0.9, Path: models.PathModel}}
	if err := db.SaveRecommendations(ctx, future.ID, 1, recs); err != nil {
		t.Fatalf("SaveRecommendations: %v", err)
	}
	recs[0].NormalizedQuantity = 25
	if err := db.SaveRecommendations(ctx, future.ID, 2, recs); err != nil {
		t.Fatalf("SaveRecommendations (replace): %v", err)
	}
	if qty, err := db.RecommendedQuantity(ctx, future.ID, "p1"); err != nil || qty != 25 {
		t.Errorf("RecommendedQuantity = %d, %v; want 25", qty, err)
	}

	// Past appearances are immutable: the write is skipped silently.
	if err := db.SaveRecommendations(ctx, past.ID, 1, recs); err != nil {
		t.Fatalf("SaveRecommendations (past): %v", err)
	}
	if _, err := db.RecommendedQuantity(ctx, past.ID, "p1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("past recommendation error = %v, want ErrNotFound", err)
	}

	fb := &models.Feedback{
		ID: "f1", AppearanceID: past.ID, ProductID: "p1", SellerID: "s1", VenueID: "v1",
		Date: past.Date, Recommended: 0, Actual: 0, Accurate: true, SubmittedAt: time.Now().UTC(),
	}
	if err := db.InsertFeedback(ctx, fb); err != nil {
		t.Fatalf("InsertFeedback: %v", err)
	}
	fb.ID = "f2"
	if err := db.InsertFeedback(ctx, fb); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate feedback error = %v, want ErrConflict", err)
	}
	got, err := db.GetFeedback(ctx, past.ID, "p1")
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if got.ID != "f1" || !got.Accurate {
		t.Errorf("feedback = %+v", got)
	}
}

func TestModelRegistry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.ActiveModel(ctx); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("ActiveModel on empty store = %v, want ErrNotFound", err)
	}

	for i := 0; i < 4; i++ {
		v, err := db.NextModelVersion(ctx)
		if err != nil {
			t.Fatalf("NextModelVersion: %v", err)
		}
		m := &models.TrainedModel{
			Version: v, TrainedAt: time.Now().UTC(), TrainingCutoff: time.Now().UTC(),
			TrainingRows: 100, HoldoutMAE: 1.5, Checksum: "abc", Artifact: []byte(`{}`),
		}
		if err := db.SaveModel(ctx, m); err != nil {
			t.Fatalf("SaveModel: %v", err)
		}
	}

	if err := db.ActivateModel(ctx, 2); err != nil {
		t.Fatalf("ActivateModel: %v", err)
	}
	if err := db.ActivateModel(ctx, 99); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("ActivateModel(99) = %v, want ErrNotFound", err)
	}
	active, err := db.ActiveModel(ctx)
	if err != nil {
		t.Fatalf("ActiveModel: %v", err)
	}
	if active.Version != 2 || string(active.Artifact) != `{}` {
		t.Errorf("active = %+v", active)
	}

	pruned, err := db.PruneModels(ctx, 1)
	if err != nil {
		t.Fatalf("PruneModels: %v", err)
	}
	if len(pruned) != 2 {
		t.Errorf("pruned = %v, want two versions", pruned)
	}
	list, err := db.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(list) != 2 || list[0].Version != 4 || list[1].Version != 2 {
		t.Errorf("remaining = %+v, want versions 4 and 2", list)
	}

	alert := &models.RegressionAlert{ID: "a1", CandidateVersion: 5, ActiveVersion: 2, CandidateError: 3, ActiveError: 2, Tolerance: 0.05, Message: "regressed", CreatedAt: time.Now().UTC()}
	if err := db.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	alerts, err := db.ListAlerts(ctx, 10)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("ListAlerts = %v, %v", alerts, err)
	}
}
