// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package features

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/signals"
)

var base = time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC) // a Saturday

func saturday(weeksAgo int) time.Time {
	return base.AddDate(0, 0, -7*weeksAgo).Add(10 * time.Hour)
}

func TestHistoryRolling(t *testing.T) {
	t.Parallel()

	txns := []models.Transaction{
		// Venue v1: bread sells 18, 0 (other product only), 22, 20, 24 over five Saturdays.
		{ProductID: "bread", VenueID: "v1", Quantity: 18, SoldAt: saturday(5)},
		{ProductID: "jam", VenueID: "v1", Quantity: 3, SoldAt: saturday(4)},
		{ProductID: "bread", VenueID: "v1", Quantity: 12, SoldAt: saturday(3)},
		{ProductID: "bread", VenueID: "v1", Quantity: 10, SoldAt: saturday(3).Add(time.Hour)},
		{ProductID: "bread", VenueID: "v1", Quantity: 20, SoldAt: saturday(2)},
		{ProductID: "bread", VenueID: "v1", Quantity: 24, SoldAt: saturday(1)},
		// Venue v2 on a Wednesday.
		{ProductID: "bread", VenueID: "v2", Quantity: 6, SoldAt: saturday(2).AddDate(0, 0, 4)},
		// Sold on the cutoff day itself: must be ignored.
		{ProductID: "bread", VenueID: "v1", Quantity: 99, SoldAt: base.Add(9 * time.Hour)},
	}
	h := NewHistory(txns)

	r := h.Rolling("bread", "v1", base, 4)
	if !r.HasDemand || r.VenueDays != 4 {
		t.Fatalf("unexpected rolling %+v", r)
	}
	// Last four venue days: jam-only day (0), 22, 20, 24.
	if want := 16.5; r.VenueMean.Value != want {
		t.Errorf("VenueMean = %v, want %v", r.VenueMean.Value, want)
	}
	if !r.VenueStd.Present || r.VenueStd.Value <= 0 {
		t.Errorf("VenueStd = %+v", r.VenueStd)
	}
	// All-venue: days 5,4,3,2,(2+4d),1 -> 18,0,22,20,6,24.
	if want := 90.0 / 6; math.Abs(r.AllMean.Value-want) > 1e-9 {
		t.Errorf("AllMean = %v, want %v", r.AllMean.Value, want)
	}

	none := h.Rolling("bread", "v3", base, 4)
	if none.VenueMean.Present || !none.AllMean.Present || !none.HasDemand {
		t.Errorf("new venue rolling = %+v, want only all-venue stats", none)
	}

	unsold := h.Rolling("cake", "v1", base, 4)
	if unsold.HasDemand || unsold.AllMean.Present {
		t.Errorf("unsold product rolling = %+v", unsold)
	}
}

func TestAssembleMissingness(t *testing.T) {
	t.Parallel()

	p := models.Product{ID: "p1", Category: models.CategoryBakedGoods, SeasonStartMonth: 11, SeasonEndMonth: 2}
	fv := Assemble(Inputs{Product: p, Date: base})

	if fv.TemperatureC.Present || fv.PrecipProb.Present || fv.Condition != models.ConditionUnknown {
		t.Errorf("weather must be explicitly missing: %+v", fv)
	}
	if fv.VenueRollingMean.Present || fv.DaysSinceLast.Present {
		t.Error("history fields must be missing, not zero")
	}
	if fv.Recency != RecencyNew || !fv.ColdStart() {
		t.Errorf("recency = %v, want new", fv.Recency)
	}
	if !fv.HasSeason || fv.InSeason {
		t.Errorf("March is outside an Nov-Feb season: %+v", fv)
	}
	if fv.DayOfWeek != time.Saturday || fv.Month != time.March {
		t.Errorf("calendar fields = %v/%v", fv.DayOfWeek, fv.Month)
	}
}

func TestAssembleSignals(t *testing.T) {
	t.Parallel()

	last := base.AddDate(0, 0, -200)
	fv := Assemble(Inputs{
		Product:    models.Product{ID: "p1", Category: models.CategoryProduce},
		Date:       base,
		Venue:      &models.VenueProfile{AppearanceCount: 9, LastSeen: &last},
		Weather:    &models.WeatherSignal{TemperatureC: 0, PrecipitationProb: 0.9, Condition: models.ConditionSnow},
		Events:     []models.EventSignal{{ExpectedAttendance: 800}, {ExpectedAttendance: 1500}},
		Thresholds: AttendanceThresholds{Large: 5000, Medium: 1000},
	})

	if !fv.TemperatureC.Present || fv.TemperatureC.Value != 0 {
		t.Error("a real 0C reading must be present")
	}
	if fv.Attendance != AttendanceMedium || !fv.EventNearby {
		t.Errorf("attendance = %v", fv.Attendance)
	}
	if fv.Recency != RecencyStale || fv.DaysSinceLast.Value != 200 {
		t.Errorf("recency = %v days=%v", fv.Recency, fv.DaysSinceLast)
	}
}

func TestBucketRecency(t *testing.T) {
	t.Parallel()
	tests := map[int]RecencyBucket{0: RecencyRecent, 29: RecencyRecent, 30: RecencyMid, 180: RecencyMid, 181: RecencyStale}
	for days, want := range tests {
		if got := BucketRecency(days); got != want {
			t.Errorf("BucketRecency(%d) = %v, want %v", days, got, want)
		}
	}
}

type stubAdapter[T any] struct {
	res signals.Result[T]
}

func (s stubAdapter[T]) Fetch(context.Context, signals.Query) signals.Result[T] { return s.res }

func TestBuilderShapeIsStableUnderDegradation(t *testing.T) {
	t.Parallel()

	txns := stubAdapter[[]models.Transaction]{res: signals.Result[[]models.Transaction]{
		Source: signals.SourceStore,
		Value:  []models.Transaction{{ProductID: "p1", VenueID: "v1", Quantity: 20, SoldAt: saturday(1)}},
	}}
	venue := stubAdapter[*models.VenueProfile]{res: signals.Result[*models.VenueProfile]{
		Source: signals.SourceStore, Value: &models.VenueProfile{AppearanceCount: 1},
	}}
	liveWeather := stubAdapter[*models.WeatherSignal]{res: signals.Result[*models.WeatherSignal]{
		Source: signals.SourceLive, Value: &models.WeatherSignal{TemperatureC: 12, Condition: models.ConditionRain},
	}}
	noWeather := stubAdapter[*models.WeatherSignal]{res: signals.Result[*models.WeatherSignal]{
		Source: signals.SourceNone, Degraded: true, Reason: "timeout",
	}}
	events := stubAdapter[[]models.EventSignal]{res: signals.Result[[]models.EventSignal]{
		Source: signals.SourceLive, Value: []models.EventSignal{},
	}}

	products := []models.Product{{ID: "p1"}, {ID: "p2"}}
	q := signals.Query{SellerID: "s1", VenueID: "v1", Date: base}

	healthy, err := NewBuilder(txns, liveWeather, events, venue, Config{}).Build(context.Background(), q, products)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	degraded, err := NewBuilder(txns, noWeather, events, venue, Config{}).Build(context.Background(), q, products)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(healthy.Vectors) != 2 || len(degraded.Vectors) != 2 {
		t.Fatal("one vector per product expected")
	}
	if reflect.TypeOf(healthy.Vectors[0]) != reflect.TypeOf(degraded.Vectors[0]) {
		t.Fatal("vector type must not depend on degradation")
	}
	if healthy.Meta.Completeness != 1 {
		t.Errorf("healthy completeness = %v, want 1", healthy.Meta.Completeness)
	}
	if want := 9.0 / 12; math.Abs(degraded.Meta.Completeness-want) > 1e-9 {
		t.Errorf("degraded completeness = %v, want %v", degraded.Meta.Completeness, want)
	}
	if !degraded.Meta.IsDegraded(signals.SignalWeather) || degraded.Meta.Sources[signals.SignalWeather] != signals.SourceNone {
		t.Errorf("weather degradation not recorded: %+v", degraded.Meta)
	}
	if degraded.Vectors[0].TemperatureC.Present {
		t.Error("degraded weather must be marked missing")
	}
}

func TestBuilderFatalTransactionError(t *testing.T) {
	t.Parallel()

	fatal := models.NewUpstreamError(signals.DependencyTransactionStore, errors.New("down"))
	txns := stubAdapter[[]models.Transaction]{res: signals.Result[[]models.Transaction]{Err: fatal, Degraded: true}}
	weather := stubAdapter[*models.WeatherSignal]{res: signals.Result[*models.WeatherSignal]{Source: signals.SourceNone, Degraded: true}}
	events := stubAdapter[[]models.EventSignal]{res: signals.Result[[]models.EventSignal]{Source: signals.SourceEmpty, Degraded: true}}
	venue := stubAdapter[*models.VenueProfile]{res: signals.Result[*models.VenueProfile]{Source: signals.SourceStore, Value: &models.VenueProfile{}}}

	_, err := NewBuilder(txns, weather, events, venue, Config{}).Build(context.Background(), signals.Query{Date: base}, nil)
	if _, ok := models.AsUpstream(err); !ok {
		t.Errorf("error = %v, want UpstreamError", err)
	}
}
