// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package features

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/signals"
)

// Inputs are everything Assemble needs for one product.
type Inputs struct {
	Product    models.Product
	Date       time.Time
	Rolling    Rolling
	Venue      *models.VenueProfile
	Weather    *models.WeatherSignal
	Events     []models.EventSignal
	Thresholds AttendanceThresholds
}

// Assemble builds the vector for one product. It is pure so that training can
// rebuild historical vectors exactly as requests build live ones.
func Assemble(in Inputs) FeatureVector {
	day := models.Day(in.Date)
	fv := FeatureVector{
		ProductID:        in.Product.ID,
		Category:         in.Product.Category,
		VenueRollingMean: in.Rolling.VenueMean,
		VenueRollingStd:  in.Rolling.VenueStd,
		VenueSaleDays:    in.Rolling.VenueDays,
		AllVenueMean:     in.Rolling.AllMean,
		AllVenueStd:      in.Rolling.AllStd,
		HasDemand:        in.Rolling.HasDemand,
		Condition:        models.ConditionUnknown,
		HasSeason:        in.Product.HasSeason(),
		InSeason:         in.Product.InSeason(day.Month()),
		Recency:          RecencyNew,
		DayOfWeek:        day.Weekday(),
		Month:            day.Month(),
	}

	if w := in.Weather; w != nil {
		fv.TemperatureC = Some(w.TemperatureC)
		fv.PrecipProb = Some(w.PrecipitationProb)
		fv.Condition = models.NormalizeCondition(string(w.Condition))
	}

	if largest := signals.LargestAttendance(in.Events); len(in.Events) > 0 {
		fv.EventNearby = true
		fv.Attendance = in.Thresholds.Bucket(largest)
	}

	if v := in.Venue; v != nil {
		fv.VenueVisits = v.AppearanceCount
		if v.LastSeen != nil && !v.IsNew() {
			days := int(day.Sub(models.Day(*v.LastSeen)).Hours() / 24)
			fv.DaysSinceLast = Some(float64(days))
			fv.Recency = BucketRecency(days)
		}
	}
	return fv
}

// Field counts per signal, used for completeness.
var signalFields = map[string]int{
	signals.SignalTransactions: 4, // venue mean/std, all-venue mean/std
	signals.SignalWeather:      3, // temperature, precipitation, condition
	signals.SignalEvents:       2, // flag, attendance bucket
	signals.SignalVenue:        3, // visits, recency, days since last
}

// Config tunes the builder.
type Config struct {
	Window     int
	Thresholds AttendanceThresholds
}

// Bundle is the output of one Build: a vector per product plus shared metadata.
type Bundle struct {
	Vectors  []FeatureVector
	Meta     Metadata
	Venue    *models.VenueProfile
	Weather  *models.WeatherSignal
	Events   []models.EventSignal
	History  *History
	Products []models.Product
}

// Builder fetches the four signals concurrently and assembles vectors.
type Builder struct {
	transactions signals.Adapter[[]models.Transaction]
	weather      signals.Adapter[*models.WeatherSignal]
	events       signals.Adapter[[]models.EventSignal]
	venue        signals.Adapter[*models.VenueProfile]
	cfg          Config
}

// NewBuilder creates a builder over the given adapters.
func NewBuilder(
	transactions signals.Adapter[[]models.Transaction],
	weather signals.Adapter[*models.WeatherSignal],
	events signals.Adapter[[]models.EventSignal],
	venue signals.Adapter[*models.VenueProfile],
	cfg Config,
) *Builder {
	if cfg.Window <= 0 {
		cfg.Window = 4
	}
	return &Builder{transactions: transactions, weather: weather, events: events, venue: venue, cfg: cfg}
}

// Build fetches the signals for q and assembles one vector per product. The only
// error it returns is the transaction adapter's fatal *models.UpstreamError.
func (b *Builder) Build(ctx context.Context, q signals.Query, products []models.Product) (*Bundle, error) {
	var (
		txns    signals.Result[[]models.Transaction]
		weather signals.Result[*models.WeatherSignal]
		events  signals.Result[[]models.EventSignal]
		venue   signals.Result[*models.VenueProfile]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txns = b.transactions.Fetch(gctx, q)
		return txns.Err
	})
	g.Go(func() error {
		weather = b.weather.Fetch(gctx, q)
		return nil
	})
	g.Go(func() error {
		events = b.events.Fetch(gctx, q)
		return nil
	})
	g.Go(func() error {
		venue = b.venue.Fetch(gctx, q)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	meta := Metadata{Sources: make(map[string]string, 4), Degraded: make(map[string]string)}
	total, healthy := 0, 0
	for _, s := range []struct {
		name     string
		source   string
		degraded bool
		reason   string
	}{
		{signals.SignalTransactions, txns.Source, txns.Degraded, txns.Reason},
		{signals.SignalWeather, weather.Source, weather.Degraded, weather.Reason},
		{signals.SignalEvents, events.Source, events.Degraded, events.Reason},
		{signals.SignalVenue, venue.Source, venue.Degraded, venue.Reason},
	} {
		meta.Sources[s.name] = s.source
		total += signalFields[s.name]
		if s.degraded {
			meta.Degraded[s.name] = s.reason
			continue
		}
		healthy += signalFields[s.name]
	}
	meta.Completeness = float64(healthy) / float64(total)

	if len(meta.Degraded) > 0 {
		logging.Ctx(ctx).Info().Interface("degraded", meta.Degraded).Str("venue_id", q.VenueID).
			Msg("Building features with degraded signals")
	}

	history := NewHistory(txns.Value)
	day := models.Day(q.Date)
	vectors := make([]FeatureVector, len(products))
	for i, p := range products {
		vectors[i] = Assemble(Inputs{
			Product:    p,
			Date:       day,
			Rolling:    history.Rolling(p.ID, q.VenueID, day, b.cfg.Window),
			Venue:      venue.Value,
			Weather:    weather.Value,
			Events:     events.Value,
			Thresholds: b.cfg.Thresholds,
		})
	}

	return &Bundle{
		Vectors:  vectors,
		Meta:     meta,
		Venue:    venue.Value,
		Weather:  weather.Value,
		Events:   events.Value,
		History:  history,
		Products: products,
	}, nil
}
