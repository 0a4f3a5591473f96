// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package retrain

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/predict"
)

// CorpusStore is the read side the corpus builder needs.
type CorpusStore interface {
	QueryTransactions(ctx context.Context, q models.TransactionQuery) ([]models.Transaction, error)
	ListAllProducts(ctx context.Context) ([]models.Product, error)
	ListAppearancesSince(ctx context.Context, from time.Time) ([]models.Appearance, error)
	ListFeedbackSince(ctx context.Context, from time.Time) ([]models.Feedback, error)
}

// CorpusConfig controls which observations become training rows.
type CorpusConfig struct {
	WindowDays          int
	HistoryWindow       int
	MaxFeedbackVariance float64
	Thresholds          features.AttendanceThresholds
}

// CorpusStats summarizes one corpus build.
type CorpusStats struct {
	Transactions     int `json:"transactions"`
	Feedback         int `json:"feedback"`
	FeedbackFiltered int `json:"feedback_filtered"`
	Rows             int `json:"rows"`
}

type visitKey struct {
	seller string
	venue  string
}

type dayKey struct {
	seller string
	venue  string
	day    int64
}

type outcomeKey struct {
	dayKey
	product string
}

// BuildCorpus rebuilds one training row per (seller, venue, sale day, product)
// inside the window ending at cutoff. Every row is assembled exactly as a request on
// that day would have assembled it: rolling statistics only see earlier days, and
// weather and events come from what was stored on the appearance.
//
// Accepted feedback overrides the transaction quantity for its day. Feedback whose
// variance exceeds MaxFeedbackVariance times the recommendation is treated as an
// entry error and ignored.
func BuildCorpus(ctx context.Context, store CorpusStore, cutoff time.Time, cfg CorpusConfig) ([]predict.Row, CorpusStats, error) {
	var stats CorpusStats
	cutoff = models.Day(cutoff)
	from := cutoff.AddDate(0, 0, -cfg.WindowDays)

	txns, err := store.QueryTransactions(ctx, models.TransactionQuery{From: from, To: cutoff})
	if err != nil {
		return nil, stats, fmt.Errorf("load transactions: %w", err)
	}
	products, err := store.ListAllProducts(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("load products: %w", err)
	}
	appearances, err := store.ListAppearancesSince(ctx, from)
	if err != nil {
		return nil, stats, fmt.Errorf("load appearances: %w", err)
	}
	feedback, err := store.ListFeedbackSince(ctx, from)
	if err != nil {
		return nil, stats, fmt.Errorf("load feedback: %w", err)
	}
	stats.Transactions = len(txns)

	bySeller := make(map[string][]models.Transaction)
	for _, t := range txns {
		bySeller[t.SellerID] = append(bySeller[t.SellerID], t)
	}

	catalog := make(map[string][]models.Product)
	for _, p := range products {
		catalog[p.SellerID] = append(catalog[p.SellerID], p)
	}

	stored := make(map[dayKey]*models.Appearance)
	visits := make(map[visitKey]map[int64]bool)
	for i := range appearances {
		a := &appearances[i]
		day := models.Day(a.Date)
		if !day.Before(cutoff) {
			continue
		}
		stored[dayKey{a.SellerID, a.VenueID, day.Unix()}] = a
		if a.Status == models.AppearanceCompleted {
			addDay(visits, visitKey{a.SellerID, a.VenueID}, day)
		}
	}

	overrides := make(map[outcomeKey]float64)
	observed := make(map[visitKey]map[int64]bool)
	for _, f := range feedback {
		day := models.Day(f.Date)
		if !day.Before(cutoff) {
			continue
		}
		if !feedbackUsable(&f, cfg.MaxFeedbackVariance) {
			stats.FeedbackFiltered++
			continue
		}
		stats.Feedback++
		overrides[outcomeKey{dayKey{f.SellerID, f.VenueID, day.Unix()}, f.ProductID}] = f.Actual
		addDay(observed, visitKey{f.SellerID, f.VenueID}, day)
	}

	histories := make(map[string]*features.History, len(catalog))
	for _, seller := range sortedKeys(catalog) {
		history := features.NewHistory(bySeller[seller])
		histories[seller] = history
		for _, venue := range history.Venues() {
			days := history.VenueDays(venue, cutoff)
			addDays(observed, visitKey{seller, venue}, days)
			addDays(visits, visitKey{seller, venue}, days)
		}
	}

	keys := make([]visitKey, 0, len(observed))
	for vk := range observed {
		keys = append(keys, vk)
	}
	slices.SortFunc(keys, func(a, b visitKey) int {
		if c := cmp.Compare(a.seller, b.seller); c != 0 {
			return c
		}
		return cmp.Compare(a.venue, b.venue)
	})

	var rows []predict.Row
	for _, vk := range keys {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		history := histories[vk.seller]
		if history == nil {
			continue
		}
		visitDays := sortedDays(visits[vk])
		for _, unix := range sortedUnix(observed[vk]) {
			day := time.Unix(unix, 0).UTC()
			dk := dayKey{vk.seller, vk.venue, unix}
			profile := profileBefore(vk, visitDays, day)
			var (
				weather *models.WeatherSignal
				events  []models.EventSignal
			)
			if a := stored[dk]; a != nil {
				weather, events = a.Weather, a.Events
			}

			for _, p := range catalog[vk.seller] {
				actual, overridden := overrides[outcomeKey{dk, p.ID}]
				rolling := history.Rolling(p.ID, vk.venue, day, cfg.HistoryWindow)
				if !rolling.HasDemand && !overridden {
					continue
				}
				if !overridden {
					actual = history.Quantity(p.ID, vk.venue, day)
				}
				rows = append(rows, predict.Row{
					Vector: features.Assemble(features.Inputs{
						Product:    p,
						Date:       day,
						Rolling:    rolling,
						Venue:      profile,
						Weather:    weather,
						Events:     events,
						Thresholds: cfg.Thresholds,
					}),
					Actual: actual,
					Date:   day,
				})
			}
		}
	}

	slices.SortStableFunc(rows, func(a, b predict.Row) int { return a.Date.Compare(b.Date) })
	stats.Rows = len(rows)
	return rows, stats, nil
}

// feedbackUsable applies the quality filter. A zero recommendation gives no scale to
// judge against, so such feedback is always kept.
func feedbackUsable(f *models.Feedback, maxVariance float64) bool {
	if maxVariance <= 0 || f.Recommended == 0 {
		return true
	}
	return math.Abs(f.Variance) <= maxVariance*float64(f.Recommended)
}

// profileBefore rebuilds the venue profile as it looked on day.
func profileBefore(vk visitKey, visitDays []time.Time, day time.Time) *models.VenueProfile {
	p := &models.VenueProfile{VenueID: vk.venue, SellerID: vk.seller}
	for _, d := range visitDays {
		if !d.Before(day) {
			break
		}
		if p.FirstSeen == nil {
			first := d
			p.FirstSeen = &first
		}
		last := d
		p.LastSeen = &last
		p.AppearanceCount++
	}
	return p
}

// SplitHoldout splits date-ordered rows into a training prefix and a holdout suffix
// holding roughly fraction of the rows. A sale day never straddles the split.
func SplitHoldout(rows []predict.Row, fraction float64) (train, holdout []predict.Row, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("holdout fraction %v outside (0, 1): %w", fraction, models.ErrInvalidInput)
	}
	idx := int(math.Round(float64(len(rows)) * (1 - fraction)))
	for idx > 0 && idx < len(rows) && rows[idx].Date.Equal(rows[idx-1].Date) {
		idx++
	}
	if idx <= 0 || idx >= len(rows) {
		return nil, nil, fmt.Errorf("%d rows cannot be split for validation: %w", len(rows), models.ErrInsufficientData)
	}
	return rows[:idx], rows[idx:], nil
}

func addDay(m map[visitKey]map[int64]bool, k visitKey, day time.Time) {
	if m[k] == nil {
		m[k] = make(map[int64]bool)
	}
	m[k][day.Unix()] = true
}

func addDays(m map[visitKey]map[int64]bool, k visitKey, days []time.Time) {
	for _, d := range days {
		addDay(m, k, d)
	}
}

func sortedUnix(days map[int64]bool) []int64 {
	out := make([]int64, 0, len(days))
	for d := range days {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

func sortedDays(days map[int64]bool) []time.Time {
	unix := sortedUnix(days)
	out := make([]time.Time, len(unix))
	for i, u := range unix {
		out[i] = time.Unix(u, 0).UTC()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
