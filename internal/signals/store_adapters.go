// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package signals

import (
	"context"
	"time"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
)

// DependencyTransactionStore names the transaction store in upstream errors.
const DependencyTransactionStore = "transaction_store"

// TransactionStore is the internal sales history.
type TransactionStore interface {
	QueryTransactions(ctx context.Context, q models.TransactionQuery) ([]models.Transaction, error)
}

// TransactionAdapter loads the seller's sales across all venues for the history
// window ending on the appearance date. It has no fallback: a store failure is
// returned as a *models.UpstreamError in Result.Err.
type TransactionAdapter struct {
	store       TransactionStore
	historyDays int
}

// NewTransactionAdapter creates the adapter. historyDays bounds how far back sales
// are loaded.
func NewTransactionAdapter(store TransactionStore, historyDays int) *TransactionAdapter {
	if historyDays <= 0 {
		historyDays = 730
	}
	return &TransactionAdapter{store: store, historyDays: historyDays}
}

// Fetch implements Adapter.
func (a *TransactionAdapter) Fetch(ctx context.Context, q Query) Result[[]models.Transaction] {
	start := time.Now()
	day := models.Day(q.Date)

	txns, err := a.store.QueryTransactions(ctx, models.TransactionQuery{
		SellerID: q.SellerID,
		From:     day.AddDate(0, 0, -a.historyDays),
		To:       day,
	})
	if err != nil {
		observe(SignalTransactions, "error", start)
		logging.Ctx(ctx).Error().Err(err).Str("venue_id", q.VenueID).Msg("Transaction history unavailable")
		return Result[[]models.Transaction]{
			Source:   SourceStore,
			Degraded: true,
			Reason:   reasonFor(err),
			Err:      models.NewUpstreamError(DependencyTransactionStore, err),
		}
	}
	observe(SignalTransactions, SourceStore, start)
	return Result[[]models.Transaction]{Value: txns, Source: SourceStore}
}

// VenueStore provides the seller's history at a venue.
type VenueStore interface {
	VenueHistory(ctx context.Context, sellerID, venueID string, before time.Time) (*models.VenueProfile, error)
}

// VenueAdapter returns the seller's profile at the venue. A venue the seller never
// visited yields a zero-history profile from the store; if the store itself fails
// the adapter substitutes a zero-history profile and marks it degraded.
type VenueAdapter struct {
	store VenueStore
}

// NewVenueAdapter creates the adapter.
func NewVenueAdapter(store VenueStore) *VenueAdapter {
	return &VenueAdapter{store: store}
}

// Fetch implements Adapter.
func (a *VenueAdapter) Fetch(ctx context.Context, q Query) Result[*models.VenueProfile] {
	start := time.Now()

	profile, err := a.store.VenueHistory(ctx, q.SellerID, q.VenueID, models.Day(q.Date))
	if err != nil {
		observe(SignalVenue, SourceDefault, start)
		logging.Ctx(ctx).Warn().Err(err).Str("venue_id", q.VenueID).Msg("Venue history unavailable, assuming no visits")
		return Result[*models.VenueProfile]{
			Value: &models.VenueProfile{
				VenueID:   q.VenueID,
				SellerID:  q.SellerID,
				Latitude:  q.Latitude,
				Longitude: q.Longitude,
			},
			Source:   SourceDefault,
			Degraded: true,
			Reason:   reasonFor(err),
		}
	}
	observe(SignalVenue, SourceStore, start)
	return Result[*models.VenueProfile]{Value: profile, Source: SourceStore}
}
