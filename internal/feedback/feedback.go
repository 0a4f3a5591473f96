// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package feedback records what actually sold after a market day.
//
// Each (appearance, product) pair accepts exactly one outcome. The outcome is
// compared with the quantity that was recommended for the appearance, and the
// stored record becomes part of the retraining corpus.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/stallcast/internal/eventbus"
	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/metrics"
	"github.com/tomtom215/stallcast/internal/models"
)

// DefaultAccuracyBand is the relative error still counted as accurate.
const DefaultAccuracyBand = 0.20

// Store is the persistence the ingestor needs.
type Store interface {
	GetAppearance(ctx context.Context, id string) (*models.Appearance, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	RecommendedQuantity(ctx context.Context, appearanceID, productID string) (int, error)
	InsertFeedback(ctx context.Context, f *models.Feedback) error
	UpdateAppearanceStatus(ctx context.Context, id string, status models.AppearanceStatus) error
}

// Publisher announces accepted feedback.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Submission is one reported outcome.
type Submission struct {
	SellerID     string
	AppearanceID string
	ProductID    string
	Actual       float64
}

// Ingestor validates and stores feedback.
type Ingestor struct {
	store Store
	pub   Publisher
	band  float64
	now   func() time.Time

	locks keyedMutex
}

// NewIngestor creates an ingestor. pub may be nil.
func NewIngestor(store Store, pub Publisher) *Ingestor {
	return &Ingestor{
		store: store,
		pub:   pub,
		band:  DefaultAccuracyBand,
		now:   time.Now,
		locks: keyedMutex{m: make(map[string]*keyedEntry)},
	}
}

// Submit records the outcome of one product at one appearance.
//
// Errors:
//   - models.ErrInvalidInput for a negative or non-finite quantity
//   - models.ErrNotFound when the appearance or product does not exist for the seller
//   - models.ErrInvalidAppearance when the market day has not passed or was cancelled
//   - models.ErrConflict when feedback already exists for the pair
func (in *Ingestor) Submit(ctx context.Context, s Submission) (*models.Feedback, error) {
	if math.IsNaN(s.Actual) || math.IsInf(s.Actual, 0) || s.Actual < 0 {
		metrics.RecordFeedback("invalid", false)
		return nil, fmt.Errorf("actual quantity %v: %w", s.Actual, models.ErrInvalidInput)
	}

	unlock := in.locks.lock(s.AppearanceID + "/" + s.ProductID)
	defer unlock()

	app, err := in.store.GetAppearance(ctx, s.AppearanceID)
	if err != nil {
		return nil, in.reject(err)
	}
	if app.SellerID != s.SellerID {
		return nil, in.reject(fmt.Errorf("appearance %s: %w", s.AppearanceID, models.ErrNotFound))
	}
	if app.Status == models.AppearanceCancelled {
		return nil, in.reject(fmt.Errorf("appearance %s was cancelled: %w", app.ID, models.ErrInvalidAppearance))
	}
	today := models.Day(in.now())
	if !models.Day(app.Date).Before(today) {
		return nil, in.reject(fmt.Errorf("appearance %s on %s has not passed: %w",
			app.ID, app.Date.Format(models.DateLayout), models.ErrInvalidAppearance))
	}

	product, err := in.store.GetProduct(ctx, s.ProductID)
	if err != nil {
		return nil, in.reject(err)
	}
	if product.SellerID != s.SellerID {
		return nil, in.reject(fmt.Errorf("product %s: %w", s.ProductID, models.ErrNotFound))
	}

	recommended, err := in.store.RecommendedQuantity(ctx, app.ID, product.ID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		recommended = 0
	case err != nil:
		return nil, err
	}

	fb := &models.Feedback{
		ID:           uuid.NewString(),
		AppearanceID: app.ID,
		ProductID:    product.ID,
		SellerID:     app.SellerID,
		VenueID:      app.VenueID,
		Date:         models.Day(app.Date),
		Recommended:  recommended,
		Actual:       s.Actual,
		Variance:     s.Actual - float64(recommended),
		Accurate:     Accurate(recommended, s.Actual, in.band),
		SubmittedAt:  in.now().UTC(),
	}
	if err := in.store.InsertFeedback(ctx, fb); err != nil {
		return nil, in.reject(err)
	}
	metrics.RecordFeedback("accepted", fb.Accurate)

	logger := logging.Ctx(ctx)
	if app.Status == models.AppearancePlanned {
		if err := in.store.UpdateAppearanceStatus(ctx, app.ID, models.AppearanceCompleted); err != nil {
			logger.Warn().Err(err).Str("appearance_id", app.ID).Msg("Failed to complete appearance")
		}
	}

	if in.pub != nil {
		ev := eventbus.FeedbackRecorded{
			SellerID:     fb.SellerID,
			VenueID:      fb.VenueID,
			AppearanceID: fb.AppearanceID,
			ProductID:    fb.ProductID,
			Date:         fb.Date.Format(models.DateLayout),
			Accurate:     fb.Accurate,
		}
		if err := in.pub.Publish(ctx, eventbus.TopicFeedbackRecorded, ev); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish feedback event")
		}
	}

	logger.Info().
		Str("appearance_id", fb.AppearanceID).
		Str("product_id", fb.ProductID).
		Int("recommended", fb.Recommended).
		Float64("actual", fb.Actual).
		Bool("accurate", fb.Accurate).
		Msg("Feedback recorded")
	return fb, nil
}

func (in *Ingestor) reject(err error) error {
	switch {
	case errors.Is(err, models.ErrConflict):
		metrics.RecordFeedback("conflict", false)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidAppearance):
		metrics.RecordFeedback("invalid", false)
	}
	return err
}

// Accurate reports whether actual lies within band (relative) of recommended.
// A zero recommendation is only accurate when nothing sold.
func Accurate(recommended int, actual, band float64) bool {
	if recommended == 0 {
		return actual == 0
	}
	r := float64(recommended)
	return math.Abs(actual-r) <= band*r
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.m[key]
	if !ok {
		e = &keyedEntry{}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
