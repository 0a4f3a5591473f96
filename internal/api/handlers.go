// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/stallcast/internal/feedback"
	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/recommend"
	"github.com/tomtom215/stallcast/internal/retrain"
)

// Store is the relational data the handlers read and write directly.
type Store interface {
	Ping(ctx context.Context) error

	CreateAppearance(ctx context.Context, a *models.Appearance) error
	GetAppearance(ctx context.Context, id string) (*models.Appearance, error)
	ListAppearances(ctx context.Context, sellerID string, from, to time.Time) ([]models.Appearance, error)
	UpdateAppearanceStatus(ctx context.Context, id string, status models.AppearanceStatus) error

	InsertTransactions(ctx context.Context, txns []models.Transaction) (int, error)

	UpsertVenue(ctx context.Context, v *models.Venue) error
	UpsertProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	SoftDeleteProduct(ctx context.Context, sellerID, productID string) error
	ListProducts(ctx context.Context, sellerID string, activeOnly bool) ([]models.Product, error)

	ListModels(ctx context.Context) ([]models.TrainedModel, error)
	ListAlerts(ctx context.Context, limit int) ([]models.RegressionAlert, error)
}

// Recommender serves and invalidates recommendation sets.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	Invalidate(ctx context.Context, sellerID, venueID string, date time.Time) error
}

// FeedbackSubmitter records market-day outcomes.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, s feedback.Submission) (*models.Feedback, error)
}

// Retrainer administers model versions.
type Retrainer interface {
	TriggerAsync(ctx context.Context, trigger string) bool
	Activate(ctx context.Context, version int64) error
	Status() retrain.Status
}

// Publisher publishes data-change events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files by resource:
//   - handlers_recommend.go: recommendations and invalidation
//   - handlers_feedback.go: outcome submission
//   - handlers_appearances.go: appearance scheduling
//   - handlers_catalog.go: venues, products and transaction sync
//   - handlers_models.go: model administration
//   - handlers_health.go: liveness and readiness
type Handler struct {
	store     Store
	engine    Recommender
	feedback  FeedbackSubmitter
	retrainer Retrainer
	events    Publisher
	startTime time.Time
	now       func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(store Store, engine Recommender, fb FeedbackSubmitter, retrainer Retrainer, events Publisher) *Handler {
	return &Handler{
		store:     store,
		engine:    engine,
		feedback:  fb,
		retrainer: retrainer,
		events:    events,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// requireSeller returns the caller's seller ID, answering 401 when the identity
// layer did not supply one.
func requireSeller(rw *ResponseWriter, r *http.Request) (string, bool) {
	sellerID := logging.SellerIDFromContext(r.Context())
	if sellerID == "" {
		rw.Unauthorized("X-Seller-ID header is required")
		return "", false
	}
	return sellerID, true
}

// publish sends a data-change event. Failures are logged: the write already
// succeeded and the cache entries involved expire on their own.
func (h *Handler) publish(ctx context.Context, topic string, payload any) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, topic, payload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}
