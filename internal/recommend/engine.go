// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/stallcast/internal/cache"
	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/metrics"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/normalize"
	"github.com/tomtom215/stallcast/internal/predict"
	"github.com/tomtom215/stallcast/internal/scoring"
	"github.com/tomtom215/stallcast/internal/signals"
)

// Store is the relational data the engine reads and writes.
type Store interface {
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	ListProducts(ctx context.Context, sellerID string, activeOnly bool) ([]models.Product, error)
	FindAppearance(ctx context.Context, sellerID, venueID string, date time.Time) (*models.Appearance, error)
	SaveRecommendations(ctx context.Context, appearanceID string, modelVersion int64, recs []models.Recommendation) error
	SetAppearanceSignals(ctx context.Context, id string, weather *models.WeatherSignal, events []models.EventSignal) error
}

// FeatureBuilder fetches signals and assembles feature vectors.
type FeatureBuilder interface {
	Build(ctx context.Context, q signals.Query, products []models.Product) (*features.Bundle, error)
}

// ModelSource returns the active model, or nil.
type ModelSource interface {
	Active() predict.Model
}

// Cache stores finished payloads.
type Cache interface {
	Get(ctx context.Context, k cache.Key) ([]byte, bool)
	Put(ctx context.Context, k cache.Key, payload []byte) error
	Invalidate(ctx context.Context, k cache.Key, reason string) error
}

// Config tunes the engine.
type Config struct {
	// RequestBudget bounds one pipeline computation.
	RequestBudget time.Duration
	Predict       predict.Config
	Scoring       scoring.Config
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		RequestBudget: 5 * time.Second,
		Predict:       predict.DefaultConfig(),
		Scoring:       scoring.DefaultConfig(),
	}
}

// Request asks for one recommendation set.
type Request struct {
	SellerID string
	VenueID  string
	Date     time.Time
}

// Response carries the encoded set. Payload is the exact JSON cached for the key, so
// repeated hits return identical bytes. Set is nil on a cache hit.
type Response struct {
	Payload []byte
	Set     *models.RecommendationSet
	Cached  bool
}

// Engine orchestrates one recommendation request. It is safe for concurrent use.
type Engine struct {
	store     Store
	builder   FeatureBuilder
	models    ModelSource
	cache     Cache
	predictor *predict.Engine
	scorer    *scoring.Scorer
	cfg       Config

	group singleflight.Group
	now   func() time.Time
}

// NewEngine wires an engine.
func NewEngine(store Store, builder FeatureBuilder, models ModelSource, c Cache, cfg Config) *Engine {
	if cfg.RequestBudget <= 0 {
		cfg.RequestBudget = DefaultConfig().RequestBudget
	}
	return &Engine{
		store:     store,
		builder:   builder,
		models:    models,
		cache:     c,
		predictor: predict.NewEngine(cfg.Predict),
		scorer:    scoring.New(cfg.Scoring),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Recommend returns the recommendation set for req.
//
// Errors:
//   - models.ErrInvalidInput when seller or venue is missing
//   - models.ErrInvalidAppearance when the date has passed or the venue is unknown
//   - *models.UpstreamError when the transaction history or the relational store is unavailable
//   - ErrBudgetExceeded when the pipeline ran out of time
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := e.recommend(ctx, req)
	metrics.RecommendationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RecommendationErrors.WithLabelValues(ErrorKind(err)).Inc()
	}
	return resp, err
}

func (e *Engine) recommend(ctx context.Context, req Request) (*Response, error) {
	if req.SellerID == "" || req.VenueID == "" {
		return nil, fmt.Errorf("seller and venue are required: %w", models.ErrInvalidInput)
	}
	date := models.Day(req.Date)
	if date.Before(models.Day(e.now())) {
		return nil, fmt.Errorf("date %s has passed: %w", date.Format(models.DateLayout), models.ErrInvalidAppearance)
	}
	req.Date = date

	key := cache.Key{SellerID: req.SellerID, VenueID: req.VenueID, Date: date}
	if payload, ok := e.cache.Get(ctx, key); ok {
		logging.Ctx(ctx).Debug().Str("key", key.String()).Msg("Recommendation cache hit")
		return &Response{Payload: payload, Cached: true}, nil
	}

	// The computation is shared by every concurrent caller of the key and outlives
	// any single caller.
	compute := func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RequestBudget)
		defer cancel()
		return e.compute(cctx, req, key)
	}
	ch := e.group.DoChan(key.String(), compute)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := res.Val.(*Response)
		return &Response{Payload: out.Payload, Set: out.Set}, nil
	}
}

// Invalidate drops the cached set for one seller, venue and date.
func (e *Engine) Invalidate(ctx context.Context, sellerID, venueID string, date time.Time) error {
	if sellerID == "" || venueID == "" {
		return fmt.Errorf("seller and venue are required: %w", models.ErrInvalidInput)
	}
	return e.cache.Invalidate(ctx, cache.Key{SellerID: sellerID, VenueID: venueID, Date: date}, cache.ReasonManual)
}

// compute runs the pipeline for one key.
func (e *Engine) compute(ctx context.Context, req Request, key cache.Key) (*Response, error) {
	logger := logging.CtxWith(ctx).
		Str("component", "recommend").
		Str("venue_id", req.VenueID).
		Str("date", req.Date.Format(models.DateLayout)).
		Logger()

	venue, err := e.store.GetVenue(ctx, req.VenueID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("venue %s is unknown: %w", req.VenueID, models.ErrInvalidAppearance)
	}
	if err != nil {
		return nil, storeError(ctx, "load venue", err)
	}
	products, err := e.store.ListProducts(ctx, req.SellerID, true)
	if err != nil {
		return nil, storeError(ctx, "list products", err)
	}

	// Captured once: a promotion during this computation does not affect it.
	model := e.models.Active()
	set := &models.RecommendationSet{
		SellerID:        req.SellerID,
		VenueID:         req.VenueID,
		Date:            req.Date.Format(models.DateLayout),
		GeneratedAt:     e.now().UTC(),
		Factors:         []models.ReasoningFactor{},
		Recommendations: []models.Recommendation{},
	}
	if model != nil {
		set.ModelVersion = model.Version()
	}

	if len(products) == 0 {
		set.InsufficientData = true
		set.Factors = append(set.Factors, models.ReasoningFactor{
			Name: models.FactorNoHistory, Source: signals.SourceStore, Detail: "seller has no active products",
		})
		return e.finish(ctx, logger, key, set)
	}

	q := signals.Query{
		SellerID:  req.SellerID,
		VenueID:   venue.ID,
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
		Date:      req.Date,
	}
	bundle, err := e.builder.Build(ctx, q, products)
	if err != nil {
		return nil, err
	}

	set.Factors = signalFactors(bundle)
	set.InsufficientData = true
	for i := range bundle.Vectors {
		rec := e.recommendProduct(&bundle.Products[i], &bundle.Vectors[i], model, bundle.Meta.Completeness)
		if bundle.Vectors[i].HasDemand {
			set.InsufficientData = false
		}
		set.Recommendations = append(set.Recommendations, rec)
	}
	if set.InsufficientData {
		set.Factors = append(set.Factors, models.ReasoningFactor{
			Name: models.FactorNoHistory, Source: signals.SourceStore, Detail: "no sales recorded for any product",
		})
	}

	// Out of budget: discard rather than cache a set built from abandoned fetches.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBudgetExceeded, err)
	}

	e.persist(ctx, logger, req, set, bundle)

	resp, err := e.finish(ctx, logger, key, set)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("products", len(set.Recommendations)).
		Int64("model_version", set.ModelVersion).
		Float64("completeness", bundle.Meta.Completeness).
		Bool("insufficient_data", set.InsufficientData).
		Msg("Recommendation set computed")
	return resp, nil
}

// recommendProduct predicts, scores and normalizes one product.
func (e *Engine) recommendProduct(p *models.Product, fv *features.FeatureVector, model predict.Model, completeness float64) models.Recommendation {
	est := e.predictor.Predict(model, fv)
	score := e.scorer.Score(&est, fv, completeness)
	raw := scoring.Blend(&est, score.BlendWeight)

	path := models.PathModel
	switch {
	case score.ColdStart:
		path = models.PathColdStart
		// A new venue never gets less than the product sells on average elsewhere.
		raw = math.Max(raw, fv.AllVenueMean.Or(0))
	case !est.UsedModel:
		path = models.PathHeuristic
	case score.BlendWeight < 1:
		path = models.PathBlended
	}

	rec := models.Recommendation{
		ProductID:          p.ID,
		ProductName:        p.Name,
		Category:           p.Category,
		Unit:               p.Unit,
		Granularity:        normalize.Granularity(p),
		RawEstimate:        raw,
		HeuristicEstimate:  est.Heuristic,
		NormalizedQuantity: normalize.Product(p, raw, fv.HasDemand),
		Confidence:         score.Confidence,
		BlendWeight:        score.BlendWeight,
		Path:               path,
		Factors:            productFactors(fv, &est, &score, e.predictor),
	}
	if est.UsedModel {
		rec.ModelEstimate = est.Raw
	}
	metrics.RecordPrediction(path, score.Confidence)
	return rec
}

// persist attaches the set to a scheduled appearance so feedback can be compared
// against it. Failures only cost the comparison and are logged.
func (e *Engine) persist(ctx context.Context, logger zerolog.Logger, req Request, set *models.RecommendationSet, bundle *features.Bundle) {
	app, err := e.store.FindAppearance(ctx, req.SellerID, req.VenueID, req.Date)
	if errors.Is(err, models.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to look up appearance")
		return
	}
	if app.Status != models.AppearancePlanned {
		return
	}
	set.AppearanceID = app.ID
	if err := e.store.SaveRecommendations(ctx, app.ID, set.ModelVersion, set.Recommendations); err != nil {
		logger.Warn().Err(err).Str("appearance_id", app.ID).Msg("Failed to store recommendations")
	}
	if err := e.store.SetAppearanceSignals(ctx, app.ID, bundle.Weather, bundle.Events); err != nil {
		logger.Warn().Err(err).Str("appearance_id", app.ID).Msg("Failed to store appearance signals")
	}
}

// finish encodes the set and caches it. A cache failure is logged and the
// set is still returned.
func (e *Engine) finish(ctx context.Context, logger zerolog.Logger, key cache.Key, set *models.RecommendationSet) (*Response, error) {
	payload, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encode recommendation set: %w", err)
	}
	if err := e.cache.Put(ctx, key, payload); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache recommendation set")
	}
	return &Response{Payload: payload, Set: set}, nil
}
