// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package predict turns feature vectors into quantity estimates.
//
// A trained Model predicts a demand ratio from the context features (weather,
// events, seasonality, calendar, venue familiarity). The estimate is the venue
// rolling mean multiplied by that ratio. The rolling mean never enters the trees, and
// the ratio is clamped to be non-negative, so the estimate is non-negative and
// monotonically non-decreasing in the rolling mean for any fixed context.
//
// When no model is available, the venue has fewer than MinVisits visits, or there is
// no venue rolling mean to scale, the Engine takes the heuristic path: the rolling
// mean (or the all-venue mean on a cold start) times an event multiplier.
//
// # Thread Safety
//
// Models are immutable once trained. Engine and Registry are safe for concurrent use.
package predict

import (
	"github.com/tomtom215/stallcast/internal/features"
)

// Model predicts the demand ratio for one feature vector.
type Model interface {
	// Version is the persisted model version.
	Version() int64
	// PredictRatio returns the mean ratio across ensemble members and its spread.
	PredictRatio(fv *features.FeatureVector) (mean, spread float64)
}

// Uncertainty is the model's spread in product units. Heuristic marks the sentinel
// reported by the heuristic path, which has no spread estimate.
type Uncertainty struct {
	Std       float64 `json:"std"`
	Heuristic bool    `json:"heuristic"`
}

// HeuristicUncertainty is the sentinel reported when the heuristic path was used.
var HeuristicUncertainty = Uncertainty{Heuristic: true}

// Estimate is the output of one prediction.
type Estimate struct {
	// Raw is the model estimate on the model path, else the heuristic estimate.
	Raw float64
	// Heuristic is always computed so the scorer can blend toward it.
	Heuristic    float64
	Uncertainty  Uncertainty
	UsedModel    bool
	ModelVersion int64
}

// Config tunes the Engine.
type Config struct {
	MinVisits             int
	LargeEventMultiplier  float64
	MediumEventMultiplier float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{MinVisits: 4, LargeEventMultiplier: 1.5, MediumEventMultiplier: 1.2}
}

// Engine chooses between the model and heuristic paths.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MinVisits <= 0 {
		cfg.MinVisits = def.MinVisits
	}
	if cfg.LargeEventMultiplier <= 0 {
		cfg.LargeEventMultiplier = def.LargeEventMultiplier
	}
	if cfg.MediumEventMultiplier <= 0 {
		cfg.MediumEventMultiplier = def.MediumEventMultiplier
	}
	return &Engine{cfg: cfg}
}

// Predict estimates demand for fv. m may be nil. For a given model version the
// result depends only on fv.
func (e *Engine) Predict(m Model, fv *features.FeatureVector) Estimate {
	h := e.Heuristic(fv)
	est := Estimate{Raw: h, Heuristic: h, Uncertainty: HeuristicUncertainty}

	base := fv.VenueRollingMean
	if m == nil || fv.VenueVisits < e.cfg.MinVisits || !base.Present || base.Value <= 0 {
		return est
	}

	ratio, spread := m.PredictRatio(fv)
	if ratio < 0 {
		ratio = 0
	}
	est.Raw = base.Value * ratio
	est.Uncertainty = Uncertainty{Std: base.Value * spread}
	est.UsedModel = true
	est.ModelVersion = m.Version()
	return est
}

// Heuristic is the rolling average times the event multiplier. Products that never
// sold estimate 0.
func (e *Engine) Heuristic(fv *features.FeatureVector) float64 {
	if !fv.HasDemand {
		return 0
	}
	base := fv.VenueRollingMean
	if !base.Present {
		base = fv.AllVenueMean
	}
	return base.Or(0) * e.EventMultiplier(fv.Attendance)
}

// EventMultiplier returns the heuristic multiplier for an attendance bucket.
func (e *Engine) EventMultiplier(b features.AttendanceBucket) float64 {
	switch b {
	case features.AttendanceLarge:
		return e.cfg.LargeEventMultiplier
	case features.AttendanceMedium:
		return e.cfg.MediumEventMultiplier
	}
	return 1
}
