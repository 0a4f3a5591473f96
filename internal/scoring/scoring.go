// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package scoring turns model uncertainty and data sufficiency into a confidence in
// [0,1] and decides how far to blend the model estimate toward the heuristic.
package scoring

import (
	"math"

	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/predict"
)

// Config tunes the scorer.
type Config struct {
	// VisitSaturation is the visit count at which visit evidence is complete.
	VisitSaturation int
	// UncertaintyWeight is the share of confidence driven by model certainty; the
	// rest comes from data sufficiency.
	UncertaintyWeight float64
	// StalePenalty is subtracted from sufficiency when the last visit was more than
	// features.StaleDays ago.
	StalePenalty float64
	// ColdStartCeiling caps confidence for a venue with no prior visits.
	ColdStartCeiling float64
	// LowConfidenceThreshold is the confidence below which estimates are blended.
	LowConfidenceThreshold float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		VisitSaturation:        8,
		UncertaintyWeight:      0.4,
		StalePenalty:           0.25,
		ColdStartCeiling:       0.3,
		LowConfidenceThreshold: 0.5,
	}
}

// heuristicCertainty stands in for model certainty on the heuristic path.
const heuristicCertainty = 0.5

// Score is the scorer's output.
type Score struct {
	Confidence  float64
	BlendWeight float64 // weight of the model estimate; 1 means no blending
	Sufficiency float64
	ColdStart   bool
	Ceiling     float64 // confidence cap applied on a cold start, 0 otherwise
	Stale       bool
}

// Scorer computes confidence scores.
type Scorer struct {
	cfg Config
}

// New creates a scorer.
func New(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.VisitSaturation <= 0 {
		cfg.VisitSaturation = def.VisitSaturation
	}
	if cfg.UncertaintyWeight < 0 || cfg.UncertaintyWeight > 1 {
		cfg.UncertaintyWeight = def.UncertaintyWeight
	}
	return &Scorer{cfg: cfg}
}

// Sufficiency scores how much evidence stands behind fv, in [0,1]. Visits carry 60%
// and signal completeness 40%; a stale venue loses StalePenalty.
func (s *Scorer) Sufficiency(fv *features.FeatureVector, completeness float64) float64 {
	visits := math.Min(float64(fv.VenueVisits)/float64(s.cfg.VisitSaturation), 1)
	suff := 0.6*visits + 0.4*clamp01(completeness)
	if fv.Recency == features.RecencyStale {
		suff -= s.cfg.StalePenalty
	}
	return clamp01(suff)
}

// Score computes confidence and blend weight for one estimate.
func (s *Scorer) Score(est *predict.Estimate, fv *features.FeatureVector, completeness float64) Score {
	suff := s.Sufficiency(fv, completeness)

	certainty := heuristicCertainty
	if !est.Uncertainty.Heuristic {
		rel := est.Uncertainty.Std / math.Max(est.Raw, 1)
		certainty = 1 - clamp01(rel)
	}

	w := s.cfg.UncertaintyWeight
	conf := (1-w)*suff + w*certainty

	sc := Score{Sufficiency: suff, ColdStart: fv.ColdStart(), Stale: fv.Recency == features.RecencyStale}
	if sc.ColdStart {
		sc.Ceiling = s.cfg.ColdStartCeiling
		conf = math.Min(conf, sc.Ceiling)
	}
	sc.Confidence = clamp01(conf)

	sc.BlendWeight = 1
	if sc.Confidence < s.cfg.LowConfidenceThreshold {
		sc.BlendWeight = sc.Confidence
	}
	return sc
}

// Blend returns the quantity to normalize: weight·model + (1−weight)·heuristic.
func Blend(est *predict.Estimate, weight float64) float64 {
	if !est.UsedModel {
		return est.Heuristic
	}
	return weight*est.Raw + (1-weight)*est.Heuristic
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
