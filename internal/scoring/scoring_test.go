// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package scoring

import (
	"math"
	"testing"

	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/predict"
)

func TestScore(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig())
	tests := []struct {
		name         string
		visits       int
		recency      features.RecencyBucket
		completeness float64
		est          predict.Estimate
		wantConf     float64
		wantBlend    float64
	}{
		{
			name:         "six visits, complete signals, exact model",
			visits:       6,
			recency:      features.RecencyRecent,
			completeness: 1,
			est:          predict.Estimate{Raw: 23, UsedModel: true},
			// 0.6*(0.6*0.75+0.4) + 0.4*1
			wantConf:  0.91,
			wantBlend: 1,
		},
		{
			name:         "cold start is capped",
			visits:       0,
			recency:      features.RecencyNew,
			completeness: 1,
			est:          predict.Estimate{Raw: 10, Heuristic: 10, Uncertainty: predict.HeuristicUncertainty},
			wantConf:     0.3,
			wantBlend:    0.3,
		},
		{
			name:         "stale venue is penalized",
			visits:       8,
			recency:      features.RecencyStale,
			completeness: 1,
			est:          predict.Estimate{Raw: 10, UsedModel: true, Uncertainty: predict.Uncertainty{Std: 5}},
			// suff 0.75 → 0.6*0.75 + 0.4*0.5
			wantConf:  0.65,
			wantBlend: 1,
		},
		{
			name:         "wide uncertainty and thin data blend",
			visits:       4,
			recency:      features.RecencyMid,
			completeness: 0.25,
			est:          predict.Estimate{Raw: 10, UsedModel: true, Uncertainty: predict.Uncertainty{Std: 20}},
			// suff 0.6*0.5+0.4*0.25 = 0.4 → 0.6*0.4 + 0
			wantConf:  0.24,
			wantBlend: 0.24,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fv := features.FeatureVector{VenueVisits: tt.visits, Recency: tt.recency}
			got := s.Score(&tt.est, &fv, tt.completeness)
			if math.Abs(got.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
			if math.Abs(got.BlendWeight-tt.wantBlend) > 1e-9 {
				t.Errorf("BlendWeight = %v, want %v", got.BlendWeight, tt.wantBlend)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("confidence %v out of [0,1]", got.Confidence)
			}
			wantCeiling := 0.0
			if tt.visits == 0 {
				wantCeiling = DefaultConfig().ColdStartCeiling
			}
			if got.Ceiling != wantCeiling {
				t.Errorf("Ceiling = %v, want %v", got.Ceiling, wantCeiling)
			}
		})
	}
}

func TestScoreBounds(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig())
	for visits := 0; visits <= 20; visits += 4 {
		for _, std := range []float64{0, 1, 100, math.Inf(1)} {
			for _, c := range []float64{-1, 0, 0.5, 1, 2} {
				fv := features.FeatureVector{VenueVisits: visits, Recency: features.RecencyStale}
				est := predict.Estimate{Raw: 5, UsedModel: true, Uncertainty: predict.Uncertainty{Std: std}}
				got := s.Score(&est, &fv, c)
				if got.Confidence < 0 || got.Confidence > 1 {
					t.Fatalf("visits=%d std=%v completeness=%v: confidence %v", visits, std, c, got.Confidence)
				}
				if visits == 0 && got.Confidence > 0.3 {
					t.Fatalf("cold start confidence %v above ceiling", got.Confidence)
				}
			}
		}
	}
}

func TestBlend(t *testing.T) {
	t.Parallel()

	est := predict.Estimate{Raw: 20, Heuristic: 10, UsedModel: true}
	if got := Blend(&est, 0.25); got != 12.5 {
		t.Errorf("Blend = %v, want 12.5", got)
	}
	if got := Blend(&est, 1); got != 20 {
		t.Errorf("Blend(1) = %v, want 20", got)
	}
	heuristic := predict.Estimate{Raw: 10, Heuristic: 10}
	if got := Blend(&heuristic, 0.1); got != 10 {
		t.Errorf("heuristic Blend = %v, want 10", got)
	}
}
