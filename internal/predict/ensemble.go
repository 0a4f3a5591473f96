// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package predict

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/stallcast/internal/features"
)

// ErrNoTrainingData is returned when no row has a usable rolling mean.
var ErrNoTrainingData = errors.New("no usable training rows")

// Row is one historical (product, venue, date) observation.
type Row struct {
	Vector features.FeatureVector
	Actual float64
	Date   time.Time
}

// usable reports whether the row can teach a ratio.
func (r *Row) usable() bool {
	return r.Vector.VenueRollingMean.Present && r.Vector.VenueRollingMean.Value > 0
}

// TrainConfig controls ensemble training.
type TrainConfig struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
}

// DefaultTrainConfig returns the standard ensemble shape.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Trees: 25, MaxDepth: 6, MinLeaf: 3, Seed: 42}
}

// Ensemble is a bagged set of regression trees over the encoded context features.
type Ensemble struct {
	ModelVersion int64     `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Rows         int       `json:"rows"`
	Features     []string  `json:"features"`
	Trees        []Tree    `json:"trees"`
}

// Version implements Model.
func (e *Ensemble) Version() int64 { return e.ModelVersion }

// PredictRatio implements Model. Each tree's ratio is clamped at 0 before averaging.
func (e *Ensemble) PredictRatio(fv *features.FeatureVector) (mean, spread float64) {
	x := Encode(fv)
	ratios := make([]float64, len(e.Trees))
	for i := range e.Trees {
		ratios[i] = math.Max(0, e.Trees[i].predict(x))
	}
	mean = stat.Mean(ratios, nil)
	if len(ratios) > 1 {
		spread = stat.PopStdDev(ratios, nil)
	}
	return mean, spread
}

// Train fits an ensemble to rows. Training is deterministic for a given seed and row
// order. Rows without a positive venue rolling mean are skipped.
func Train(rows []Row, cfg TrainConfig) (*Ensemble, error) {
	def := DefaultTrainConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MinLeaf <= 0 {
		cfg.MinLeaf = def.MinLeaf
	}

	var (
		x [][]float64
		y []float64
	)
	for i := range rows {
		if !rows[i].usable() {
			continue
		}
		x = append(x, Encode(&rows[i].Vector))
		y = append(y, math.Max(0, rows[i].Actual)/rows[i].Vector.VenueRollingMean.Value)
	}
	if len(y) == 0 {
		return nil, ErrNoTrainingData
	}

	params := treeParams{maxDepth: cfg.MaxDepth, minLeaf: cfg.MinLeaf}
	trees := make([]Tree, cfg.Trees)
	for t := range trees {
		rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(t))) //nolint:gosec // bootstrap sampling, not security
		sample := make([]int, len(y))
		for i := range sample {
			sample[i] = rng.IntN(len(y))
		}
		trees[t] = growTree(x, y, sample, params)
	}

	return &Ensemble{
		TrainedAt: time.Now().UTC(),
		Rows:      len(y),
		Features:  FeatureNames,
		Trees:     trees,
	}, nil
}

// MAE is the mean absolute error, in product units, of the engine's estimate on the
// given rows when using model m. Rows outside the model path are scored with the
// heuristic, as they would be at request time. ok is false when rows is empty.
func (e *Engine) MAE(m Model, rows []Row) (mae float64, ok bool) {
	errs := make([]float64, 0, len(rows))
	for i := range rows {
		est := e.Predict(m, &rows[i].Vector)
		errs = append(errs, math.Abs(est.Raw-rows[i].Actual))
	}
	if len(errs) == 0 {
		return 0, false
	}
	return stat.Mean(errs, nil), true
}

// validateEnsemble checks a decoded ensemble against the current encoding.
func validateEnsemble(e *Ensemble) error {
	if len(e.Trees) == 0 {
		return errors.New("ensemble has no trees")
	}
	if len(e.Features) != len(FeatureNames) {
		return fmt.Errorf("ensemble encodes %d features, want %d", len(e.Features), len(FeatureNames))
	}
	for i, name := range FeatureNames {
		if e.Features[i] != name {
			return fmt.Errorf("feature %d is %q, want %q", i, e.Features[i], name)
		}
	}
	for t := range e.Trees {
		nodes := e.Trees[t].Nodes
		if len(nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i := range nodes {
			n := nodes[i]
			if n.Left == 0 {
				continue
			}
			if int(n.Left) >= len(nodes) || int(n.Right) >= len(nodes) || n.Left <= int32(i) || n.Right <= int32(i) ||
				n.Feature < 0 || n.Feature >= len(FeatureNames) {
				return fmt.Errorf("tree %d node %d is malformed", t, i)
			}
		}
	}
	return nil
}
