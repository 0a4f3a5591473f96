// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package models

import "time"

// Reasoning factor names.
const (
	FactorTransactions = "transactions"
	FactorWeather      = "weather"
	FactorEvents       = "events"
	FactorVenue        = "venue"
	FactorSeasonality  = "seasonality"
	FactorColdStart    = "cold_start"
	FactorStaleVenue   = "stale_venue"
	FactorHeuristic    = "heuristic"
	FactorBlended      = "blended"
	FactorNoHistory    = "no_history"
)

// ReasoningFactor explains one input to a recommendation. Degraded factors name the
// fallback source that replaced the primary one.
type ReasoningFactor struct {
	Name     string `json:"name"`
	Source   string `json:"source"`
	Degraded bool   `json:"degraded"`
	Detail   string `json:"detail,omitempty"`
}

// Estimation paths reported per recommendation.
const (
	PathModel     = "model"
	PathHeuristic = "heuristic"
	PathBlended   = "blended"
	PathColdStart = "cold_start"
)

// Recommendation is the suggestion for one product at one appearance.
type Recommendation struct {
	ProductID          string            `json:"product_id"`
	ProductName        string            `json:"product_name"`
	Category           ProductCategory   `json:"category"`
	Unit               string            `json:"unit"`
	Granularity        int               `json:"granularity"`
	RawEstimate        float64           `json:"raw_estimate"`
	ModelEstimate      float64           `json:"model_estimate"`
	HeuristicEstimate  float64           `json:"heuristic_estimate"`
	NormalizedQuantity int               `json:"normalized_quantity"`
	Confidence         float64           `json:"confidence"`
	BlendWeight        float64           `json:"blend_weight"`
	Path               string            `json:"path"`
	Factors            []ReasoningFactor `json:"factors"`
}

// RecommendationSet is everything returned for one (seller, venue, date).
// InsufficientData marks a typed low-confidence result rather than a failure.
type RecommendationSet struct {
	SellerID         string            `json:"seller_id"`
	VenueID          string            `json:"venue_id"`
	Date             string            `json:"date"`
	AppearanceID     string            `json:"appearance_id,omitempty"`
	ModelVersion     int64             `json:"model_version"`
	GeneratedAt      time.Time         `json:"generated_at"`
	InsufficientData bool              `json:"insufficient_data"`
	Factors          []ReasoningFactor `json:"factors"`
	Recommendations  []Recommendation  `json:"recommendations"`
}

// Feedback is the outcome recorded after a market day, at most once per
// (appearance, product).
type Feedback struct {
	ID           string    `json:"id"`
	AppearanceID string    `json:"appearance_id"`
	ProductID    string    `json:"product_id"`
	SellerID     string    `json:"seller_id"`
	VenueID      string    `json:"venue_id"`
	Date         time.Time `json:"date"`
	Recommended  int       `json:"recommended"`
	Actual       float64   `json:"actual"`
	Variance     float64   `json:"variance"` // actual - recommended
	Accurate     bool      `json:"accurate"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// TrainedModel describes a persisted model version. Artifact holds the encoded
// ensemble and is omitted from API responses.
type TrainedModel struct {
	Version        int64     `json:"version"`
	Active         bool      `json:"active"`
	TrainedAt      time.Time `json:"trained_at"`
	TrainingCutoff time.Time `json:"training_cutoff"`
	TrainingRows   int       `json:"training_rows"`
	HoldoutMAE     float64   `json:"holdout_mae"`
	Checksum       string    `json:"checksum"`
	Artifact       []byte    `json:"-"`
}

// RegressionAlert is recorded when a retrained candidate is rejected.
type RegressionAlert struct {
	ID               string    `json:"id"`
	CandidateVersion int64     `json:"candidate_version"`
	ActiveVersion    int64     `json:"active_version"`
	CandidateError   float64   `json:"candidate_error"`
	ActiveError      float64   `json:"active_error"`
	Tolerance        float64   `json:"tolerance"`
	Message          string    `json:"message"`
	CreatedAt        time.Time `json:"created_at"`
}
