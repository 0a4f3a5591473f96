// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package metrics registers the Prometheus collectors exported on /metrics.
//
// Collectors are package-level promauto globals; call sites use the Record*
// helpers so label values stay consistent.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stallcast_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_db_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stallcast_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Recommendation pipeline

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stallcast_recommendation_duration_seconds",
			Help:    "Time to produce a recommendation set (cache misses only)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
	)

	RecommendationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stallcast_recommendation_confidence",
			Help:    "Distribution of per-product confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	RecommendationPath = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_recommendation_path_total",
			Help: "Per-product predictions by estimation path",
		},
		[]string{"path"}, // model, heuristic, blended, cold_start
	)

	RecommendationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_recommendation_errors_total",
			Help: "Recommendation requests that failed, by error kind",
		},
		[]string{"kind"},
	)

	// Signal adapters

	SignalFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_signal_fetches_total",
			Help: "Signal adapter results by source and ladder rung",
		},
		[]string{"source", "rung"}, // rung: live, cached, seasonal, none, empty, store
	)

	SignalFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stallcast_signal_fetch_duration_seconds",
			Help:    "Signal adapter latency including fallbacks",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2},
		},
		[]string{"source"},
	)

	// Cache

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_cache_hits_total",
			Help: "Recommendation cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_cache_misses_total",
			Help: "Recommendation cache misses",
		},
		[]string{"backend"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_cache_invalidations_total",
			Help: "Recommendation cache invalidations by reason",
		},
		[]string{"reason"},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stallcast_cache_entries",
			Help: "Entries held by the in-memory recommendation cache",
		},
	)

	// Circuit breakers

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stallcast_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_circuit_breaker_requests_total",
			Help: "Requests through circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Feedback

	FeedbackSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_feedback_submissions_total",
			Help: "Feedback submissions by outcome",
		},
		[]string{"outcome"}, // accepted, conflict, invalid
	)

	FeedbackAccuracy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_feedback_accuracy_total",
			Help: "Accepted feedback split by whether the recommendation was accurate",
		},
		[]string{"accurate"},
	)

	// Retraining

	RetrainRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_retrain_runs_total",
			Help: "Retraining runs by outcome",
		},
		[]string{"outcome"}, // promoted, rolled_back, failed, coalesced
	)

	RetrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stallcast_retrain_duration_seconds",
			Help:    "Wall time of retraining runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
	)

	RetrainState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stallcast_retrain_state",
			Help: "Scheduler state (0=idle, 1=training, 2=validating, 3=promoting, 4=rolling_back)",
		},
	)

	ActiveModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stallcast_active_model_version",
			Help: "Version number of the active prediction model (0 = none)",
		},
	)

	ModelHoldoutError = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stallcast_model_holdout_error",
			Help: "Held-out mean absolute error of the last validation, by role",
		},
		[]string{"role"}, // candidate, active
	)

	ModelRegressions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stallcast_model_regressions_total",
			Help: "Retraining runs rejected because the candidate regressed",
		},
	)

	// Event bus

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stallcast_events_published_total",
			Help: "Data-change events published on the internal bus",
		},
		[]string{"topic"},
	)
)

// RecordDBQuery records a DuckDB query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSignalFetch records one adapter call and the ladder rung that served it.
func RecordSignalFetch(source, rung string, duration time.Duration) {
	SignalFetches.WithLabelValues(source, rung).Inc()
	SignalFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(backend).Inc()
		return
	}
	CacheMisses.WithLabelValues(backend).Inc()
}

// RecordPrediction records one per-product prediction.
func RecordPrediction(path string, confidence float64) {
	RecommendationPath.WithLabelValues(path).Inc()
	RecommendationConfidence.Observe(confidence)
}

// RecordFeedback records a feedback submission outcome.
func RecordFeedback(outcome string, accurate bool) {
	FeedbackSubmissions.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		FeedbackAccuracy.WithLabelValues(strconv.FormatBool(accurate)).Inc()
	}
}

// RecordRetrain records a finished retraining run.
func RecordRetrain(outcome string, duration time.Duration) {
	RetrainRuns.WithLabelValues(outcome).Inc()
	if duration > 0 {
		RetrainDuration.Observe(duration.Seconds())
	}
	if outcome == "rolled_back" {
		ModelRegressions.Inc()
	}
}
