// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package features turns adapter outputs into fixed-shape feature vectors.
//
// Every optional field carries an explicit presence flag; a missing temperature is
// never encoded as 0 degrees. The vector has the same fields whether or not an
// adapter degraded; degradation is reported in Metadata.
package features

import (
	"time"

	"github.com/tomtom215/stallcast/internal/models"
)

// OptFloat is a float with an explicit missing marker.
type OptFloat struct {
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// Some returns a present value.
func Some(v float64) OptFloat { return OptFloat{Value: v, Present: true} }

// Missing is the absent value.
var Missing = OptFloat{}

// Or returns the value, or def when missing.
func (o OptFloat) Or(def float64) float64 {
	if o.Present {
		return o.Value
	}
	return def
}

// AttendanceBucket classifies the largest nearby event.
type AttendanceBucket int

// Attendance buckets.
const (
	AttendanceNone AttendanceBucket = iota
	AttendanceSmall
	AttendanceMedium
	AttendanceLarge
)

func (b AttendanceBucket) String() string {
	switch b {
	case AttendanceSmall:
		return "small"
	case AttendanceMedium:
		return "medium"
	case AttendanceLarge:
		return "large"
	}
	return "none"
}

// RecencyBucket classifies days since the seller last sold at the venue.
type RecencyBucket int

// Recency buckets. RecencyNew means the seller has never sold at the venue.
const (
	RecencyNew RecencyBucket = iota
	RecencyRecent
	RecencyMid
	RecencyStale
)

func (r RecencyBucket) String() string {
	switch r {
	case RecencyRecent:
		return "<30d"
	case RecencyMid:
		return "30-180d"
	case RecencyStale:
		return ">180d"
	}
	return "new"
}

// Recency bucket boundaries in days.
const (
	RecentDays = 30
	StaleDays  = 180
)

// BucketRecency maps days since the last visit to a bucket.
func BucketRecency(days int) RecencyBucket {
	switch {
	case days < RecentDays:
		return RecencyRecent
	case days <= StaleDays:
		return RecencyMid
	default:
		return RecencyStale
	}
}

// FeatureVector is the model input for one (product, venue, date).
type FeatureVector struct {
	ProductID string                 `json:"product_id"`
	Category  models.ProductCategory `json:"category"`

	// Rolling sales of the product at this venue over the last N sale days, and
	// across every venue. Missing when there is no history to average.
	VenueRollingMean OptFloat `json:"venue_rolling_mean"`
	VenueRollingStd  OptFloat `json:"venue_rolling_std"`
	VenueSaleDays    int      `json:"venue_sale_days"`
	AllVenueMean     OptFloat `json:"all_venue_mean"`
	AllVenueStd      OptFloat `json:"all_venue_std"`
	HasDemand        bool     `json:"has_demand"`

	TemperatureC OptFloat                `json:"temperature_c"`
	PrecipProb   OptFloat                `json:"precip_prob"`
	Condition    models.WeatherCondition `json:"condition"` // ConditionUnknown when missing

	EventNearby bool             `json:"event_nearby"`
	Attendance  AttendanceBucket `json:"attendance"`

	HasSeason bool `json:"has_season"`
	InSeason  bool `json:"in_season"`

	VenueVisits   int           `json:"venue_visits"`
	Recency       RecencyBucket `json:"recency"`
	DaysSinceLast OptFloat      `json:"days_since_last"`

	DayOfWeek time.Weekday `json:"day_of_week"`
	Month     time.Month   `json:"month"`
}

// ColdStart reports whether the seller has never sold at the venue.
func (f *FeatureVector) ColdStart() bool {
	return f.VenueVisits == 0
}

// Metadata describes how the signals behind a set of vectors were obtained.
type Metadata struct {
	// Sources maps each signal to the ladder rung that answered.
	Sources map[string]string `json:"sources"`
	// Degraded maps each degraded signal to its reason.
	Degraded map[string]string `json:"degraded,omitempty"`
	// Completeness is the fraction of signal-derived fields that came from a
	// non-degraded source, in [0,1].
	Completeness float64 `json:"completeness"`
}

// IsDegraded reports whether signal fell back.
func (m *Metadata) IsDegraded(signal string) bool {
	_, ok := m.Degraded[signal]
	return ok
}

// AttendanceThresholds split event sizes into buckets.
type AttendanceThresholds struct {
	Large  int
	Medium int
}

// Bucket classifies an attendance figure.
func (t AttendanceThresholds) Bucket(attendance int) AttendanceBucket {
	switch {
	case attendance <= 0:
		return AttendanceNone
	case attendance >= t.Large:
		return AttendanceLarge
	case attendance >= t.Medium:
		return AttendanceMedium
	default:
		return AttendanceSmall
	}
}
