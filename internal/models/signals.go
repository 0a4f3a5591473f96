// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package models

import "time"

// WeatherCondition is the categorical forecast condition.
type WeatherCondition string

// Weather conditions. ConditionUnknown is the missing marker.
const (
	ConditionUnknown WeatherCondition = "unknown"
	ConditionClear   WeatherCondition = "clear"
	ConditionCloudy  WeatherCondition = "cloudy"
	ConditionRain    WeatherCondition = "rain"
	ConditionSnow    WeatherCondition = "snow"
	ConditionStorm   WeatherCondition = "storm"
)

// WeatherConditions lists the known conditions in feature-encoding order.
var WeatherConditions = []WeatherCondition{
	ConditionClear, ConditionCloudy, ConditionRain, ConditionSnow, ConditionStorm,
}

// NormalizeCondition maps provider strings onto the known set.
func NormalizeCondition(s string) WeatherCondition {
	switch WeatherCondition(s) {
	case ConditionClear, ConditionCloudy, ConditionRain, ConditionSnow, ConditionStorm:
		return WeatherCondition(s)
	}
	switch s {
	case "sunny", "fair":
		return ConditionClear
	case "overcast", "partly_cloudy", "fog":
		return ConditionCloudy
	case "drizzle", "showers", "rainy":
		return ConditionRain
	case "thunderstorm":
		return ConditionStorm
	case "sleet":
		return ConditionSnow
	}
	return ConditionUnknown
}

// WeatherSignal is a forecast (or its fallback) for one location and date.
type WeatherSignal struct {
	TemperatureC      float64          `json:"temperature_c"`
	PrecipitationProb float64          `json:"precipitation_prob"` // 0..1
	Condition         WeatherCondition `json:"condition"`
	Source            string           `json:"source,omitempty"`
	FetchedAt         time.Time        `json:"fetched_at"`
}

// EventSignal is a local event detected near a venue.
type EventSignal struct {
	Name               string    `json:"name"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Date               time.Time `json:"date"`
	ExpectedAttendance int       `json:"expected_attendance"`
	DistanceKm         float64   `json:"distance_km"`
}
