// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package predict

import (
	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/models"
)

// maxVisitsFeature caps the venue visit count so long-standing venues share a bucket.
const maxVisitsFeature = 52

var categories = []models.ProductCategory{
	models.CategoryBakedGoods,
	models.CategoryBulkProduce,
	models.CategoryProduce,
	models.CategoryPreparedFood,
	models.CategoryCrafts,
	models.CategoryOther,
}

// FeatureNames lists the encoded context columns in order. The rolling means are
// deliberately absent: they scale the ratio instead of feeding the trees.
var FeatureNames = func() []string {
	names := []string{
		"temperature_present", "temperature_c",
		"precip_present", "precip_prob",
	}
	for _, c := range models.WeatherConditions {
		names = append(names, "condition_"+string(c))
	}
	names = append(names,
		"event_nearby", "attendance",
		"has_season", "in_season",
		"recency", "venue_visits",
		"day_of_week", "month",
	)
	for _, c := range categories {
		names = append(names, "category_"+string(c))
	}
	return names
}()

// Encode maps the context fields of fv to a dense row. Missing weather values are
// encoded as 0 with their presence column set to 0 so trees can split on absence.
func Encode(fv *features.FeatureVector) []float64 {
	x := make([]float64, 0, len(FeatureNames))
	x = append(x,
		flag(fv.TemperatureC.Present), fv.TemperatureC.Or(0),
		flag(fv.PrecipProb.Present), fv.PrecipProb.Or(0),
	)
	for _, c := range models.WeatherConditions {
		x = append(x, flag(fv.Condition == c))
	}

	visits := fv.VenueVisits
	if visits > maxVisitsFeature {
		visits = maxVisitsFeature
	}
	x = append(x,
		flag(fv.EventNearby), float64(fv.Attendance),
		flag(fv.HasSeason), flag(fv.InSeason),
		float64(fv.Recency), float64(visits),
		float64(fv.DayOfWeek), float64(fv.Month),
	)
	for _, c := range categories {
		x = append(x, flag(fv.Category == c))
	}
	return x
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
