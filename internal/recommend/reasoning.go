// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package recommend

import (
	"fmt"

	"github.com/tomtom215/stallcast/internal/features"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/predict"
	"github.com/tomtom215/stallcast/internal/scoring"
	"github.com/tomtom215/stallcast/internal/signals"
)

// signalFactors describes the shared inputs of a set: one factor per signal, naming
// the rung that answered.
func signalFactors(b *features.Bundle) []models.ReasoningFactor {
	factor := func(name, detail string) models.ReasoningFactor {
		f := models.ReasoningFactor{Name: name, Source: b.Meta.Sources[name], Detail: detail}
		if b.Meta.IsDegraded(name) {
			f.Degraded = true
			f.Detail += " (" + b.Meta.Degraded[name] + ")"
		}
		return f
	}

	weather := "no forecast"
	if w := b.Weather; w != nil {
		weather = fmt.Sprintf("%s, %.0f°C, %.0f%% precipitation", w.Condition, w.TemperatureC, w.PrecipitationProb*100)
	}

	events := "no nearby events"
	if len(b.Events) > 0 {
		largest := b.Events[0]
		for _, ev := range b.Events[1:] {
			if ev.ExpectedAttendance > largest.ExpectedAttendance {
				largest = ev
			}
		}
		events = fmt.Sprintf("%d nearby, largest %s (%d expected)", len(b.Events), largest.Name, largest.ExpectedAttendance)
	}

	venue := "first visit"
	if v := b.Venue; v != nil && !v.IsNew() {
		venue = fmt.Sprintf("%d prior visits", v.AppearanceCount)
	}

	return []models.ReasoningFactor{
		factor(signals.SignalTransactions, fmt.Sprintf("%d products", len(b.Products))),
		factor(signals.SignalWeather, weather),
		factor(signals.SignalEvents, events),
		factor(signals.SignalVenue, venue),
	}
}

// productFactors explains one recommendation.
func productFactors(fv *features.FeatureVector, est *predict.Estimate, score *scoring.Score, pe *predict.Engine) []models.ReasoningFactor {
	var out []models.ReasoningFactor

	switch {
	case !fv.HasDemand:
		out = append(out, models.ReasoningFactor{
			Name: models.FactorNoHistory, Source: signals.SourceStore, Detail: "no recorded sales",
		})
	case fv.VenueRollingMean.Present:
		out = append(out, models.ReasoningFactor{
			Name: models.FactorTransactions, Source: signals.SourceStore,
			Detail: fmt.Sprintf("%.1f per market day over the last %d here", fv.VenueRollingMean.Value, fv.VenueSaleDays),
		})
	default:
		out = append(out, models.ReasoningFactor{
			Name: models.FactorTransactions, Source: signals.SourceStore,
			Detail: fmt.Sprintf("%.1f per market day across all venues", fv.AllVenueMean.Or(0)),
		})
	}

	if fv.EventNearby {
		if m := pe.EventMultiplier(fv.Attendance); m > 1 {
			out = append(out, models.ReasoningFactor{
				Name: models.FactorEvents, Source: signals.SignalEvents,
				Detail: fmt.Sprintf("%s event nearby, ×%.1f", fv.Attendance, m),
			})
		}
	}

	if fv.HasSeason {
		detail := "in season"
		if !fv.InSeason {
			detail = "out of season"
		}
		out = append(out, models.ReasoningFactor{Name: models.FactorSeasonality, Source: "catalog", Detail: detail})
	}

	if score.ColdStart {
		out = append(out, models.ReasoningFactor{
			Name: models.FactorColdStart, Source: signals.SignalVenue,
			Detail: fmt.Sprintf("first appearance at this venue, confidence %.2f (capped at %.2f)", score.Confidence, score.Ceiling),
		})
	}
	if score.Stale {
		out = append(out, models.ReasoningFactor{
			Name: models.FactorStaleVenue, Source: signals.SignalVenue,
			Detail: fmt.Sprintf("last visit %s ago", staleAge(fv)),
		})
	}

	switch {
	case !est.UsedModel:
		out = append(out, models.ReasoningFactor{
			Name: models.FactorHeuristic, Source: "heuristic", Detail: "rolling average × event multiplier",
		})
	case score.BlendWeight < 1:
		out = append(out, models.ReasoningFactor{
			Name: models.FactorBlended, Source: fmt.Sprintf("model v%d", est.ModelVersion),
			Detail: fmt.Sprintf("%.0f%% model, %.0f%% heuristic", score.BlendWeight*100, (1-score.BlendWeight)*100),
		})
	}
	return out
}

func staleAge(fv *features.FeatureVector) string {
	if !fv.DaysSinceLast.Present {
		return "unknown"
	}
	return fmt.Sprintf("%.0f days", fv.DaysSinceLast.Value)
}
