// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package features

import (
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/stallcast/internal/models"
)

// History indexes a seller's transactions by calendar day so rolling statistics can
// be computed for any cutoff date. A sale day is a day the seller recorded at least
// one sale at a venue; on sale days where a product sold nothing, its quantity is 0.
type History struct {
	venueDays map[string][]time.Time // venue -> sorted sale days
	allDays   []time.Time            // sorted days with a sale anywhere
	venueQty  map[qtyKey]float64
	dayQty    map[qtyKey]float64 // venue left empty: product total across venues
	firstSale map[string]time.Time
}

type qtyKey struct {
	product string
	venue   string
	day     int64
}

// NewHistory indexes txns. Transactions may be in any order.
func NewHistory(txns []models.Transaction) *History {
	h := &History{
		venueDays: make(map[string][]time.Time),
		venueQty:  make(map[qtyKey]float64),
		dayQty:    make(map[qtyKey]float64),
		firstSale: make(map[string]time.Time),
	}

	venueSeen := make(map[qtyKey]bool)
	allSeen := make(map[int64]bool)
	for _, t := range txns {
		day := models.Day(t.SoldAt)
		unix := day.Unix()

		h.venueQty[qtyKey{t.ProductID, t.VenueID, unix}] += t.Quantity
		h.dayQty[qtyKey{t.ProductID, "", unix}] += t.Quantity

		if first, ok := h.firstSale[t.ProductID]; !ok || day.Before(first) {
			h.firstSale[t.ProductID] = day
		}
		if k := (qtyKey{venue: t.VenueID, day: unix}); !venueSeen[k] {
			venueSeen[k] = true
			h.venueDays[t.VenueID] = append(h.venueDays[t.VenueID], day)
		}
		if !allSeen[unix] {
			allSeen[unix] = true
			h.allDays = append(h.allDays, day)
		}
	}

	for v := range h.venueDays {
		sortDays(h.venueDays[v])
	}
	sortDays(h.allDays)
	return h
}

func sortDays(days []time.Time) {
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })
}

// Rolling holds the sales statistics for one product as of a cutoff date.
type Rolling struct {
	VenueMean OptFloat
	VenueStd  OptFloat
	VenueDays int
	AllMean   OptFloat
	AllStd    OptFloat
	HasDemand bool
}

// Rolling computes statistics for product at venue using sale days strictly before
// cutoff. The venue window is the last `window` venue sale days on or after the
// product's first sale; the all-venue statistics use every sale day since then.
func (h *History) Rolling(productID, venueID string, cutoff time.Time, window int) Rolling {
	cutoff = models.Day(cutoff)
	first, sold := h.firstSale[productID]
	if !sold || !first.Before(cutoff) {
		return Rolling{}
	}
	r := Rolling{HasDemand: true}

	venueDays := daysBetween(h.venueDays[venueID], first, cutoff)
	if window > 0 && len(venueDays) > window {
		venueDays = venueDays[len(venueDays)-window:]
	}
	if len(venueDays) > 0 {
		qty := make([]float64, len(venueDays))
		for i, d := range venueDays {
			qty[i] = h.venueQty[qtyKey{productID, venueID, d.Unix()}]
		}
		r.VenueDays = len(qty)
		r.VenueMean, r.VenueStd = meanStd(qty)
	}

	allDays := daysBetween(h.allDays, first, cutoff)
	if len(allDays) > 0 {
		qty := make([]float64, len(allDays))
		for i, d := range allDays {
			qty[i] = h.dayQty[qtyKey{productID, "", d.Unix()}]
		}
		r.AllMean, r.AllStd = meanStd(qty)
	}
	return r
}

// Quantity returns what product sold at venue on day.
func (h *History) Quantity(productID, venueID string, day time.Time) float64 {
	return h.venueQty[qtyKey{productID, venueID, models.Day(day).Unix()}]
}

// VenueDays returns the venue's sale days before cutoff.
func (h *History) VenueDays(venueID string, cutoff time.Time) []time.Time {
	return daysBetween(h.venueDays[venueID], time.Time{}, models.Day(cutoff))
}

// Venues returns every venue with at least one sale day.
func (h *History) Venues() []string {
	out := make([]string, 0, len(h.venueDays))
	for v := range h.venueDays {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// FirstSale returns the product's first sale day.
func (h *History) FirstSale(productID string) (time.Time, bool) {
	d, ok := h.firstSale[productID]
	return d, ok
}

// daysBetween returns the sub-slice of sorted days in [from, to).
func daysBetween(days []time.Time, from, to time.Time) []time.Time {
	lo := sort.Search(len(days), func(i int) bool { return !days[i].Before(from) })
	hi := sort.Search(len(days), func(i int) bool { return !days[i].Before(to) })
	if lo >= hi {
		return nil
	}
	return days[lo:hi]
}

func meanStd(xs []float64) (OptFloat, OptFloat) {
	mean := stat.Mean(xs, nil)
	if len(xs) < 2 {
		return Some(mean), Some(0)
	}
	return Some(mean), Some(stat.StdDev(xs, nil))
}
