// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package normalize

import (
	"math"
	"testing"

	"github.com/tomtom215/stallcast/internal/models"
)

func TestQuantity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         float64
		granularity int
		hasDemand   bool
		want        int
	}{
		{"rounds up", 22.3, 1, true, 23},
		{"exact stays", 23, 1, true, 23},
		{"float noise ignored", 20.0000000000004, 1, true, 20},
		{"bulk step", 11, 5, true, 15},
		{"bulk exact", 15, 5, true, 15},
		{"minimum one step", 0.2, 1, true, 1},
		{"minimum one bulk step", 0, 5, true, 5},
		{"zero without demand", 0, 1, false, 0},
		{"negative clamps", -4, 1, false, 0},
		{"nan clamps", math.NaN(), 1, false, 0},
		{"zero granularity", 2.5, 0, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Quantity(tt.raw, tt.granularity, tt.hasDemand)
			if got != tt.want {
				t.Errorf("Quantity(%v, %d, %v) = %d, want %d", tt.raw, tt.granularity, tt.hasDemand, got, tt.want)
			}
		})
	}
}

func TestQuantityIsMultipleOfGranularity(t *testing.T) {
	t.Parallel()

	for _, g := range []int{1, 2, 5, 12} {
		for raw := 0.0; raw < 60; raw += 0.7 {
			q := Quantity(raw, g, raw > 0)
			if q < 0 || q%g != 0 || float64(q) < raw {
				t.Fatalf("Quantity(%v, %d) = %d", raw, g, q)
			}
		}
	}
}

func TestGranularity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		product models.Product
		want    int
	}{
		{models.Product{Category: models.CategoryBakedGoods}, 1},
		{models.Product{Category: models.CategoryBulkProduce}, 5},
		{models.Product{Category: models.CategoryBulkProduce, Granularity: 10}, 10},
		{models.Product{Category: "unknown"}, 1},
	}
	for _, tt := range tests {
		if got := Granularity(&tt.product); got != tt.want {
			t.Errorf("Granularity(%+v) = %d, want %d", tt.product, got, tt.want)
		}
	}
}
