// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package normalize rounds raw estimates up to quantities a seller can actually
// bring: non-negative multiples of the product's unit granularity.
package normalize

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/stallcast/internal/models"
)

// rawPrecision drops float noise (e.g. 20.000000000004) before taking the ceiling.
const rawPrecision = 6

// categoryGranularity is the default rounding step per category.
var categoryGranularity = map[models.ProductCategory]int{
	models.CategoryBakedGoods:   1,
	models.CategoryBulkProduce:  5,
	models.CategoryProduce:      1,
	models.CategoryPreparedFood: 1,
	models.CategoryCrafts:       1,
	models.CategoryOther:        1,
}

// Granularity returns the rounding step for p: its own setting, else the category
// default, else 1.
func Granularity(p *models.Product) int {
	if p.Granularity > 0 {
		return p.Granularity
	}
	if g, ok := categoryGranularity[p.Category]; ok {
		return g
	}
	return 1
}

// Quantity rounds raw up to the next multiple of granularity. Negative, NaN and
// infinite input yields 0. A product with historical demand never rounds below one
// step.
func Quantity(raw float64, granularity int, hasDemand bool) int {
	if granularity <= 0 {
		granularity = 1
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		raw = 0
	}

	step := decimal.NewFromInt(int64(granularity))
	steps := decimal.NewFromFloat(raw).Round(rawPrecision).Div(step).Ceil()
	qty := int(steps.Mul(step).IntPart())

	if hasDemand && qty < granularity {
		qty = granularity
	}
	return qty
}

// Product normalizes raw for p.
func Product(p *models.Product, raw float64, hasDemand bool) int {
	return Quantity(raw, Granularity(p), hasDemand)
}
