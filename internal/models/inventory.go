// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package models holds the persisted and wire-level types shared across Stallcast.
package models

import (
	"time"
)

// DateLayout is the canonical calendar-date encoding used in keys and the API.
const DateLayout = "2006-01-02"

// ProductCategory drives the rounding policy applied to a product.
type ProductCategory string

// Product categories.
const (
	CategoryBakedGoods   ProductCategory = "baked_goods"
	CategoryBulkProduce  ProductCategory = "bulk_produce"
	CategoryProduce      ProductCategory = "produce"
	CategoryPreparedFood ProductCategory = "prepared_food"
	CategoryCrafts       ProductCategory = "crafts"
	CategoryOther        ProductCategory = "other"
)

// Product is something a seller brings to market. Products are soft-deleted once sold
// against; DeletedAt is set instead of removing the row.
type Product struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Name        string          `json:"name"`
	Category    ProductCategory `json:"category"`
	Unit        string          `json:"unit"`        // unit, dozen, pound, ...
	Granularity int             `json:"granularity"` // 0 = category default
	// SeasonStartMonth and SeasonEndMonth are 1-12; 0 means the product is sold all year.
	// Windows may wrap the year end (e.g. 11 -> 2).
	SeasonStartMonth int        `json:"season_start_month,omitempty"`
	SeasonEndMonth   int        `json:"season_end_month,omitempty"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// InSeason reports whether month m falls inside the product's seasonality window.
func (p *Product) InSeason(m time.Month) bool {
	if p.SeasonStartMonth == 0 || p.SeasonEndMonth == 0 {
		return true
	}
	month := int(m)
	if p.SeasonStartMonth <= p.SeasonEndMonth {
		return month >= p.SeasonStartMonth && month <= p.SeasonEndMonth
	}
	return month >= p.SeasonStartMonth || month <= p.SeasonEndMonth
}

// HasSeason reports whether a seasonality window is configured.
func (p *Product) HasSeason() bool {
	return p.SeasonStartMonth != 0 && p.SeasonEndMonth != 0
}

// Venue is a market location shared across sellers.
type Venue struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// VenueProfile is a seller's history at a venue. A seller who never sold at the venue
// gets a profile with AppearanceCount 0 and nil FirstSeen/LastSeen.
type VenueProfile struct {
	VenueID         string     `json:"venue_id"`
	SellerID        string     `json:"seller_id"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	FirstSeen       *time.Time `json:"first_seen,omitempty"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	AppearanceCount int        `json:"appearance_count"`
}

// IsNew reports whether the seller has no history at the venue.
func (v *VenueProfile) IsNew() bool {
	return v.AppearanceCount == 0
}

// AppearanceStatus is the lifecycle state of an appearance.
type AppearanceStatus string

// Appearance statuses.
const (
	AppearancePlanned   AppearanceStatus = "planned"
	AppearanceCompleted AppearanceStatus = "completed"
	AppearanceCancelled AppearanceStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s AppearanceStatus) Valid() bool {
	switch s {
	case AppearancePlanned, AppearanceCompleted, AppearanceCancelled:
		return true
	}
	return false
}

// Appearance is one seller at one venue on one date.
type Appearance struct {
	ID        string           `json:"id"`
	SellerID  string           `json:"seller_id"`
	VenueID   string           `json:"venue_id"`
	Date      time.Time        `json:"date"`
	Status    AppearanceStatus `json:"status"`
	Weather   *WeatherSignal   `json:"weather,omitempty"`
	Events    []EventSignal    `json:"events,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Transaction is a single recorded sale.
type Transaction struct {
	ID        string    `json:"id"`
	SellerID  string    `json:"seller_id"`
	ProductID string    `json:"product_id"`
	VenueID   string    `json:"venue_id"`
	Quantity  float64   `json:"quantity"`
	SoldAt    time.Time `json:"sold_at"`
}

// TransactionQuery filters the transaction history. Empty ProductID/VenueID match all.
type TransactionQuery struct {
	SellerID  string
	ProductID string
	VenueID   string
	From      time.Time
	To        time.Time
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
