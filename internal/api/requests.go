// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/validation"
)

// maxBodyBytes bounds request bodies. A transaction batch is the largest body.
const maxBodyBytes = 4 << 20

// Request bodies and query parameters. Dates are YYYY-MM-DD calendar days.

// RecommendationQuery is GET /recommendations.
type RecommendationQuery struct {
	VenueID string `json:"venue_id" validate:"required,max=128"`
	Date    string `json:"date" validate:"required,isodate"`
}

// InvalidateRequest is POST /recommendations/invalidate.
type InvalidateRequest struct {
	VenueID string `json:"venue_id" validate:"required,max=128"`
	Date    string `json:"date" validate:"required,isodate"`
}

// FeedbackRequest is POST /feedback. Actual is a pointer so that selling nothing
// is distinguishable from omitting the field.
type FeedbackRequest struct {
	AppearanceID string   `json:"appearance_id" validate:"required,max=128"`
	ProductID    string   `json:"product_id" validate:"required,max=128"`
	Actual       *float64 `json:"actual" validate:"required,gte=0"`
}

// AppearanceRequest is POST /appearances.
type AppearanceRequest struct {
	VenueID string `json:"venue_id" validate:"required,max=128"`
	Date    string `json:"date" validate:"required,isodate"`
}

// AppearanceStatusRequest is PATCH /appearances/{id}/status.
type AppearanceStatusRequest struct {
	Status string `json:"status" validate:"required,appearance_status"`
}

// TransactionRequest is one sale in a POST /transactions batch.
type TransactionRequest struct {
	ID        string    `json:"id" validate:"omitempty,max=128"`
	ProductID string    `json:"product_id" validate:"required,max=128"`
	VenueID   string    `json:"venue_id" validate:"required,max=128"`
	Quantity  float64   `json:"quantity" validate:"gte=0"`
	SoldAt    time.Time `json:"sold_at" validate:"required"`
}

// TransactionBatchRequest is POST /transactions.
type TransactionBatchRequest struct {
	Transactions []TransactionRequest `json:"transactions" validate:"required,min=1,max=10000,dive"`
}

// VenueRequest is PUT /venues/{id}.
type VenueRequest struct {
	Name      string  `json:"name" validate:"required,max=256"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// ProductRequest is PUT /products/{id}.
type ProductRequest struct {
	Name             string `json:"name" validate:"required,max=256"`
	Category         string `json:"category" validate:"required,product_category"`
	Unit             string `json:"unit" validate:"omitempty,max=32"`
	Granularity      int    `json:"granularity" validate:"gte=0,lte=1000"`
	SeasonStartMonth int    `json:"season_start_month" validate:"gte=0,lte=12"`
	SeasonEndMonth   int    `json:"season_end_month" validate:"gte=0,lte=12"`
	Active           *bool  `json:"active"`
}

// decodeJSON reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decodeJSON(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(rw.w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			rw.BadRequest("request body is required")
		default:
			rw.BadRequest(fmt.Sprintf("invalid JSON body: %v", err))
		}
		return false
	}
	return validate(rw, dst)
}

func validate(rw *ResponseWriter, v interface{}) bool {
	if verr := validation.ValidateStruct(v); verr != nil {
		rw.ValidationError(verr)
		return false
	}
	return true
}

// mustDate parses a date that already passed the isodate validator.
func mustDate(s string) time.Time {
	d, _ := models.ParseDate(s)
	return d
}
