// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
)

// defaultAppearanceRangeDays is how far ahead ListAppearances looks without a to date.
const defaultAppearanceRangeDays = 90

// CreateAppearance handles POST /api/v1/appearances. Appearances are scheduled for
// today or later.
func (h *Handler) CreateAppearance(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	var req AppearanceRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	date := mustDate(req.Date)
	if date.Before(models.Day(h.now())) {
		rw.ServiceError(fmt.Errorf("date %s has passed: %w", req.Date, models.ErrInvalidAppearance))
		return
	}

	a := &models.Appearance{
		SellerID: sellerID,
		VenueID:  req.VenueID,
		Date:     date,
		Status:   models.AppearancePlanned,
	}
	if err := h.store.CreateAppearance(r.Context(), a); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = fmt.Errorf("venue %s is unknown: %w", req.VenueID, models.ErrInvalidAppearance)
		}
		rw.ServiceError(err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("appearance_id", a.ID).Str("venue_id", a.VenueID).
		Str("date", req.Date).Msg("Appearance scheduled")
	rw.Created(a)
}

// ListAppearances handles GET /api/v1/appearances?from=&to=. The range defaults to
// today through the next 90 days.
func (h *Handler) ListAppearances(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	from := models.Day(h.now())
	to := from.AddDate(0, 0, defaultAppearanceRangeDays)
	if s := r.URL.Query().Get("from"); s != "" {
		d, err := models.ParseDate(s)
		if err != nil {
			rw.BadRequest("from must be a date in YYYY-MM-DD format")
			return
		}
		from = d
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := models.ParseDate(s)
		if err != nil {
			rw.BadRequest("to must be a date in YYYY-MM-DD format")
			return
		}
		to = d
	}
	if to.Before(from) {
		rw.BadRequest("to must not be before from")
		return
	}

	apps, err := h.store.ListAppearances(r.Context(), sellerID, from, to)
	if err != nil {
		rw.ServiceError(err)
		return
	}
	if apps == nil {
		apps = []models.Appearance{}
	}
	rw.List(apps, len(apps))
}

// UpdateAppearanceStatus handles PATCH /api/v1/appearances/{id}/status. Only a
// planned appearance can change status.
func (h *Handler) UpdateAppearanceStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	var req AppearanceStatusRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	a, err := h.store.GetAppearance(r.Context(), id)
	if err != nil {
		rw.ServiceError(err)
		return
	}
	if a.SellerID != sellerID {
		rw.NotFound(fmt.Sprintf("appearance %s not found", id))
		return
	}

	status := models.AppearanceStatus(req.Status)
	if a.Status == status {
		rw.Success(a)
		return
	}
	if a.Status != models.AppearancePlanned {
		rw.ServiceError(fmt.Errorf("appearance %s is already %s: %w", id, a.Status, models.ErrConflict))
		return
	}

	if err := h.store.UpdateAppearanceStatus(r.Context(), id, status); err != nil {
		rw.ServiceError(err)
		return
	}
	a.Status = status
	rw.Success(a)
}
