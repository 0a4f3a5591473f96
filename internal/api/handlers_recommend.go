// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/stallcast/internal/recommend"
)

// GetRecommendations handles GET /api/v1/recommendations?venue_id=&date=.
//
// The set is embedded in the envelope exactly as cached, so repeated requests see
// the same bytes under "data". Only meta.cached and the X-Cache header (HIT or
// MISS) tell a fresh computation from a cached one.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	q := RecommendationQuery{
		VenueID: r.URL.Query().Get("venue_id"),
		Date:    r.URL.Query().Get("date"),
	}
	if !validate(rw, &q) {
		return
	}

	resp, err := h.engine.Recommend(r.Context(), recommend.Request{
		SellerID: sellerID,
		VenueID:  q.VenueID,
		Date:     mustDate(q.Date),
	})
	if err != nil {
		rw.ServiceError(err)
		return
	}

	cacheStatus := "MISS"
	if resp.Cached {
		cacheStatus = "HIT"
	}
	w.Header().Set("X-Cache", cacheStatus)
	rw.SuccessWithMeta(json.RawMessage(resp.Payload), &APIMeta{Cached: &resp.Cached})
}

// InvalidateRecommendations handles POST /api/v1/recommendations/invalidate.
func (h *Handler) InvalidateRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	var req InvalidateRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	if err := h.engine.Invalidate(r.Context(), sellerID, req.VenueID, mustDate(req.Date)); err != nil {
		rw.ServiceError(err)
		return
	}
	rw.NoContent()
}
