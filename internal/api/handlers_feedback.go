// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"net/http"

	"github.com/tomtom215/stallcast/internal/feedback"
)

// SubmitFeedback handles POST /api/v1/feedback. A second submission for the same
// appearance and product answers 409 CONFLICT.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	fb, err := h.feedback.Submit(r.Context(), feedback.Submission{
		SellerID:     sellerID,
		AppearanceID: req.AppearanceID,
		ProductID:    req.ProductID,
		Actual:       *req.Actual,
	})
	if err != nil {
		rw.ServiceError(err)
		return
	}
	rw.Created(fb)
}
