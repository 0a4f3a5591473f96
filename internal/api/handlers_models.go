// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/retrain"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// ListModels handles GET /api/v1/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	list, err := h.store.ListModels(r.Context())
	if err != nil {
		rw.ServiceError(err)
		return
	}
	if list == nil {
		list = []models.TrainedModel{}
	}
	rw.List(list, len(list))
}

// ModelStatus handles GET /api/v1/models/status.
func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.retrainer.Status())
}

// RetrainResponse is the body of POST /models/retrain.
type RetrainResponse struct {
	Started   bool `json:"started"`
	Coalesced bool `json:"coalesced"`
}

// TriggerRetrain handles POST /api/v1/models/retrain. It answers 202 either way;
// a trigger that arrives during a run is folded into it.
func (h *Handler) TriggerRetrain(w http.ResponseWriter, r *http.Request) {
	started := h.retrainer.TriggerAsync(r.Context(), retrain.TriggerManual)
	NewResponseWriter(w, r).Accepted(RetrainResponse{Started: started, Coalesced: !started})
}

// ActivateModel handles POST /api/v1/models/{version}/activate, a manual rollback
// to a retained version.
func (h *Handler) ActivateModel(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil || version <= 0 {
		rw.BadRequest("version must be a positive integer")
		return
	}
	if err := h.retrainer.Activate(r.Context(), version); err != nil {
		rw.ServiceError(err)
		return
	}
	rw.Success(h.retrainer.Status())
}

// ListAlerts handles GET /api/v1/models/alerts?limit=.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	limit := defaultAlertLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAlertLimit {
			rw.BadRequest("limit must be between 1 and 500")
			return
		}
		limit = n
	}

	alerts, err := h.store.ListAlerts(r.Context(), limit)
	if err != nil {
		rw.ServiceError(err)
		return
	}
	if alerts == nil {
		alerts = []models.RegressionAlert{}
	}
	rw.List(alerts, len(alerts))
}
