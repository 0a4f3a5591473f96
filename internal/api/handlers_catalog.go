// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/stallcast/internal/eventbus"
	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
)

// PutVenue handles PUT /api/v1/venues/{id}. Venues are shared across sellers.
func (h *Handler) PutVenue(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if _, ok := requireSeller(rw, r); !ok {
		return
	}

	var req VenueRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	v := &models.Venue{
		ID:        chi.URLParam(r, "id"),
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	if err := h.store.UpsertVenue(r.Context(), v); err != nil {
		rw.ServiceError(err)
		return
	}
	rw.Success(v)
}

// ListProducts handles GET /api/v1/products. Deleted products are included with
// ?all=true.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	products, err := h.store.ListProducts(r.Context(), sellerID, r.URL.Query().Get("all") != "true")
	if err != nil {
		rw.ServiceError(err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	rw.List(products, len(products))
}

// PutProduct handles PUT /api/v1/products/{id}. A product ID owned by another
// seller answers 409.
func (h *Handler) PutProduct(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	var req ProductRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	existing, err := h.store.GetProduct(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		rw.ServiceError(err)
		return
	case existing.SellerID != sellerID:
		rw.ServiceError(fmt.Errorf("product %s belongs to another seller: %w", id, models.ErrConflict))
		return
	}

	p := &models.Product{
		ID:               id,
		SellerID:         sellerID,
		Name:             req.Name,
		Category:         models.ProductCategory(req.Category),
		Unit:             req.Unit,
		Granularity:      req.Granularity,
		SeasonStartMonth: req.SeasonStartMonth,
		SeasonEndMonth:   req.SeasonEndMonth,
		Active:           req.Active == nil || *req.Active,
	}
	if p.Unit == "" {
		p.Unit = "unit"
	}
	if existing != nil {
		p.CreatedAt = existing.CreatedAt
	}
	if err := h.store.UpsertProduct(r.Context(), p); err != nil {
		rw.ServiceError(err)
		return
	}

	h.publish(r.Context(), eventbus.TopicCatalogChanged, eventbus.CatalogChanged{SellerID: sellerID, ProductID: id})
	rw.Success(p)
}

// DeleteProduct handles DELETE /api/v1/products/{id}. The product is
// soft-deleted; its sales and feedback stay in the history.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.SoftDeleteProduct(r.Context(), sellerID, id); err != nil {
		rw.ServiceError(err)
		return
	}
	h.publish(r.Context(), eventbus.TopicCatalogChanged, eventbus.CatalogChanged{SellerID: sellerID, ProductID: id, Deleted: true})
	rw.NoContent()
}

// SyncTransactions handles POST /api/v1/transactions. Re-sending a transaction
// with the same ID is a no-op. Cached sets for the seller are invalidated through
// the transactions.synced event.
func (h *Handler) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sellerID, ok := requireSeller(rw, r)
	if !ok {
		return
	}

	var req TransactionBatchRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	txns := make([]models.Transaction, len(req.Transactions))
	venues := map[string]struct{}{}
	for i, t := range req.Transactions {
		txns[i] = models.Transaction{
			ID:        t.ID,
			SellerID:  sellerID,
			ProductID: t.ProductID,
			VenueID:   t.VenueID,
			Quantity:  t.Quantity,
			SoldAt:    t.SoldAt.UTC(),
		}
		venues[t.VenueID] = struct{}{}
	}

	inserted, err := h.store.InsertTransactions(r.Context(), txns)
	if err != nil {
		rw.ServiceError(err)
		return
	}

	if inserted > 0 {
		venueIDs := make([]string, 0, len(venues))
		for v := range venues {
			venueIDs = append(venueIDs, v)
		}
		sort.Strings(venueIDs)
		h.publish(r.Context(), eventbus.TopicTransactionsSynced, eventbus.TransactionsSynced{
			SellerID: sellerID,
			VenueIDs: venueIDs,
			Count:    inserted,
		})
	}

	logging.Ctx(r.Context()).Info().Int("received", len(txns)).Int("inserted", inserted).Msg("Transactions synced")
	rw.Success(map[string]int{"received": len(txns), "inserted": inserted})
}
