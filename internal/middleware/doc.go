// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

/*
Package middleware provides HTTP middleware shared by every API route.

Key Components:

  - RequestID: request and correlation IDs for structured logging
  - Seller: the seller identity forwarded by the identity layer in X-Seller-ID
  - PrometheusMetrics: request count and latency per route pattern

All three use the func(http.Handler) http.Handler shape so they plug straight into
chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Route("/api/v1", func(r chi.Router) {
	    r.Use(middleware.Seller)
	    r.Get("/recommendations", handler.GetRecommendations)
	})

Seller does not reject requests: identity enforcement belongs to the identity layer
in front of Stallcast. Handlers that need a seller check logging.SellerIDFromContext
and answer 401 when it is empty.
*/
package middleware
