// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

/*
Package api provides the HTTP interface of Stallcast, routed with chi.

Every response uses the APIResponse envelope: {success, data, error, meta}. The
seller is identified by the X-Seller-ID header, set by the identity layer in front
of the service; seller-scoped routes answer 401 without it.

Routes:

	GET    /api/v1/recommendations?venue_id=&date=   recommendation set
	POST   /api/v1/recommendations/invalidate        drop a cached set
	POST   /api/v1/feedback                          record an outcome (409 on repeat)
	GET    /api/v1/appearances?from=&to=             scheduled appearances
	POST   /api/v1/appearances                       schedule an appearance
	PATCH  /api/v1/appearances/{id}/status           complete or cancel
	POST   /api/v1/transactions                      sync a batch of sales
	PUT    /api/v1/venues/{id}                       create or update a venue
	GET    /api/v1/products                          the seller's products
	PUT    /api/v1/products/{id}                     create or update a product
	DELETE /api/v1/products/{id}                     soft-delete a product
	GET    /api/v1/models                            trained model versions
	GET    /api/v1/models/status                     retraining state
	GET    /api/v1/models/alerts                     regression alerts
	POST   /api/v1/models/retrain                    start retraining (202)
	POST   /api/v1/models/{version}/activate         manual rollback
	GET    /api/v1/health/live, /api/v1/health/ready probes
	GET    /metrics                                  Prometheus

Error codes:

	VALIDATION_ERROR      400 a field failed validation
	INVALID_APPEARANCE    400 the date has passed or the venue is unknown
	UNAUTHORIZED          401 no seller identity
	NOT_FOUND             404
	CONFLICT              409 duplicate feedback, appearance or a running retrain
	UPSTREAM_UNAVAILABLE  503 details name the dependency and whether to retry
	TIMEOUT               504 the recommendation budget ran out
*/
package api
