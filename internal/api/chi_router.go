// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/stallcast/internal/middleware"
)

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // must be global to answer OPTIONS preflight
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Seller)
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())

		r.Get("/recommendations", router.handler.GetRecommendations)
		r.With(router.chiMiddleware.RateLimitWrite()).Post("/recommendations/invalidate", router.handler.InvalidateRecommendations)

		r.With(router.chiMiddleware.RateLimitWrite()).Post("/feedback", router.handler.SubmitFeedback)

		r.Route("/appearances", func(r chi.Router) {
			r.Get("/", router.handler.ListAppearances)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/", router.handler.CreateAppearance)
			r.With(router.chiMiddleware.RateLimitWrite()).Patch("/{id}/status", router.handler.UpdateAppearanceStatus)
		})

		r.With(router.chiMiddleware.RateLimitSync()).Post("/transactions", router.handler.SyncTransactions)

		r.With(router.chiMiddleware.RateLimitWrite()).Put("/venues/{id}", router.handler.PutVenue)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", router.handler.ListProducts)
			r.With(router.chiMiddleware.RateLimitWrite()).Put("/{id}", router.handler.PutProduct)
			r.With(router.chiMiddleware.RateLimitWrite()).Delete("/{id}", router.handler.DeleteProduct)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/", router.handler.ListModels)
			r.Get("/status", router.handler.ModelStatus)
			r.Get("/alerts", router.handler.ListAlerts)
			r.With(router.chiMiddleware.RateLimitSync()).Post("/retrain", router.handler.TriggerRetrain)
			r.With(router.chiMiddleware.RateLimitSync()).Post("/{version}/activate", router.handler.ActivateModel)
		})
	})

	return r
}
