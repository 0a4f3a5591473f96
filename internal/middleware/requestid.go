// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package middleware

import (
	"net/http"
	"strings"

	"github.com/tomtom215/stallcast/internal/logging"
)

// Header names.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderSellerID  = "X-Seller-ID"
)

// maxHeaderID bounds caller-supplied IDs before they reach logs.
const maxHeaderID = 128

// RequestID assigns each request an ID, reusing one supplied by an upstream proxy,
// and echoes it in the response. Every request also gets a fresh correlation ID so
// work it triggers in the background can be traced back to it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := cleanID(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set(HeaderRequestID, requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Seller copies the X-Seller-ID header into the request context.
func Seller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := cleanID(r.Header.Get(HeaderSellerID)); id != "" {
			r = r.WithContext(logging.ContextWithSellerID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// cleanID trims an ID and drops it when it is too long or contains control
// characters.
func cleanID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxHeaderID {
		return ""
	}
	for _, c := range id {
		if c < 0x20 || c == 0x7f {
			return ""
		}
	}
	return id
}
