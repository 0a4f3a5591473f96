// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/stallcast/internal/logging"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	t.Parallel()

	var capturedID, correlationID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = logging.RequestIDFromContext(r.Context())
		correlationID = logging.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	responseID := rec.Header().Get(HeaderRequestID)
	if _, err := uuid.Parse(responseID); err != nil {
		t.Errorf("Response X-Request-ID is not a valid UUID: %v", err)
	}
	if capturedID != responseID {
		t.Errorf("Context ID (%s) doesn't match response header ID (%s)", capturedID, responseID)
	}
	if correlationID == "" {
		t.Error("Expected a correlation ID in context")
	}
}

func TestRequestID_UpstreamIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header   string
		wantKept bool
	}{
		{"proxy id is reused", "proxy-abc-123", true},
		{"whitespace is trimmed", "  abc  ", true},
		{"control characters are rejected", "abc\ninjected", false},
		{"oversized id is rejected", strings.Repeat("x", maxHeaderID+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var capturedID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedID = logging.RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(HeaderRequestID, tt.header)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			kept := capturedID == strings.TrimSpace(tt.header)
			if kept != tt.wantKept {
				t.Errorf("header %q: captured %q, kept = %v, want %v", tt.header, capturedID, kept, tt.wantKept)
			}
			if capturedID == "" {
				t.Error("Expected a request ID in every case")
			}
		})
	}
}

func TestRequestID_ContextIsolation(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[logging.RequestIDFromContext(r.Context())] = true
	}))
	for i := 0; i < 5; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	}
	if len(seen) != 5 {
		t.Errorf("Expected 5 distinct request IDs, got %d", len(seen))
	}
}

func TestSeller(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"header present", "seller-42", "seller-42"},
		{"header absent", "", ""},
		{"header with control characters", "s\r\n1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			handler := Seller(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = logging.SellerIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(HeaderSellerID, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("seller = %q, want %q", got, tt.want)
			}
		})
	}
}
