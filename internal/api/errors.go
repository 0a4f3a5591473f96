// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/models"
	"github.com/tomtom215/stallcast/internal/recommend"
	"github.com/tomtom215/stallcast/internal/validation"
)

// upstreamRetryAfter is the Retry-After hint sent with retryable upstream failures.
const upstreamRetryAfter = 5

// UpstreamDetails is the error detail body of an UPSTREAM_UNAVAILABLE response.
type UpstreamDetails struct {
	Dependency string `json:"dependency"`
	Retryable  bool   `json:"retryable"`
}

// ServiceError maps an error returned by a service to a response.
//
//	*models.UpstreamError        503 UPSTREAM_UNAVAILABLE {dependency, retryable}
//	models.ErrInvalidAppearance  400 INVALID_APPEARANCE
//	models.ErrInvalidInput       400 BAD_REQUEST
//	models.ErrNotFound           404 NOT_FOUND
//	models.ErrConflict           409 CONFLICT
//	models.ErrTrainingInProgress 409 CONFLICT
//	budget exceeded              504 TIMEOUT
//	client canceled              408 REQUEST_CANCELED
func (rw *ResponseWriter) ServiceError(err error) {
	if ue, ok := models.AsUpstream(err); ok {
		logging.Ctx(rw.r.Context()).Warn().Err(err).Str("dependency", ue.Dependency).Msg("Upstream unavailable")
		if ue.Retryable {
			rw.w.Header().Set("Retry-After", strconv.Itoa(upstreamRetryAfter))
		}
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeUpstreamUnavailable,
			ue.Dependency+" is unavailable",
			UpstreamDetails{Dependency: ue.Dependency, Retryable: ue.Retryable})
		return
	}

	switch {
	case errors.Is(err, models.ErrInvalidAppearance):
		rw.Error(http.StatusBadRequest, ErrCodeInvalidAppearance, err.Error())
	case errors.Is(err, models.ErrInvalidInput):
		rw.BadRequest(err.Error())
	case errors.Is(err, models.ErrNotFound):
		rw.NotFound(err.Error())
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrTrainingInProgress):
		rw.Conflict(err.Error())
	case errors.Is(err, recommend.ErrBudgetExceeded), errors.Is(err, context.DeadlineExceeded):
		rw.Error(http.StatusGatewayTimeout, ErrCodeTimeout, "request did not finish in time")
	case errors.Is(err, context.Canceled):
		rw.Error(http.StatusRequestTimeout, ErrCodeRequestCanceled, "request canceled")
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Request failed")
		rw.InternalError("internal error")
	}
}

// ValidationError writes a 400 VALIDATION_ERROR from a validator failure.
func (rw *ResponseWriter) ValidationError(verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
}
