// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/stallcast/internal/models"
)

// ErrBudgetExceeded is returned when the pipeline did not finish within the
// request budget.
var ErrBudgetExceeded = errors.New("recommendation budget exceeded")

// DependencyRelationalStore names the venue and product store in upstream errors.
const DependencyRelationalStore = "relational_store"

// Error kinds, used as metric labels and by the API error mapping.
const (
	KindInvalidInput      = "invalid_input"
	KindInvalidAppearance = "invalid_appearance"
	KindUpstream          = "upstream_unavailable"
	KindBudget            = "budget_exceeded"
	KindCanceled          = "canceled"
	KindInternal          = "internal"
)

// ErrorKind classifies an error returned by Recommend.
func ErrorKind(err error) string {
	if _, ok := models.AsUpstream(err); ok {
		return KindUpstream
	}
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, models.ErrInvalidAppearance):
		return KindInvalidAppearance
	case errors.Is(err, ErrBudgetExceeded), errors.Is(err, context.DeadlineExceeded):
		return KindBudget
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindInternal
}

// storeError classifies a failed venue or product read. Running out of budget
// mid-query is a budget failure; anything else means the store is unavailable.
func storeError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %w", ErrBudgetExceeded, op, err)
	}
	return models.NewUpstreamError(DependencyRelationalStore, fmt.Errorf("%s: %w", op, err))
}
