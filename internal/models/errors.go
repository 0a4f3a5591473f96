// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores and services. Wrap them with %w.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidAppearance = errors.New("invalid appearance")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientData  = errors.New("insufficient data")

	// ErrTrainingInProgress is returned when a retraining run is already active.
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrModelRegression marks a candidate model rejected for a worse held-out error.
	ErrModelRegression = errors.New("model regression")
)

// UpstreamError is a caller-visible failure caused by a dependency the request cannot
// proceed without. Retryable tells the caller whether trying again may help.
type UpstreamError struct {
	Dependency string
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Dependency, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError wraps err as a retryable failure of dependency.
func NewUpstreamError(dependency string, err error) *UpstreamError {
	return &UpstreamError{Dependency: dependency, Retryable: true, Err: err}
}

// AsUpstream extracts an UpstreamError from err's chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
