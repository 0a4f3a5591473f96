// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package predict

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/stallcast/internal/metrics"
	"github.com/tomtom215/stallcast/internal/models"
)

type activeModel struct {
	model Model
}

// Registry holds the active model behind an atomic pointer plus a bounded set of
// superseded versions for rollback. Readers never take a lock.
type Registry struct {
	active atomic.Pointer[activeModel]

	mu       sync.Mutex
	versions map[int64]Model
	retain   int
}

// NewRegistry creates an empty registry that keeps up to retain versions in memory
// (the active one included).
func NewRegistry(retain int) *Registry {
	if retain < 1 {
		retain = 1
	}
	return &Registry{versions: make(map[int64]Model), retain: retain}
}

// Active returns the active model, or nil when none has been promoted. A request
// calls it once and uses the returned model for its whole lifetime, so a concurrent
// swap never changes the version a request sees.
func (r *Registry) Active() Model {
	if a := r.active.Load(); a != nil {
		return a.model
	}
	return nil
}

// ActiveVersion returns the active version, or 0.
func (r *Registry) ActiveVersion() int64 {
	if m := r.Active(); m != nil {
		return m.Version()
	}
	return 0
}

// Promote retains m and makes it active.
func (r *Registry) Promote(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[m.Version()] = m
	r.active.Store(&activeModel{model: m})
	metrics.ActiveModelVersion.Set(float64(m.Version()))
	r.pruneLocked()
}

// Activate makes a retained version active again.
func (r *Registry) Activate(version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.versions[version]
	if !ok {
		return fmt.Errorf("model version %d: %w", version, models.ErrNotFound)
	}
	r.active.Store(&activeModel{model: m})
	metrics.ActiveModelVersion.Set(float64(version))
	return nil
}

// Get returns a retained version.
func (r *Registry) Get(version int64) (Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.versions[version]
	return m, ok
}

// retained returns the retained versions, newest first.
func (r *Registry) retained() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.versions))
	for v := range r.versions {
		out = append(out, v)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// pruneLocked drops the oldest inactive versions beyond the retention limit.
func (r *Registry) pruneLocked() {
	if len(r.versions) <= r.retain {
		return
	}
	active := int64(0)
	if a := r.active.Load(); a != nil {
		active = a.model.Version()
	}
	versions := make([]int64, 0, len(r.versions))
	for v := range r.versions {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	for _, v := range versions {
		if len(r.versions) <= r.retain {
			return
		}
		if v != active {
			delete(r.versions, v)
		}
	}
}
