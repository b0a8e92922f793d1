/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/storagemodels"
)

// Router is a Backend that dispatches each table to the backend registered
// for it, or to the fallback backend. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	backends map[string]Backend
	fallback Backend
}

// NewRouter creates a router. fallback may be nil.
func NewRouter(fallback Backend) *Router {
	return &Router{
		backends: make(map[string]Backend),
		fallback: fallback,
	}
}

// Register routes table to b.
func (r *Router) Register(table string, b Backend) error {
	if b == nil {
		return errors.NewValidationError("backend", "backend is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[table]; exists {
		return errors.NewAlreadyExistsError("backend", table)
	}
	r.backends[table] = b
	return nil
}

// SetDefault replaces the fallback backend.
func (r *Router) SetDefault(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = b
}

// Get returns the backend serving table.
func (r *Router) Get(table string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, exists := r.backends[table]; exists {
		return b, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, errors.NewNotFoundError("backend", table)
}

// Remove drops the route of table.
func (r *Router) Remove(table string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[table]; !exists {
		return errors.NewNotFoundError("backend", table)
	}
	delete(r.backends, table)
	return nil
}

// List returns the explicitly routed tables, sorted.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tables := make([]string, 0, len(r.backends))
	for t := range r.backends {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func (r *Router) FindEntityHandle(table string) (EntityHandle, error) {
	b, err := r.Get(table)
	if err != nil {
		return nil, err
	}
	return b.FindEntityHandle(table)
}

func (r *Router) FindWideRowHandle(table string) (WideRowHandle, error) {
	b, err := r.Get(table)
	if err != nil {
		return nil, err
	}
	return b.FindWideRowHandle(table)
}

// CounterHandle resolves the backend routed for storagemodels.CounterTable.
func (r *Router) CounterHandle() (CounterHandle, error) {
	b, err := r.Get(storagemodels.CounterTable)
	if err != nil {
		return nil, err
	}
	return b.CounterHandle()
}

// Apply splits mutations by backend and applies each group in the order its
// first mutation appeared. Relative order within a backend is preserved.
// Groups already applied stay applied when a later group fails.
func (r *Router) Apply(ctx context.Context, mutations []storagemodels.Mutation) error {
	type group struct {
		backend   Backend
		mutations []storagemodels.Mutation
	}
	var groups []*group
	index := make(map[Backend]*group)

	for _, m := range mutations {
		b, err := r.Get(m.Table)
		if err != nil {
			return err
		}
		g, ok := index[b]
		if !ok {
			g = &group{backend: b}
			index[b] = g
			groups = append(groups, g)
		}
		g.mutations = append(g.mutations, m)
	}

	for i, g := range groups {
		if err := g.backend.Apply(ctx, g.mutations); err != nil {
			return fmt.Errorf("apply group %d of %d: %w", i+1, len(groups), err)
		}
	}
	return nil
}
