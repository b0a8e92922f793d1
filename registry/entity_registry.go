/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/meta"
)

// Registry maps entity types to their EntityMeta. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*meta.EntityMeta
	byName map[string]*meta.EntityMeta
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*meta.EntityMeta),
		byName: make(map[string]*meta.EntityMeta),
	}
}

// Default is the process-wide registry used by the package-level functions.
var Default = New()

// Register adds m. Registering a second meta for the same type or the same
// type name fails with an AlreadyExistsError.
func (r *Registry) Register(m *meta.EntityMeta) error {
	if m == nil {
		return errors.NewValidationError("meta", "entity meta is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byType[m.Type]; exists {
		return errors.NewAlreadyExistsError("EntityMeta", m.Type.String())
	}
	if _, exists := r.byName[m.Name()]; exists {
		return errors.NewAlreadyExistsError("EntityMeta", m.Name())
	}
	r.byType[m.Type] = m
	r.byName[m.Name()] = m
	return nil
}

// MustRegister registers m and panics on failure, to prevent accidental overrides.
func (r *Registry) MustRegister(m *meta.EntityMeta) {
	if err := r.Register(m); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
}

// Lookup returns the meta of t. t may be the struct type or a pointer to it.
func (r *Registry) Lookup(t reflect.Type) (*meta.EntityMeta, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byType[t]
	return m, ok
}

// LookupName returns the meta registered under the entity type name.
func (r *Registry) LookupName(name string) (*meta.EntityMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// EntityMeta is Lookup with a NotFoundError for unknown types.
func (r *Registry) EntityMeta(t reflect.Type) (*meta.EntityMeta, error) {
	m, ok := r.Lookup(t)
	if !ok {
		return nil, errors.NewNotFoundError("EntityMeta", fmt.Sprint(t))
	}
	return m, nil
}

// Names lists the registered entity names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds m to the Default registry. It panics on duplicates.
func Register(m *meta.EntityMeta) {
	Default.MustRegister(m)
}

// Lookup searches the Default registry.
func Lookup(t reflect.Type) (*meta.EntityMeta, bool) {
	return Default.Lookup(t)
}

// MetaFor returns the meta of T from the Default registry.
func MetaFor[T any]() (*meta.EntityMeta, bool) {
	var zero T
	return Default.Lookup(reflect.TypeOf(zero))
}
