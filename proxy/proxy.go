/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package proxy

import (
	"context"
	"fmt"
	"reflect"

	"github.com/suparena/entitymapper/errors"
)

// LoadedOrLazy is the view of an entity that the rest of the system programs
// against. A Materialized value is fully loaded; a *Proxy loads fields on
// first access.
type LoadedOrLazy interface {
	// Entity returns the plain entity, never a proxy.
	Entity() any
	IsLoaded(field string) bool
	Get(ctx context.Context, field string) (any, error)
}

// Proxy is a managed entity: a plain entity plus the Interceptor that loads
// its fields on demand. Equality is never computed on proxies; compare the
// unwrapped entities (see SameEntity).
type Proxy struct {
	interceptor *Interceptor
}

var (
	_ LoadedOrLazy = (*Proxy)(nil)
	_ LoadedOrLazy = Materialized{}
)

// Interceptor returns the proxy's interceptor.
func (p *Proxy) Interceptor() *Interceptor {
	return p.interceptor
}

// Entity returns the wrapped entity.
func (p *Proxy) Entity() any {
	return p.interceptor.target
}

// Type returns the struct type of the wrapped entity.
func (p *Proxy) Type() reflect.Type {
	return p.interceptor.meta.Type
}

func (p *Proxy) IsLoaded(field string) bool {
	return p.interceptor.IsLoaded(field)
}

// Get returns a field value, loading it first if needed.
func (p *Proxy) Get(ctx context.Context, field string) (any, error) {
	return p.interceptor.Get(ctx, field)
}

// Set writes a field value and marks it dirty.
func (p *Proxy) Set(field string, value any) error {
	return p.interceptor.Set(field, value)
}

func (p *Proxy) String() string {
	return fmt.Sprintf("Proxy(%s)", p.interceptor.meta.Name())
}

// Materialized is a fully loaded entity that needs no interceptor.
type Materialized struct {
	entity any
}

// Materialize wraps v as a LoadedOrLazy. Proxies are returned as is.
func Materialize(v any) LoadedOrLazy {
	if p, ok := v.(*Proxy); ok && p != nil {
		return p
	}
	return Materialized{entity: v}
}

func (m Materialized) Entity() any {
	return m.entity
}

func (m Materialized) IsLoaded(string) bool {
	return true
}

// Get reads the named exported field of the entity.
func (m Materialized) Get(_ context.Context, field string) (any, error) {
	v := reflect.Indirect(reflect.ValueOf(m.entity))
	if v.Kind() != reflect.Struct {
		return nil, errors.NewValidationError(field, fmt.Sprintf("%T is not a struct", m.entity))
	}
	fv := v.FieldByName(field)
	if !fv.IsValid() || !fv.CanInterface() {
		return nil, errors.NewValidationError(field, fmt.Sprintf("no exported field in %s", v.Type().Name()))
	}
	return fv.Interface(), nil
}

// Field is a typed Get.
func Field[V any](ctx context.Context, e LoadedOrLazy, field string) (V, error) {
	var zero V
	raw, err := e.Get(ctx, field)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(V)
	if !ok {
		return zero, errors.NewValidationError(field, fmt.Sprintf("holds %T, not %T", raw, zero))
	}
	return v, nil
}
