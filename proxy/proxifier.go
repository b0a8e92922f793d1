/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package proxy

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/internal/logging"
)

// InterceptorBuilder creates the interceptor of a new proxy.
type InterceptorBuilder func(target any, pc Context, alreadyLoaded ...string) (*Interceptor, error)

// Option configures a Proxifier.
type Option func(*Proxifier)

// WithInterceptorBuilder replaces NewInterceptor.
func WithInterceptorBuilder(builder InterceptorBuilder) Option {
	return func(p *Proxifier) {
		if builder != nil {
			p.builder = builder
		}
	}
}

// WithLogger sets the logger used for proxy tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxifier) {
		p.logger = logging.OrDiscard(logger)
	}
}

// Proxifier builds proxies. It is stateless and safe for concurrent use.
type Proxifier struct {
	builder InterceptorBuilder
	logger  *slog.Logger
}

// NewProxifier creates a Proxifier.
func NewProxifier(opts ...Option) *Proxifier {
	p := &Proxifier{builder: NewInterceptor, logger: logging.Discard()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// BuildProxy wraps entity in a new Proxy bound to pc. alreadyLoaded seeds the
// fields treated as materialized. entity must be a pointer to a struct of the
// context's entity type and must not be a proxy itself.
func (p *Proxifier) BuildProxy(entity any, pc Context, alreadyLoaded ...string) (*Proxy, error) {
	if IsProxy(entity) {
		return nil, errors.NewInvalidStateError(entity.(*Proxy).interceptor.meta.Name(), "entity is already a proxy")
	}
	if pc == nil {
		return nil, errors.NewValidationError("context", "a persistence context is required")
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, errors.NewValidationError("entity", fmt.Sprintf("expected a non-nil pointer to a struct, got %T", entity))
	}
	if m := pc.EntityMeta(); m != nil && m.Type != v.Elem().Type() {
		return nil, errors.NewInvalidStateError(v.Elem().Type().Name(), fmt.Sprintf("context is bound to %s", m.Name()))
	}

	interceptor, err := p.builder(entity, pc, alreadyLoaded...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("proxy built", "entity", interceptor.meta.Name(), "loaded", len(alreadyLoaded))
	return &Proxy{interceptor: interceptor}, nil
}

// IsProxy reports whether v is a managed entity.
func IsProxy(v any) bool {
	p, ok := v.(*Proxy)
	return ok && p != nil
}

// GetInterceptor returns the interceptor of a proxy.
func GetInterceptor(v any) (*Interceptor, error) {
	if !IsProxy(v) {
		return nil, errors.NewNotManagedError(v)
	}
	return v.(*Proxy).interceptor, nil
}

// GetRealObject returns the entity wrapped by a proxy.
func GetRealObject(v any) (any, error) {
	i, err := GetInterceptor(v)
	if err != nil {
		return nil, err
	}
	return i.target, nil
}

// EnsureProxy fails with a NotManagedError unless v is a proxy.
func EnsureProxy(v any) error {
	if !IsProxy(v) {
		return errors.NewNotManagedError(v)
	}
	return nil
}

// Unwrap returns the entity behind a proxy, or v itself.
func Unwrap(v any) any {
	if p, ok := v.(*Proxy); ok && p != nil {
		return p.interceptor.target
	}
	return v
}

// Entry is a key/value pair whose value may be managed.
type Entry struct {
	Key   any
	Value any
}

// UnwrapEntry replaces a proxied value of e with its entity and returns e.
func UnwrapEntry(e *Entry) *Entry {
	if e != nil {
		e.Value = Unwrap(e.Value)
	}
	return e
}

// UnwrapList returns a new list with every proxy replaced by its entity.
func UnwrapList(list []any) []any {
	if list == nil {
		return nil
	}
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = Unwrap(v)
	}
	return out
}

// UnwrapSet returns a new set with every proxy replaced by its entity.
func UnwrapSet(set map[any]struct{}) map[any]struct{} {
	if set == nil {
		return nil
	}
	out := make(map[any]struct{}, len(set))
	for v := range set {
		out[Unwrap(v)] = struct{}{}
	}
	return out
}

// UnwrapMap returns a new map with every proxied value replaced by its entity.
func UnwrapMap[K comparable](m map[K]any) map[K]any {
	if m == nil {
		return nil
	}
	out := make(map[K]any, len(m))
	for k, v := range m {
		out[k] = Unwrap(v)
	}
	return out
}

// DeriveBaseType returns the struct type of an entity, proxied or not.
func DeriveBaseType(v any) reflect.Type {
	if p, ok := v.(*Proxy); ok && p != nil {
		return p.interceptor.meta.Type
	}
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// SameEntity compares two entities after unwrapping them.
func SameEntity(a, b any) bool {
	return reflect.DeepEqual(Unwrap(a), Unwrap(b))
}

// As returns the entity behind v as a *T.
func As[T any](v any) (*T, bool) {
	t, ok := Unwrap(v).(*T)
	return t, ok && t != nil
}
