/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package persistence

import (
	"context"
	"reflect"

	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/proxy"
)

// EntityMetaProvider resolves the mapping of an entity type.
type EntityMetaProvider interface {
	EntityMeta(t reflect.Type) (*meta.EntityMeta, error)
}

// Loader reads entities and single fields from storage.
type Loader interface {
	// Load reads the entity bound to pc as a plain entity of type t. It
	// returns (nil, nil) when no row exists. When pc.IsLoadEagerFields is
	// false it must not read any field.
	Load(ctx context.Context, pc *Context, t reflect.Type) (any, error)
	// LoadProperty reads one field of target.
	LoadProperty(ctx context.Context, pc *Context, target any, field *meta.FieldMeta) error
}

// Persister stages the writes that store or delete the entity bound to a context.
type Persister interface {
	Persist(ctx context.Context, pc *Context) error
	Remove(ctx context.Context, pc *Context) error
}

// Merger reconciles an entity with storage and returns the managed instance.
type Merger interface {
	Merge(ctx context.Context, pc *Context, entity any) (any, error)
}

// Refresher re-reads the entity bound to a context in place.
type Refresher interface {
	Refresh(ctx context.Context, pc *Context) error
}

// Initializer loads every field of a proxied entity that is not loaded yet.
type Initializer interface {
	InitializeEntity(ctx context.Context, entity any, m *meta.EntityMeta, interceptor *proxy.Interceptor) error
}
