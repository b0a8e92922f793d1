/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package proxy

import (
	"context"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/meta"
)

// Context is what an Interceptor needs from the persistence context that
// owns its proxy.
type Context interface {
	EntityMeta() *meta.EntityMeta
	// LoadField reads field of target from storage and stores it in target.
	LoadField(ctx context.Context, target any, field *meta.FieldMeta) error
}

// Interceptor is owned by exactly one Proxy. It holds the target entity, the
// owning context and the sets of loaded and dirty fields. Fields only ever
// move from unloaded to loaded. The id is always loaded.
//
// An Interceptor is not safe for concurrent use.
type Interceptor struct {
	target   any
	pc       Context
	meta     *meta.EntityMeta
	loaded   *bitset.BitSet
	dirty    *bitset.BitSet
	original map[uint]any
}

// NewInterceptor is the default InterceptorBuilder. alreadyLoaded names the
// fields whose values in target came from, or were written to, storage.
func NewInterceptor(target any, pc Context, alreadyLoaded ...string) (*Interceptor, error) {
	m := pc.EntityMeta()
	if m == nil {
		return nil, errors.NewInvalidStateError(fmt.Sprintf("%T", target), "context has no entity meta")
	}
	i := &Interceptor{
		target:   target,
		pc:       pc,
		meta:     m,
		loaded:   bitset.New(uint(len(m.Fields))),
		dirty:    bitset.New(uint(len(m.Fields))),
		original: make(map[uint]any),
	}
	if err := i.MarkLoaded(alreadyLoaded...); err != nil {
		return nil, err
	}
	return i, nil
}

// Target returns the wrapped entity. It is never a Proxy.
func (i *Interceptor) Target() any {
	return i.target
}

// Context returns the owning persistence context.
func (i *Interceptor) Context() Context {
	return i.pc
}

// EntityMeta returns the mapping of the target type.
func (i *Interceptor) EntityMeta() *meta.EntityMeta {
	return i.meta
}

func (i *Interceptor) field(name string) (*meta.FieldMeta, error) {
	f, ok := i.meta.Field(name)
	if !ok {
		return nil, errors.NewValidationError(name, fmt.Sprintf("not a persisted field of %s", i.meta.Name()))
	}
	return f, nil
}

// IsLoaded reports whether the named field has been materialized.
func (i *Interceptor) IsLoaded(name string) bool {
	if name == i.meta.ID.Name {
		return true
	}
	f, ok := i.meta.Field(name)
	return ok && i.loaded.Test(uint(f.Index()))
}

// MarkLoaded adds fields to the loaded set.
func (i *Interceptor) MarkLoaded(names ...string) error {
	for _, name := range names {
		if name == i.meta.ID.Name {
			continue
		}
		f, err := i.field(name)
		if err != nil {
			return err
		}
		i.loaded.Set(uint(f.Index()))
	}
	return nil
}

// AlreadyLoaded lists the loaded fields in declaration order, id excluded.
func (i *Interceptor) AlreadyLoaded() []string {
	names := make([]string, 0, i.loaded.Count())
	for idx, ok := i.loaded.NextSet(0); ok; idx, ok = i.loaded.NextSet(idx + 1) {
		names = append(names, i.meta.Fields[idx].Name)
	}
	return names
}

// Unloaded returns the fields not yet materialized.
func (i *Interceptor) Unloaded() []*meta.FieldMeta {
	var out []*meta.FieldMeta
	for idx := range i.meta.Fields {
		if !i.loaded.Test(uint(idx)) {
			out = append(out, &i.meta.Fields[idx])
		}
	}
	return out
}

// IsFullyLoaded reports whether every field is loaded.
func (i *Interceptor) IsFullyLoaded() bool {
	return i.loaded.Count() == uint(len(i.meta.Fields))
}

// Get returns the value of the named field, loading it through the owning
// context first when it is not loaded yet.
func (i *Interceptor) Get(ctx context.Context, name string) (any, error) {
	if name == i.meta.ID.Name {
		return meta.GetValue(i.target, &i.meta.ID)
	}
	f, err := i.field(name)
	if err != nil {
		return nil, err
	}
	if err := i.load(ctx, f); err != nil {
		return nil, err
	}
	return meta.GetValue(i.target, f)
}

func (i *Interceptor) load(ctx context.Context, f *meta.FieldMeta) error {
	idx := uint(f.Index())
	if i.loaded.Test(idx) {
		return nil
	}
	if err := i.pc.LoadField(ctx, i.target, f); err != nil {
		return fmt.Errorf("failed to load %s.%s: %w", i.meta.Name(), f.Name, err)
	}
	i.loaded.Set(idx)
	return nil
}

// Set writes the named field, marking it loaded and dirty. The value it
// replaced is kept until ClearDirty so that merges can compute deltas. A
// field that was never loaded has no original value: what the target held
// did not come from storage.
func (i *Interceptor) Set(name string, value any) error {
	if name == i.meta.ID.Name {
		return errors.NewInvalidStateError(i.meta.Name(), "the primary key of a managed entity cannot change")
	}
	f, err := i.field(name)
	if err != nil {
		return err
	}
	idx := uint(f.Index())
	if !i.dirty.Test(idx) && i.loaded.Test(idx) {
		old, err := meta.GetValue(i.target, f)
		if err != nil {
			return err
		}
		i.original[idx] = old
	}
	if err := meta.SetValue(i.target, f, value); err != nil {
		return err
	}
	i.dirty.Set(idx)
	i.loaded.Set(idx)
	return nil
}

// IsDirty reports whether the named field was Set since the last ClearDirty.
func (i *Interceptor) IsDirty(name string) bool {
	f, ok := i.meta.Field(name)
	return ok && i.dirty.Test(uint(f.Index()))
}

// Dirty returns the dirty fields in declaration order.
func (i *Interceptor) Dirty() []*meta.FieldMeta {
	out := make([]*meta.FieldMeta, 0, i.dirty.Count())
	for idx, ok := i.dirty.NextSet(0); ok; idx, ok = i.dirty.NextSet(idx + 1) {
		out = append(out, &i.meta.Fields[idx])
	}
	return out
}

// Original returns the value a dirty field held before its first Set. It
// reports false for fields that were unloaded when first Set.
func (i *Interceptor) Original(name string) (any, bool) {
	f, ok := i.meta.Field(name)
	if !ok {
		return nil, false
	}
	v, ok := i.original[uint(f.Index())]
	return v, ok
}

// ClearDirty forgets every pending change once it has been written.
func (i *Interceptor) ClearDirty() {
	i.dirty.ClearAll()
	i.original = make(map[uint]any)
}
