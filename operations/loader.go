/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package operations

import (
	"context"
	"fmt"
	"reflect"

	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/persistence"
)

// Loader is the default persistence.Loader.
type Loader struct{}

var _ persistence.Loader = (*Loader)(nil)

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load instantiates the entity bound to pc. Lazy contexts only set the
// primary key and never touch storage. Eager contexts read every non-lazy
// field and return (nil, nil) when the row does not exist.
func (l *Loader) Load(ctx context.Context, pc *persistence.Context, t reflect.Type) (any, error) {
	m := pc.EntityMeta()
	entity := meta.Instantiate(m)
	if err := meta.SetPrimaryKey(entity, m, pc.PrimaryKey()); err != nil {
		return nil, err
	}
	if !pc.IsLoadEagerFields() {
		return entity, nil
	}

	fields := m.EagerFields()
	row, err := readRow(ctx, pc, fields)
	if err != nil || row == nil {
		return nil, err
	}
	for _, f := range fields {
		if err := l.apply(ctx, pc, entity, f, row); err != nil {
			return nil, err
		}
	}
	pc.Logger().Debug("entity loaded", "pk", pc.PrimaryKey(), "fields", len(fields))
	return entity, nil
}

// LoadProperty reads field f of target. A row that disappeared since the
// entity was loaded yields a NotFoundError.
func (l *Loader) LoadProperty(ctx context.Context, pc *persistence.Context, target any, f *meta.FieldMeta) error {
	if f.Kind == meta.Counter {
		return l.apply(ctx, pc, target, f, nil)
	}
	row, err := readRow(ctx, pc, []*meta.FieldMeta{f})
	if err != nil {
		return err
	}
	if row == nil {
		key, _ := pc.RowKey()
		return errors.NewNotFoundError(pc.EntityMeta().Name(), key)
	}
	return l.apply(ctx, pc, target, f, row)
}

// apply stores the value of f read from row (or from the counter store) in target.
func (l *Loader) apply(ctx context.Context, pc *persistence.Context, target any, f *meta.FieldMeta, row datastore.Row) error {
	switch f.Kind {
	case meta.Counter:
		v, err := readCounter(ctx, pc, f)
		if err != nil {
			return err
		}
		return meta.SetValue(target, f, v)
	case meta.Join:
		ref, err := l.loadJoin(ctx, pc, f, row[f.Column])
		if err != nil {
			return err
		}
		return meta.SetValue(target, f, ref)
	default:
		return meta.SetValue(target, f, row[f.Column])
	}
}

type joinDepthKey struct{}

// loadJoin loads the entity referenced by a join column. The reference is
// read eagerly one level deep; its own joins only get their primary key, so
// cyclic references terminate. A dangling key leaves the field nil.
func (l *Loader) loadJoin(ctx context.Context, pc *persistence.Context, f *meta.FieldMeta, key any) (any, error) {
	if key == nil || key == "" {
		return nil, nil
	}
	sub, err := pc.DuplicateForKey(f.Join.Type, fmt.Sprint(key))
	if err != nil {
		return nil, err
	}
	if sub.EntityMeta().IsClustered() {
		return nil, errors.NewInvalidStateError(sub.EntityMeta().Name(), "clustered entities cannot be join targets")
	}
	if ctx.Value(joinDepthKey{}) != nil {
		sub.SetLoadEagerFields(false)
	}
	return l.Load(context.WithValue(ctx, joinDepthKey{}, true), sub, f.Join.Type)
}
