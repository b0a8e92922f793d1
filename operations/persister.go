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
	"github.com/suparena/entitymapper/proxy"
)

// Persister is the default persistence.Persister. It stages writes in the
// context's batch; the context flushes them.
type Persister struct{}

var _ persistence.Persister = (*Persister)(nil)

// NewPersister creates a Persister.
func NewPersister() *Persister {
	return &Persister{}
}

// Persist stages the full state of the bound entity: its row (or wide-row
// cell), its counters as increments, and every cascaded join target that is
// not managed yet.
func (p *Persister) Persist(ctx context.Context, pc *persistence.Context) error {
	ctx, first, err := enterRow(ctx, pc)
	if err != nil || !first {
		return err
	}
	return p.persist(ctx, pc)
}

func (p *Persister) persist(ctx context.Context, pc *persistence.Context) error {
	entity := proxy.Unwrap(pc.Entity())
	if entity == nil {
		return errors.NewInvalidStateError(pc.EntityMeta().Name(), "no entity bound to the context")
	}
	fields := allFields(pc.EntityMeta())
	if err := p.cascade(ctx, pc, entity, fields); err != nil {
		return err
	}
	if err := writeRow(ctx, pc, entity, fields, true); err != nil {
		return err
	}
	return writeCounters(ctx, pc, entity, fields, nil)
}

type stagedRowsKey struct{}

// enterRow records the row bound to pc as written by the current operation.
// first is false when a cascade already reached it, which is how cyclic
// entity graphs terminate. The returned ctx carries the set.
func enterRow(ctx context.Context, pc *persistence.Context) (context.Context, bool, error) {
	rows, _ := ctx.Value(stagedRowsKey{}).(map[string]struct{})
	if rows == nil {
		rows = make(map[string]struct{})
		ctx = context.WithValue(ctx, stagedRowsKey{}, rows)
	}
	rowKey, err := pc.RowKey()
	if err != nil {
		return ctx, false, err
	}
	column, err := pc.ColumnName()
	if err != nil {
		return ctx, false, err
	}
	id := pc.EntityMeta().TableName + "\x00" + rowKey + "\x00" + column
	if _, seen := rows[id]; seen {
		pc.Logger().Debug("row already staged by this operation", "table", pc.EntityMeta().TableName, "row", rowKey)
		return ctx, false, nil
	}
	rows[id] = struct{}{}
	return ctx, true, nil
}

// Remove stages the deletion of the bound entity's row (or cell) and counters.
func (p *Persister) Remove(ctx context.Context, pc *persistence.Context) error {
	m := pc.EntityMeta()
	rowKey, err := pc.RowKey()
	if err != nil {
		return err
	}
	if m.IsClustered() {
		column, err := pc.ColumnName()
		if err != nil {
			return err
		}
		err = pc.WideRowMutator(m.TableName).DeleteColumn(ctx, rowKey, column)
		if err != nil {
			return err
		}
	} else if err := pc.EntityMutator(m.TableName).Delete(ctx, rowKey); err != nil {
		return err
	}
	if hasCounters(m) {
		key, err := counterKey(pc)
		if err != nil {
			return err
		}
		return pc.CounterMutator().Delete(ctx, key)
	}
	return nil
}

// writeRow stages fields of entity. A full write of a clustered entity
// replaces its cell; a partial one merges into the cell read back first.
func writeRow(ctx context.Context, pc *persistence.Context, entity any, fields []*meta.FieldMeta, full bool) error {
	m := pc.EntityMeta()
	values, err := encodeRow(pc, entity, fields)
	if err != nil {
		return err
	}
	rowKey, err := pc.RowKey()
	if err != nil {
		return err
	}
	if !m.IsClustered() {
		if len(values) == 0 {
			return nil
		}
		return pc.EntityMutator(m.TableName).Put(ctx, rowKey, values)
	}

	column, err := pc.ColumnName()
	if err != nil {
		return err
	}
	if !full {
		if len(values) == 0 {
			return nil
		}
		stored, err := readRow(ctx, pc, allFields(m))
		if err != nil {
			return err
		}
		cell := make(datastore.Row, len(stored)+len(values))
		for col, v := range stored {
			cell[col] = v
		}
		for col, v := range values {
			cell[col] = v
		}
		return pc.WideRowMutator(m.TableName).PutColumn(ctx, rowKey, column, cell)
	}
	return pc.WideRowMutator(m.TableName).PutColumn(ctx, rowKey, column, values)
}

// writeCounters stages the counter fields among fields as increments. The
// delta is the field value minus baseline, or the whole value when baseline
// is nil.
func writeCounters(ctx context.Context, pc *persistence.Context, entity any, fields []*meta.FieldMeta, baseline func(*meta.FieldMeta) (int64, error)) error {
	for _, f := range fields {
		if f.Kind != meta.Counter {
			continue
		}
		v, err := meta.GetValue(entity, f)
		if err != nil {
			return err
		}
		delta := reflect.ValueOf(v).Int()
		if baseline != nil {
			base, err := baseline(f)
			if err != nil {
				return err
			}
			delta -= base
		}
		if delta == 0 {
			continue
		}
		key, err := counterKey(pc)
		if err != nil {
			return err
		}
		if err := pc.CounterMutator().Increment(ctx, key, f.Column, delta); err != nil {
			return err
		}
	}
	return nil
}

// cascade persists the transient targets of cascading join fields through
// sibling contexts sharing pc's batch.
func (p *Persister) cascade(ctx context.Context, pc *persistence.Context, entity any, fields []*meta.FieldMeta) error {
	for _, f := range fields {
		if f.Kind != meta.Join || !f.Join.Cascade {
			continue
		}
		target, err := meta.GetValue(entity, f)
		if err != nil {
			return err
		}
		if target == nil || reflect.ValueOf(target).IsNil() || proxy.IsProxy(target) {
			continue
		}
		sub, err := pc.Duplicate(target)
		if err != nil {
			return fmt.Errorf("cascade %s.%s: %w", pc.EntityMeta().Name(), f.Name, err)
		}
		if err := p.Persist(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}
