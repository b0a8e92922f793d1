/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package operations

import (
	"context"
	"reflect"

	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/persistence"
	"github.com/suparena/entitymapper/proxy"
)

// Merger is the default persistence.Merger.
type Merger struct {
	persister *Persister
}

var _ persistence.Merger = (*Merger)(nil)

// NewMerger creates a Merger that persists transient entities through p.
// A nil p uses a fresh Persister.
func NewMerger(p *Persister) *Merger {
	if p == nil {
		p = NewPersister()
	}
	return &Merger{persister: p}
}

// Merge writes entity back. A proxy gets its dirty fields written and is
// returned as-is with a clean dirty set. A plain entity is persisted in full
// and returned as a new, fully loaded proxy bound to pc.
func (m *Merger) Merge(ctx context.Context, pc *persistence.Context, entity any) (any, error) {
	if !proxy.IsProxy(entity) && pc.Entity() != entity {
		sub, err := pc.Duplicate(entity)
		if err != nil {
			return nil, err
		}
		pc = sub
	}
	ctx, first, err := enterRow(ctx, pc)
	if err != nil {
		return nil, err
	}
	if !first {
		return entity, nil
	}
	if proxy.IsProxy(entity) {
		return m.mergeManaged(ctx, pc, entity.(*proxy.Proxy))
	}
	return m.mergeTransient(ctx, pc, entity)
}

func (m *Merger) mergeManaged(ctx context.Context, pc *persistence.Context, p *proxy.Proxy) (any, error) {
	interceptor := p.Interceptor()
	if interceptor.EntityMeta().Type != pc.EntityMeta().Type {
		return nil, errors.NewInvalidStateError(interceptor.EntityMeta().Name(), "merged into a context bound to "+pc.EntityMeta().Name())
	}
	dirty := interceptor.Dirty()
	if len(dirty) == 0 {
		return p, nil
	}
	entity := p.Entity()
	if err := m.cascade(ctx, pc, entity, dirty); err != nil {
		return nil, err
	}
	if err := writeRow(ctx, pc, entity, dirty, false); err != nil {
		return nil, err
	}
	if err := writeCounters(ctx, pc, entity, dirty, storedBaseline(ctx, pc, interceptor)); err != nil {
		return nil, err
	}
	pc.Logger().Debug("merged dirty fields", "pk", pc.PrimaryKey(), "fields", len(dirty))
	interceptor.ClearDirty()
	return p, nil
}

// storedBaseline resolves the value a dirty counter is measured against: the
// value it held when loaded, or the stored counter when it was set unloaded.
func storedBaseline(ctx context.Context, pc *persistence.Context, interceptor *proxy.Interceptor) func(*meta.FieldMeta) (int64, error) {
	return func(f *meta.FieldMeta) (int64, error) {
		if old, ok := interceptor.Original(f.Name); ok {
			if old == nil {
				return 0, nil
			}
			return reflect.ValueOf(old).Int(), nil
		}
		var stored int64
		err := pc.ExecuteWithReadConsistencyLevel(ctx, func(ctx context.Context) error {
			var err error
			stored, err = readCounter(ctx, pc, f)
			return err
		})
		return stored, err
	}
}

// mergeTransient persists entity through pc, which is bound to it.
func (m *Merger) mergeTransient(ctx context.Context, pc *persistence.Context, entity any) (any, error) {
	if err := m.persister.persist(ctx, pc); err != nil {
		return nil, err
	}
	managed, err := pc.Proxifier().BuildProxy(entity, pc, pc.EntityMeta().FieldNames()...)
	if err != nil {
		return nil, err
	}
	pc.SetEntity(managed)
	return managed, nil
}

// cascade merges the targets of dirty cascading join fields.
func (m *Merger) cascade(ctx context.Context, pc *persistence.Context, entity any, fields []*meta.FieldMeta) error {
	for _, f := range fields {
		if f.Kind != meta.Join || !f.Join.Cascade {
			continue
		}
		target, err := meta.GetValue(entity, f)
		if err != nil {
			return err
		}
		if target == nil || reflect.ValueOf(target).IsNil() {
			continue
		}
		sub, err := pc.Duplicate(target)
		if err != nil {
			return err
		}
		if _, err := m.Merge(ctx, sub, target); err != nil {
			return err
		}
	}
	return nil
}
