/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package flush

import (
	"context"

	"github.com/suparena/entitymapper/storagemodels"
)

// Mutator stages writes for one table of one store. The write level in
// effect on the ctx passed to each call is recorded on the mutation.
type Mutator struct {
	arena *arena
	table string
	kind  storagemodels.MutationKind
	opts  storagemodels.Options
}

// EntityMutator returns a mutator for regular entity rows of table.
func (b *Batch) EntityMutator(table string, opts storagemodels.Options) *Mutator {
	return &Mutator{arena: b.arena, table: table, kind: storagemodels.EntityRow, opts: opts}
}

// WideRowMutator returns a mutator for wide rows of table.
func (b *Batch) WideRowMutator(table string, opts storagemodels.Options) *Mutator {
	return &Mutator{arena: b.arena, table: table, kind: storagemodels.WideRow, opts: opts}
}

// CounterMutator returns a mutator for the counter store.
func (b *Batch) CounterMutator(opts storagemodels.Options) *Mutator {
	return &Mutator{arena: b.arena, table: storagemodels.CounterTable, kind: storagemodels.CounterRow, opts: opts}
}

// Table is the table the mutator writes to.
func (m *Mutator) Table() string {
	return m.table
}

// Put stages column values for an entity row. Later values for the same
// column replace earlier ones.
func (m *Mutator) Put(ctx context.Context, key string, values map[string]any) error {
	return m.arena.stage(ctx, m.ref(key), m.opts, func(mu *storagemodels.Mutation) {
		if mu.Values == nil {
			mu.Values = make(map[string]any, len(values))
		}
		for col, v := range values {
			mu.Values[col] = v
			mu.DeletedColumns = without(mu.DeletedColumns, col)
		}
	})
}

// PutColumn stages one wide-row cell.
func (m *Mutator) PutColumn(ctx context.Context, key, column string, value any) error {
	return m.arena.stage(ctx, m.ref(key), m.opts, func(mu *storagemodels.Mutation) {
		if mu.Columns == nil {
			mu.Columns = make(map[string]any)
		}
		mu.Columns[column] = value
		mu.DeletedColumns = without(mu.DeletedColumns, column)
	})
}

// Delete stages the removal of the whole row. Values staged before the
// delete are dropped; values staged after it replace the row.
func (m *Mutator) Delete(ctx context.Context, key string) error {
	return m.arena.stage(ctx, m.ref(key), m.opts, func(mu *storagemodels.Mutation) {
		mu.Delete = true
		mu.Values = nil
		mu.Columns = nil
		mu.DeletedColumns = nil
		mu.Increments = nil
	})
}

// DeleteColumn stages the removal of one column or cell.
func (m *Mutator) DeleteColumn(ctx context.Context, key, column string) error {
	return m.arena.stage(ctx, m.ref(key), m.opts, func(mu *storagemodels.Mutation) {
		delete(mu.Values, column)
		delete(mu.Columns, column)
		if !contains(mu.DeletedColumns, column) {
			mu.DeletedColumns = append(mu.DeletedColumns, column)
		}
	})
}

// Increment stages a counter delta. Deltas for the same column add up.
func (m *Mutator) Increment(ctx context.Context, key, column string, delta int64) error {
	return m.arena.stage(ctx, m.ref(key), m.opts, func(mu *storagemodels.Mutation) {
		if mu.Increments == nil {
			mu.Increments = make(map[string]int64)
		}
		mu.Increments[column] += delta
	})
}

func (m *Mutator) ref(key string) rowRef {
	return rowRef{table: m.table, kind: m.kind, row: key}
}

func contains(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}

func without(cols []string, col string) []string {
	for i, c := range cols {
		if c == col {
			return append(cols[:i:i], cols[i+1:]...)
		}
	}
	return cols
}
