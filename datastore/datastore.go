/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/entitymapper/storagemodels"
)

// Row is an entity row: column name to value. Values come back from storage
// in their decoded form (string, float64, bool, []any, map[string]any, ...).
type Row map[string]any

// EntityHandle reads regular entity rows of one table.
type EntityHandle interface {
	Table() string
	// GetRow returns the requested columns of the row, or every column when
	// none are named. A missing row is (nil, nil).
	GetRow(ctx context.Context, key string, columns ...string) (Row, error)
}

// WideRowHandle reads the cells of wide rows in one table.
type WideRowHandle interface {
	Table() string
	// Slice returns the cells of row key within params, in column order
	// (reversed on request). A missing row yields no cells.
	Slice(ctx context.Context, key string, params storagemodels.SliceParams) ([]storagemodels.KeyValue, error)
	// Stream pages through every cell of row key.
	Stream(ctx context.Context, key string, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult
}

// CounterHandle reads the counter store.
type CounterHandle interface {
	// GetCounter returns the counter column of row key. Counters that were
	// never incremented read as zero.
	GetCounter(ctx context.Context, key, column string) (int64, error)
}

// Applier submits flushed mutations, in order.
type Applier interface {
	Apply(ctx context.Context, mutations []storagemodels.Mutation) error
}

// Registry resolves storage handles by table name.
type Registry interface {
	FindEntityHandle(table string) (EntityHandle, error)
	FindWideRowHandle(table string) (WideRowHandle, error)
	CounterHandle() (CounterHandle, error)
}

// Backend is a complete storage implementation.
type Backend interface {
	Registry
	Applier
}
