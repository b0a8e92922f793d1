/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"time"

	"github.com/suparena/entitymapper/consistency"
)

// CounterTable is the logical table holding every counter field. Counter rows
// are keyed by CounterRowKey.
const CounterTable = "entitymapper_counters"

// CounterRowKey returns the counter row of one entity.
func CounterRowKey(table, rowKey string) string {
	return table + ":" + rowKey
}

// Options are the per-operation settings a persistence context carries.
type Options struct {
	// ConsistencyLevel overrides the policy level for the context's table.
	ConsistencyLevel consistency.Level
	// TTL expires written columns after the given duration. Zero means never.
	TTL time.Duration
	// Timestamp orders concurrent writes. Zero lets the batch stamp the write.
	Timestamp time.Time
	// Condition guards writes. Its dialect belongs to the backend.
	Condition string
}

// Option is a functional option for Options.
type Option func(*Options)

// NewOptions applies opts over the zero Options.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithConsistencyLevel sets the consistency level override.
func WithConsistencyLevel(level consistency.Level) Option {
	return func(o *Options) {
		o.ConsistencyLevel = level
	}
}

// WithTTL sets the time to live of written columns.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.TTL = ttl
	}
}

// WithTimestamp sets the write timestamp.
func WithTimestamp(ts time.Time) Option {
	return func(o *Options) {
		o.Timestamp = ts
	}
}

// WithCondition sets the write guard.
func WithCondition(condition string) Option {
	return func(o *Options) {
		o.Condition = condition
	}
}

// MutationKind tells a backend which store a mutation targets.
type MutationKind int

const (
	// EntityRow mutations write columns of a regular entity row.
	EntityRow MutationKind = iota
	// WideRow mutations write cells of a wide row.
	WideRow
	// CounterRow mutations increment counters.
	CounterRow
)

func (k MutationKind) String() string {
	switch k {
	case WideRow:
		return "wide-row"
	case CounterRow:
		return "counter"
	default:
		return "entity"
	}
}

// Mutation is every staged change to one (table, row) pair.
type Mutation struct {
	Table  string
	Kind   MutationKind
	RowKey string
	// Delete removes the whole row before Values and Columns are applied.
	Delete bool
	// Values are entity row columns to write.
	Values map[string]any
	// Columns are wide-row cells to write.
	Columns map[string]any
	// DeletedColumns are removed from the row.
	DeletedColumns []string
	// Increments are counter deltas by counter column.
	Increments map[string]int64
	// Level is the write level the mutation was staged under.
	Level     consistency.Level
	TTL       time.Duration
	Timestamp time.Time
	Condition string
}

// IsEmpty reports whether the mutation changes nothing.
func (m *Mutation) IsEmpty() bool {
	return !m.Delete && len(m.Values) == 0 && len(m.Columns) == 0 &&
		len(m.DeletedColumns) == 0 && len(m.Increments) == 0
}

// KeyValue is one cell of a wide row.
type KeyValue struct {
	Key   string
	Value any
	// TTL is the remaining time to live, zero when the cell never expires.
	TTL time.Duration
}

// SliceParams bounds a wide-row slice query. Empty bounds are open.
type SliceParams struct {
	// Start is the first column, inclusive.
	Start string
	// End is the last column, inclusive.
	End      string
	Reversed bool
	// Limit caps the number of cells, zero means no limit.
	Limit int
}
