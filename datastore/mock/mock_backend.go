/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides a recording in-memory Backend for testing
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/storagemodels"
)

// Read records one handle read and the level it ran under.
type Read struct {
	Table   string
	Key     string
	Columns []string
	Level   consistency.Level
}

// Backend is a mock implementation of datastore.Backend for testing. It
// applies mutations naively (no TTL, timestamps or conditions) and records
// every read and every applied batch.
type Backend struct {
	mu       sync.RWMutex
	rows     map[string]map[string]datastore.Row
	cells    map[string]map[string]map[string]any
	counters map[string]map[string]int64

	getError   error
	sliceError error
	applyError error
	streamFunc func(ctx context.Context, table, key string, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult

	reads   []Read
	applied [][]storagemodels.Mutation
}

var _ datastore.Backend = (*Backend)(nil)

// New creates a new mock Backend
func New() *Backend {
	return &Backend{
		rows:     make(map[string]map[string]datastore.Row),
		cells:    make(map[string]map[string]map[string]any),
		counters: make(map[string]map[string]int64),
	}
}

// WithGetError makes entity row and counter reads return an error
func (m *Backend) WithGetError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getError = err
	return m
}

// WithSliceError makes wide-row slices return an error
func (m *Backend) WithSliceError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sliceError = err
	return m
}

// WithApplyError makes Apply return an error without applying anything
func (m *Backend) WithApplyError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyError = err
	return m
}

// WithStreamFunc sets a custom stream function for testing
func (m *Backend) WithStreamFunc(f func(ctx context.Context, table, key string, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = f
	return m
}

func (m *Backend) FindEntityHandle(table string) (datastore.EntityHandle, error) {
	return &entityHandle{backend: m, table: table}, nil
}

func (m *Backend) FindWideRowHandle(table string) (datastore.WideRowHandle, error) {
	return &wideRowHandle{backend: m, table: table}, nil
}

func (m *Backend) CounterHandle() (datastore.CounterHandle, error) {
	return counterHandle{backend: m}, nil
}

// Apply records mutations and applies them in order.
func (m *Backend) Apply(ctx context.Context, mutations []storagemodels.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applyError != nil {
		return m.applyError
	}
	m.applied = append(m.applied, append([]storagemodels.Mutation(nil), mutations...))

	for _, mu := range mutations {
		switch mu.Kind {
		case storagemodels.CounterRow:
			row := m.counters[mu.RowKey]
			if row == nil || mu.Delete {
				row = make(map[string]int64)
				m.counters[mu.RowKey] = row
			}
			for col, delta := range mu.Increments {
				row[col] += delta
			}
		case storagemodels.WideRow:
			rows := m.cells[mu.Table]
			if rows == nil {
				rows = make(map[string]map[string]any)
				m.cells[mu.Table] = rows
			}
			if mu.Delete {
				delete(rows, mu.RowKey)
			}
			cells := rows[mu.RowKey]
			if cells == nil {
				cells = make(map[string]any)
			}
			for col, v := range mu.Columns {
				cells[col] = v
			}
			for _, col := range mu.DeletedColumns {
				delete(cells, col)
			}
			if len(cells) > 0 {
				rows[mu.RowKey] = cells
			} else {
				delete(rows, mu.RowKey)
			}
		default:
			rows := m.rows[mu.Table]
			if rows == nil {
				rows = make(map[string]datastore.Row)
				m.rows[mu.Table] = rows
			}
			if mu.Delete {
				delete(rows, mu.RowKey)
			}
			if len(mu.Values) == 0 && len(mu.DeletedColumns) == 0 {
				continue
			}
			row := rows[mu.RowKey]
			if row == nil {
				row = make(datastore.Row)
			}
			for col, v := range mu.Values {
				row[col] = v
			}
			for _, col := range mu.DeletedColumns {
				delete(row, col)
			}
			rows[mu.RowKey] = row
		}
	}
	return nil
}

// Helper methods for testing

// SetRow directly stores an entity row (for testing)
func (m *Backend) SetRow(table, key string, row datastore.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[table] == nil {
		m.rows[table] = make(map[string]datastore.Row)
	}
	m.rows[table][key] = copyRow(row)
}

// Row returns a copy of a stored entity row, or nil
func (m *Backend) Row(table, key string) datastore.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRow(m.rows[table][key])
}

// SetCell directly stores a wide-row cell (for testing)
func (m *Backend) SetCell(table, key, column string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cells[table] == nil {
		m.cells[table] = make(map[string]map[string]any)
	}
	if m.cells[table][key] == nil {
		m.cells[table][key] = make(map[string]any)
	}
	m.cells[table][key][column] = value
}

// Cell returns a stored wide-row cell
func (m *Backend) Cell(table, key, column string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cells[table][key][column]
	return v, ok
}

// SetCounter directly sets a counter (for testing)
func (m *Backend) SetCounter(key, column string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[key] == nil {
		m.counters[key] = make(map[string]int64)
	}
	m.counters[key][column] = value
}

// Counter returns a counter value
func (m *Backend) Counter(key, column string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key][column]
}

// Reads returns every recorded read
func (m *Backend) Reads() []Read {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Read(nil), m.reads...)
}

// Applied returns every applied batch, in order
func (m *Backend) Applied() [][]storagemodels.Mutation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]storagemodels.Mutation(nil), m.applied...)
}

// ApplyCount returns the number of Apply calls that succeeded
func (m *Backend) ApplyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.applied)
}

// Clear removes all data and recordings
func (m *Backend) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[string]map[string]datastore.Row)
	m.cells = make(map[string]map[string]map[string]any)
	m.counters = make(map[string]map[string]int64)
	m.reads = nil
	m.applied = nil
}

func (m *Backend) record(ctx context.Context, table, key string, columns []string) {
	level, _ := consistency.ReadLevel(ctx)
	m.reads = append(m.reads, Read{Table: table, Key: key, Columns: append([]string(nil), columns...), Level: level})
}

func copyRow(row datastore.Row) datastore.Row {
	if row == nil {
		return nil
	}
	out := make(datastore.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

type entityHandle struct {
	backend *Backend
	table   string
}

func (h *entityHandle) Table() string { return h.table }

func (h *entityHandle) GetRow(ctx context.Context, key string, columns ...string) (datastore.Row, error) {
	m := h.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(ctx, h.table, key, columns)
	if m.getError != nil {
		return nil, m.getError
	}
	row, ok := m.rows[h.table][key]
	if !ok {
		return nil, nil
	}
	if len(columns) == 0 {
		return copyRow(row), nil
	}
	out := make(datastore.Row, len(columns))
	for _, col := range columns {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out, nil
}

type wideRowHandle struct {
	backend *Backend
	table   string
}

func (h *wideRowHandle) Table() string { return h.table }

func (h *wideRowHandle) Slice(ctx context.Context, key string, params storagemodels.SliceParams) ([]storagemodels.KeyValue, error) {
	m := h.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(ctx, h.table, key, nil)
	if m.sliceError != nil {
		return nil, m.sliceError
	}
	cells := m.cells[h.table][key]
	cols := make([]string, 0, len(cells))
	for col := range cells {
		if params.Start != "" && col < params.Start {
			continue
		}
		if params.End != "" && col > params.End {
			continue
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	if params.Reversed {
		sort.Sort(sort.Reverse(sort.StringSlice(cols)))
	}
	if params.Limit > 0 && len(cols) > params.Limit {
		cols = cols[:params.Limit]
	}
	out := make([]storagemodels.KeyValue, len(cols))
	for i, col := range cols {
		out[i] = storagemodels.KeyValue{Key: col, Value: cells[col]}
	}
	return out, nil
}

// Stream returns a channel of results
func (h *wideRowHandle) Stream(ctx context.Context, key string, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult {
	h.backend.mu.RLock()
	streamFunc := h.backend.streamFunc
	h.backend.mu.RUnlock()
	if streamFunc != nil {
		return streamFunc(ctx, h.table, key, opts...)
	}

	// Default implementation streams the whole row as a single page
	resultChan := make(chan storagemodels.StreamResult, 10)
	go func() {
		defer close(resultChan)

		cells, err := h.Slice(ctx, key, storagemodels.SliceParams{})
		if err != nil {
			resultChan <- storagemodels.StreamResult{Error: err}
			return
		}
		for i, kv := range cells {
			select {
			case <-ctx.Done():
				return
			case resultChan <- storagemodels.StreamResult{
				Item: kv,
				Meta: storagemodels.StreamMeta{Index: int64(i), PageNumber: 1},
			}:
			}
		}
	}()
	return resultChan
}

type counterHandle struct {
	backend *Backend
}

func (h counterHandle) GetCounter(ctx context.Context, key, column string) (int64, error) {
	m := h.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(ctx, storagemodels.CounterTable, key, []string{column})
	if m.getError != nil {
		return 0, m.getError
	}
	return m.counters[key][column], nil
}
