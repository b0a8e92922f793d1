/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memtable

import (
	"context"
	"time"

	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/storagemodels"
)

type entityHandle struct {
	store *Store
	table string
}

func (h *entityHandle) Table() string { return h.table }

// GetRow returns the live columns of key, restricted to columns when given.
// A row with no live column is missing.
func (h *entityHandle) GetRow(ctx context.Context, key string, columns ...string) (datastore.Row, error) {
	s := h.store
	s.observeRead(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.entities[h.table]
	if !ok {
		return nil, nil
	}
	if !t.filter.TestString(key) {
		s.count(func(st *Stats) { st.BloomSkips++ })
		return nil, nil
	}
	r, ok := t.rows[key]
	if !ok {
		return nil, nil
	}
	values, err := liveColumns(r, s.now(), columns...)
	if err != nil || values == nil {
		return nil, err
	}
	return datastore.Row(values), nil
}

type wideRowHandle struct {
	store *Store
	table string
}

func (h *wideRowHandle) Table() string { return h.table }

func (h *wideRowHandle) Slice(ctx context.Context, key string, params storagemodels.SliceParams) ([]storagemodels.KeyValue, error) {
	s := h.store
	s.observeRead(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := h.row(key)
	if r == nil {
		return nil, nil
	}
	return slice(r, s.now(), params)
}

// Stream pages through the row in column order.
func (h *wideRowHandle) Stream(ctx context.Context, key string, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult {
	s := h.store
	s.observeRead(ctx)
	pager := datastore.Pager{
		Fetch: func(ctx context.Context, after string, limit int) ([]storagemodels.KeyValue, bool, error) {
			s.mu.RLock()
			defer s.mu.RUnlock()
			r := h.row(key)
			if r == nil {
				return nil, false, nil
			}
			cells, err := page(r, s.now(), after, limit+1)
			if err != nil {
				return nil, false, err
			}
			if len(cells) > limit {
				return cells[:limit], true, nil
			}
			return cells, false, nil
		},
	}
	return pager.Stream(ctx, opts...)
}

// row must be called with the store lock held.
func (h *wideRowHandle) row(key string) *wideRow {
	s := h.store
	t, ok := s.wide[h.table]
	if !ok {
		return nil
	}
	if !t.filter.TestString(key) {
		s.count(func(st *Stats) { st.BloomSkips++ })
		return nil
	}
	return t.rows[key]
}

func keyValue(c *cell, now time.Time) (storagemodels.KeyValue, error) {
	v, err := decode(c.data)
	if err != nil {
		return storagemodels.KeyValue{}, err
	}
	kv := storagemodels.KeyValue{Key: c.key, Value: v}
	if !c.expires.IsZero() {
		kv.TTL = c.expires.Sub(now)
	}
	return kv, nil
}

// slice walks the live cells of r within params.
func slice(r *wideRow, now time.Time, params storagemodels.SliceParams) ([]storagemodels.KeyValue, error) {
	var (
		out []storagemodels.KeyValue
		err error
	)
	visit := func(c *cell) bool {
		if !params.Reversed && params.End != "" && c.key > params.End {
			return false
		}
		if params.Reversed && params.Start != "" && c.key < params.Start {
			return false
		}
		if !c.live(now) {
			return true
		}
		var kv storagemodels.KeyValue
		if kv, err = keyValue(c, now); err != nil {
			return false
		}
		out = append(out, kv)
		return params.Limit <= 0 || len(out) < params.Limit
	}

	switch {
	case !params.Reversed && params.Start != "":
		r.cells.AscendGreaterOrEqual(&cell{key: params.Start}, visit)
	case !params.Reversed:
		r.cells.Ascend(visit)
	case params.End != "":
		r.cells.DescendLessOrEqual(&cell{key: params.End}, visit)
	default:
		r.cells.Descend(visit)
	}
	return out, err
}

// page returns up to limit live cells strictly after the column after.
func page(r *wideRow, now time.Time, after string, limit int) ([]storagemodels.KeyValue, error) {
	var (
		out []storagemodels.KeyValue
		err error
	)
	r.cells.AscendGreaterOrEqual(&cell{key: after}, func(c *cell) bool {
		if (after != "" && c.key == after) || !c.live(now) {
			return true
		}
		var kv storagemodels.KeyValue
		if kv, err = keyValue(c, now); err != nil {
			return false
		}
		out = append(out, kv)
		return len(out) < limit
	})
	return out, err
}

type counterHandle struct {
	store *Store
}

func (h counterHandle) GetCounter(ctx context.Context, key, column string) (int64, error) {
	s := h.store
	s.observeRead(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[key][column], nil
}
