/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memtable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/btree"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/storagemodels"
)

// Apply applies mutations atomically. Every guard condition is checked first;
// when one fails nothing is written and a ConditionFailedError is returned.
func (s *Store) Apply(ctx context.Context, mutations []storagemodels.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for i := range mutations {
		mu := &mutations[i]
		if mu.Condition == "" {
			continue
		}
		current, err := s.currentRow(mu, now)
		if err != nil {
			return err
		}
		if err := s.conds.check("apply", mu.Condition, current); err != nil {
			if errors.IsConditionFailed(err) {
				s.count(func(st *Stats) { st.ConditionFailures++ })
				s.logger.Warn("write condition failed", "table", mu.Table, "key", mu.RowKey, "condition", mu.Condition)
			}
			return err
		}
	}

	for i := range mutations {
		mu := &mutations[i]
		var err error
		switch mu.Kind {
		case storagemodels.CounterRow:
			s.applyCounter(mu)
		case storagemodels.WideRow:
			err = s.applyWide(mu, now)
		default:
			err = s.applyEntity(mu, now)
		}
		if err != nil {
			return fmt.Errorf("apply %s %s/%s: %w", mu.Kind, mu.Table, mu.RowKey, err)
		}
		s.count(func(st *Stats) { st.Writes[mu.Level]++ })
	}
	s.logger.Debug("applied mutations", "count", len(mutations))
	return nil
}

func writeTime(mu *storagemodels.Mutation, now time.Time) time.Time {
	if mu.Timestamp.IsZero() {
		return now
	}
	return mu.Timestamp
}

func expiry(mu *storagemodels.Mutation, now time.Time) time.Time {
	if mu.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(mu.TTL)
}

func (s *Store) stale(mu *storagemodels.Mutation, column string) {
	s.count(func(st *Stats) { st.StaleWrites++ })
	s.logger.Warn("stale write skipped", "table", mu.Table, "key", mu.RowKey, "column", column)
}

func (s *Store) applyEntity(mu *storagemodels.Mutation, now time.Time) error {
	t := s.entityTable(mu.Table)
	ts := writeTime(mu, now)
	r, ok := t.rows[mu.RowKey]
	if !ok {
		r = &row{columns: make(map[string]column)}
		t.rows[mu.RowKey] = r
	}

	if mu.Delete && !ts.Before(r.deletedAt) {
		r.deletedAt = ts
		for col, c := range r.columns {
			if !c.ts.After(ts) {
				delete(r.columns, col)
			}
		}
	}
	for col, v := range mu.Values {
		if existing, ok := r.columns[col]; (ok && existing.ts.After(ts)) || ts.Before(r.deletedAt) {
			s.stale(mu, col)
			continue
		}
		data, err := encode(v)
		if err != nil {
			return err
		}
		r.columns[col] = column{data: data, ts: ts, expires: expiry(mu, now)}
	}
	for _, col := range mu.DeletedColumns {
		if existing, ok := r.columns[col]; ok && !existing.ts.After(ts) {
			delete(r.columns, col)
		}
	}
	t.filter.AddString(mu.RowKey)
	return nil
}

func (s *Store) applyWide(mu *storagemodels.Mutation, now time.Time) error {
	t := s.wideTable(mu.Table)
	ts := writeTime(mu, now)
	r, ok := t.rows[mu.RowKey]
	if !ok {
		r = &wideRow{cells: btree.NewG[*cell](s.degree, cellLess)}
		t.rows[mu.RowKey] = r
	}

	if mu.Delete && !ts.Before(r.deletedAt) {
		r.deletedAt = ts
		var dead []*cell
		r.cells.Ascend(func(c *cell) bool {
			if !c.ts.After(ts) {
				dead = append(dead, c)
			}
			return true
		})
		for _, c := range dead {
			r.cells.Delete(c)
		}
	}
	for col, v := range mu.Columns {
		if existing, ok := r.cells.Get(&cell{key: col}); (ok && existing.ts.After(ts)) || ts.Before(r.deletedAt) {
			s.stale(mu, col)
			continue
		}
		data, err := encode(v)
		if err != nil {
			return err
		}
		r.cells.ReplaceOrInsert(&cell{key: col, column: column{data: data, ts: ts, expires: expiry(mu, now)}})
	}
	for _, col := range mu.DeletedColumns {
		if existing, ok := r.cells.Get(&cell{key: col}); ok && !existing.ts.After(ts) {
			r.cells.Delete(existing)
		}
	}
	t.filter.AddString(mu.RowKey)
	return nil
}

// applyCounter adds increments. Counters carry no timestamps or TTLs.
func (s *Store) applyCounter(mu *storagemodels.Mutation) {
	if mu.Delete {
		delete(s.counters, mu.RowKey)
	}
	if len(mu.Increments) == 0 {
		return
	}
	r, ok := s.counters[mu.RowKey]
	if !ok {
		r = make(map[string]int64, len(mu.Increments))
		s.counters[mu.RowKey] = r
	}
	for col, delta := range mu.Increments {
		r[col] += delta
	}
}

// currentRow decodes the live state a guard condition is evaluated against:
// the entity row, the wide-row cells by column, or the counters. A missing
// row is nil.
func (s *Store) currentRow(mu *storagemodels.Mutation, now time.Time) (map[string]any, error) {
	switch mu.Kind {
	case storagemodels.CounterRow:
		counters, ok := s.counters[mu.RowKey]
		if !ok {
			return nil, nil
		}
		out := make(map[string]any, len(counters))
		for col, v := range counters {
			out[col] = v
		}
		return out, nil
	case storagemodels.WideRow:
		t, ok := s.wide[mu.Table]
		if !ok {
			return nil, nil
		}
		r, ok := t.rows[mu.RowKey]
		if !ok {
			return nil, nil
		}
		return liveCells(r, now, storagemodels.SliceParams{})
	default:
		t, ok := s.entities[mu.Table]
		if !ok {
			return nil, nil
		}
		r, ok := t.rows[mu.RowKey]
		if !ok {
			return nil, nil
		}
		return liveColumns(r, now)
	}
}

func liveColumns(r *row, now time.Time, columns ...string) (map[string]any, error) {
	out := make(map[string]any, len(r.columns))
	live := 0
	for col, c := range r.columns {
		if !c.live(now) {
			continue
		}
		live++
		if len(columns) > 0 && !contains(columns, col) {
			continue
		}
		v, err := decode(c.data)
		if err != nil {
			return nil, err
		}
		out[col] = v
	}
	if live == 0 {
		return nil, nil
	}
	return out, nil
}

func liveCells(r *wideRow, now time.Time, params storagemodels.SliceParams) (map[string]any, error) {
	cells, err := slice(r, now, params)
	if err != nil || len(cells) == 0 {
		return nil, err
	}
	out := make(map[string]any, len(cells))
	for _, kv := range cells {
		out[kv.Key] = kv.Value
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
