/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memtable

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/storagemodels"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(WithClock(c.Now), WithBloomEstimates(128, 0.01)), c
}

func getRow(t *testing.T, s *Store, table, key string, columns ...string) datastore.Row {
	t.Helper()
	h, err := s.FindEntityHandle(table)
	require.NoError(t, err)
	row, err := h.GetRow(context.Background(), key, columns...)
	require.NoError(t, err)
	return row
}

func put(table, key string, values map[string]any) storagemodels.Mutation {
	return storagemodels.Mutation{Table: table, Kind: storagemodels.EntityRow, RowKey: key, Values: values}
}

func TestEntityRows(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{
		put("users", "u1", map[string]any{"name": "Ada", "age": 36, "score": 1.5, "tags": []string{"a"}}),
	}))

	row := getRow(t, s, "users", "u1")
	assert.Equal(t, "Ada", row["name"])
	assert.Equal(t, int64(36), row["age"], "integral numbers decode as int64")
	assert.Equal(t, 1.5, row["score"])
	assert.Equal(t, []any{"a"}, row["tags"])

	assert.Equal(t, datastore.Row{"name": "Ada"}, getRow(t, s, "users", "u1", "name"))
	assert.Equal(t, datastore.Row{}, getRow(t, s, "users", "u1", "missing"), "a live row with no matching column is not missing")
	assert.Nil(t, getRow(t, s, "users", "nobody"))
	assert.Nil(t, getRow(t, s, "other", "u1"))

	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{
		{Table: "users", Kind: storagemodels.EntityRow, RowKey: "u1", DeletedColumns: []string{"tags"}},
	}))
	assert.NotContains(t, getRow(t, s, "users", "u1"), "tags")

	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{
		{Table: "users", Kind: storagemodels.EntityRow, RowKey: "u1", Delete: true},
	}))
	assert.Nil(t, getRow(t, s, "users", "u1"))
}

func TestBloomSkipsUnknownKeys(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Apply(context.Background(), []storagemodels.Mutation{put("users", "u1", map[string]any{"name": "Ada"})}))

	assert.True(t, s.entities["users"].filter.TestString("u1"), "bloom filters have no false negatives")
	assert.Nil(t, getRow(t, s, "users", "never-written"))
	assert.NotNil(t, getRow(t, s, "users", "u1"))
}

func TestLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s, c := newStore(t)
	newer := c.Now().Add(time.Minute)
	older := c.Now().Add(-time.Minute)

	m := put("users", "u1", map[string]any{"name": "new"})
	m.Timestamp = newer
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{m}))

	stale := put("users", "u1", map[string]any{"name": "old", "email": "e"})
	stale.Timestamp = older
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{stale}))

	row := getRow(t, s, "users", "u1")
	assert.Equal(t, "new", row["name"])
	assert.Equal(t, "e", row["email"], "columns without a newer value are written")
	assert.Equal(t, int64(1), s.Stats().StaleWrites)

	del := storagemodels.Mutation{Table: "users", Kind: storagemodels.EntityRow, RowKey: "u1", Delete: true, Timestamp: c.Now()}
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{del}))
	row = getRow(t, s, "users", "u1")
	assert.Equal(t, datastore.Row{"name": "new"}, row, "a deletion only removes older columns")

	late := put("users", "u1", map[string]any{"email": "late"})
	late.Timestamp = older
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{late}))
	assert.NotContains(t, getRow(t, s, "users", "u1"), "email", "writes older than the deletion are stale")
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	s, c := newStore(t)

	m := put("sessions", "s1", map[string]any{"token": "abc"})
	m.TTL = time.Minute
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{m}))
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{{
		Table: "timeline", Kind: storagemodels.WideRow, RowKey: "s1",
		Columns: map[string]any{"1": "x"}, TTL: time.Minute,
	}}))

	h, _ := s.FindWideRowHandle("timeline")
	cells, err := h.Slice(ctx, "s1", storagemodels.SliceParams{})
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, time.Minute, cells[0].TTL)

	c.Advance(30 * time.Second)
	assert.NotNil(t, getRow(t, s, "sessions", "s1"))

	c.Advance(time.Minute)
	assert.Nil(t, getRow(t, s, "sessions", "s1"))
	cells, err = h.Slice(ctx, "s1", storagemodels.SliceParams{})
	require.NoError(t, err)
	assert.Empty(t, cells)

	assert.Equal(t, 2, s.Purge())
	assert.Equal(t, int64(2), s.Stats().Expired)
}

func TestWideRowSlices(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{{
		Table: "events", Kind: storagemodels.WideRow, RowKey: "s1",
		Columns: map[string]any{"a": 1, "b": 2, "c": 3, "d": map[string]any{"kind": "x"}},
	}}))
	h, err := s.FindWideRowHandle("events")
	require.NoError(t, err)

	keys := func(cells []storagemodels.KeyValue) []string {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = c.Key
		}
		return out
	}

	tests := []struct {
		name   string
		params storagemodels.SliceParams
		want   []string
	}{
		{name: "all", params: storagemodels.SliceParams{}, want: []string{"a", "b", "c", "d"}},
		{name: "bounded", params: storagemodels.SliceParams{Start: "b", End: "c"}, want: []string{"b", "c"}},
		{name: "single", params: storagemodels.SliceParams{Start: "c", End: "c", Limit: 1}, want: []string{"c"}},
		{name: "limit", params: storagemodels.SliceParams{Limit: 2}, want: []string{"a", "b"}},
		{name: "reversed", params: storagemodels.SliceParams{Reversed: true}, want: []string{"d", "c", "b", "a"}},
		{name: "reversed bounded", params: storagemodels.SliceParams{Start: "b", End: "c", Reversed: true}, want: []string{"c", "b"}},
		{name: "open start", params: storagemodels.SliceParams{End: "b"}, want: []string{"a", "b"}},
		{name: "empty range", params: storagemodels.SliceParams{Start: "x"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells, err := h.Slice(ctx, "s1", tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(cells))
		})
	}

	cells, err := h.Slice(ctx, "s1", storagemodels.SliceParams{Start: "d", End: "d"})
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, map[string]any{"kind": "x"}, cells[0].Value)

	missing, err := h.Slice(ctx, "nope", storagemodels.SliceParams{})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestWideRowStream(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	columns := make(map[string]any)
	for _, k := range []string{"01", "02", "03", "04", "05"} {
		columns[k] = k
	}
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{{Table: "events", Kind: storagemodels.WideRow, RowKey: "s1", Columns: columns}}))
	h, _ := s.FindWideRowHandle("events")

	var progress []storagemodels.StreamProgress
	var got []string
	var pages []int
	for res := range h.Stream(ctx, "s1", storagemodels.WithPageSize(2), storagemodels.WithProgressHandler(func(p storagemodels.StreamProgress) {
		progress = append(progress, p)
	})) {
		require.NoError(t, res.Error)
		got = append(got, res.Item.Key)
		pages = append(pages, res.Meta.PageNumber)
	}

	assert.Equal(t, []string{"01", "02", "03", "04", "05"}, got)
	assert.Equal(t, []int{1, 1, 2, 2, 3}, pages)
	require.Len(t, progress, 3)
	assert.Equal(t, int64(5), progress[2].ItemsProcessed)
	assert.Equal(t, "05", progress[2].LastKey)
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	inc := func(delta int64) storagemodels.Mutation {
		return storagemodels.Mutation{Table: storagemodels.CounterTable, Kind: storagemodels.CounterRow, RowKey: "users:u1", Increments: map[string]int64{"visits": delta}}
	}
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{inc(3), inc(4)}))

	h, err := s.CounterHandle()
	require.NoError(t, err)
	v, err := h.GetCounter(ctx, "users:u1", "visits")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{{Table: storagemodels.CounterTable, Kind: storagemodels.CounterRow, RowKey: "users:u1", Delete: true}}))
	v, err = h.GetCounter(ctx, "users:u1", "visits")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestConditions(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	create := put("users", "u1", map[string]any{"name": "Ada", "version": 1})
	create.Condition = "!exists"
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{create}))

	err := s.Apply(ctx, []storagemodels.Mutation{put("users", "u2", map[string]any{"name": "Lin"}), create})
	assert.True(t, errors.IsConditionFailed(err))
	assert.Nil(t, getRow(t, s, "users", "u2"), "a failed guard aborts the whole batch")

	update := put("users", "u1", map[string]any{"name": "Grace", "version": 2})
	update.Condition = "exists && version == 1"
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{update}))
	assert.Equal(t, "Grace", getRow(t, s, "users", "u1")["name"])

	err = s.Apply(ctx, []storagemodels.Mutation{update})
	assert.True(t, errors.IsConditionFailed(err))
	assert.Equal(t, int64(2), s.Stats().ConditionFailures)

	bad := put("users", "u1", map[string]any{"name": "x"})
	bad.Condition = "version =="
	err = s.Apply(ctx, []storagemodels.Mutation{bad})
	assert.True(t, errors.IsValidationError(err))
}

func TestObservedLevels(t *testing.T) {
	s, _ := newStore(t)
	ctx := consistency.ContextWithReadLevel(context.Background(), consistency.Quorum)

	m := put("users", "u1", map[string]any{"name": "Ada"})
	m.Level = consistency.All
	require.NoError(t, s.Apply(ctx, []storagemodels.Mutation{m}))

	h, _ := s.FindEntityHandle("users")
	_, err := h.GetRow(ctx, "u1")
	require.NoError(t, err)
	_, err = h.GetRow(context.Background(), "u1")
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Reads[consistency.Quorum])
	assert.Equal(t, int64(1), stats.Reads[consistency.Unset])
	assert.Equal(t, int64(1), stats.Writes[consistency.All])
}
