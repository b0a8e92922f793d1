/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package flush

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore/mock"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/storagemodels"
)

var fixed = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixed }

func TestImmediateFlush(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	batch := NewImmediate(backend, WithClock(clock))

	users := batch.EntityMutator("users", storagemodels.Options{})
	require.NoError(t, users.Put(ctx, "1", map[string]any{"name": "Ada"}))
	require.NoError(t, batch.CounterMutator(storagemodels.Options{}).Increment(ctx, "users:1", "visits", 2))
	require.NoError(t, users.Put(ctx, "2", map[string]any{"name": "Grace"}))
	require.NoError(t, users.Put(ctx, "1", map[string]any{"email": "ada@example.com"}))

	pending := batch.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "1", pending[0].RowKey, "first staging fixes the flush position")
	assert.Equal(t, map[string]any{"name": "Ada", "email": "ada@example.com"}, pending[0].Values)
	assert.Equal(t, storagemodels.CounterRow, pending[1].Kind)
	assert.Equal(t, fixed, pending[0].Timestamp)

	require.NoError(t, batch.Flush(ctx))
	assert.Equal(t, 1, backend.ApplyCount())
	assert.Empty(t, batch.Pending(), "flush clears the batch")
	assert.Equal(t, "Ada", backend.Row("users", "1")["name"])
	assert.Equal(t, int64(2), backend.Counter("users:1", "visits"))

	t.Run("empty flush is a no-op", func(t *testing.T) {
		require.NoError(t, batch.Flush(ctx))
		require.NoError(t, batch.Flush(ctx))
		assert.Equal(t, 1, backend.ApplyCount())
	})
}

func TestBatchingMode(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	batch := NewBatching(backend)
	assert.Equal(t, Batching, batch.Mode())

	require.NoError(t, batch.EntityMutator("users", storagemodels.Options{}).Put(ctx, "1", map[string]any{"n": 1}))
	require.NoError(t, batch.Flush(ctx))
	assert.Equal(t, 0, backend.ApplyCount(), "batching mode defers to EndBatch")
	assert.Len(t, batch.Pending(), 1)

	require.NoError(t, batch.EndBatch(ctx))
	assert.Equal(t, 1, backend.ApplyCount())
	assert.Empty(t, batch.Pending())
}

func TestDuplicateSharesArena(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	batch := NewImmediate(backend)
	dup := batch.Duplicate()

	assert.Equal(t, batch.ID(), dup.ID())
	require.NoError(t, batch.EntityMutator("users", storagemodels.Options{}).Put(ctx, "1", map[string]any{"n": 1}))
	require.NoError(t, dup.EntityMutator("addresses", storagemodels.Options{}).Put(ctx, "9", map[string]any{"city": "Paris"}))

	assert.Len(t, batch.Pending(), 2)
	require.NoError(t, dup.Flush(ctx))
	require.Len(t, backend.Applied(), 1)
	assert.Len(t, backend.Applied()[0], 2, "writes of duplicated handles flush together")
	assert.Empty(t, batch.Pending())
}

func TestForkIsolatesArena(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	batch := NewImmediate(backend)
	fork := batch.Fork()

	assert.NotEqual(t, batch.ID(), fork.ID())
	require.NoError(t, fork.EntityMutator("users", storagemodels.Options{}).Put(ctx, "1", map[string]any{"n": 1}))
	assert.Empty(t, batch.Pending())
	assert.Len(t, fork.Pending(), 1)

	fork.Discard()
	assert.Empty(t, fork.Pending())
	require.NoError(t, fork.Flush(ctx))
	assert.Equal(t, 0, backend.ApplyCount())
}

func TestMutatorCoalescing(t *testing.T) {
	ctx := context.Background()
	batch := NewImmediate(mock.New(), WithClock(clock))
	users := batch.EntityMutator("users", storagemodels.Options{})

	t.Run("delete drops earlier values", func(t *testing.T) {
		require.NoError(t, users.Put(ctx, "1", map[string]any{"a": 1}))
		require.NoError(t, users.Delete(ctx, "1"))
		m := batch.Pending()[0]
		assert.True(t, m.Delete)
		assert.Empty(t, m.Values)
	})

	t.Run("put after delete replaces the row", func(t *testing.T) {
		require.NoError(t, users.Put(ctx, "1", map[string]any{"b": 2}))
		m := batch.Pending()[0]
		assert.True(t, m.Delete)
		assert.Equal(t, map[string]any{"b": 2}, m.Values)
	})

	t.Run("column deletes and puts cancel out", func(t *testing.T) {
		require.NoError(t, users.DeleteColumn(ctx, "2", "bio"))
		require.NoError(t, users.DeleteColumn(ctx, "2", "bio"))
		assert.Equal(t, []string{"bio"}, batch.Pending()[1].DeletedColumns)
		require.NoError(t, users.Put(ctx, "2", map[string]any{"bio": "hi"}))
		assert.Empty(t, batch.Pending()[1].DeletedColumns)
	})

	t.Run("increments add up", func(t *testing.T) {
		counters := batch.CounterMutator(storagemodels.Options{})
		require.NoError(t, counters.Increment(ctx, "users:1", "visits", 2))
		require.NoError(t, counters.Increment(ctx, "users:1", "visits", -5))
		assert.Equal(t, int64(-3), batch.Pending()[2].Increments["visits"])
	})

	t.Run("wide row cells", func(t *testing.T) {
		timeline := batch.WideRowMutator("timeline", storagemodels.Options{})
		require.NoError(t, timeline.PutColumn(ctx, "u1", "001", "x"))
		require.NoError(t, timeline.DeleteColumn(ctx, "u1", "002"))
		m := batch.Pending()[3]
		assert.Equal(t, storagemodels.WideRow, m.Kind)
		assert.Equal(t, map[string]any{"001": "x"}, m.Columns)
		assert.Equal(t, []string{"002"}, m.DeletedColumns)
		assert.Equal(t, "timeline", timeline.Table())
	})

	t.Run("empty row key", func(t *testing.T) {
		assert.True(t, errors.IsValidationError(users.Put(ctx, "", map[string]any{"a": 1})))
	})
}

func TestMutationCarriesLevelAndOptions(t *testing.T) {
	backend := mock.New()
	batch := NewImmediate(backend, WithClock(clock))
	ts := fixed.Add(-time.Hour)
	users := batch.EntityMutator("users", storagemodels.NewOptions(
		storagemodels.WithTTL(time.Minute),
		storagemodels.WithTimestamp(ts),
		storagemodels.WithCondition("version == 1"),
	))

	quorum := consistency.ContextWithWriteLevel(context.Background(), consistency.Quorum)
	require.NoError(t, users.Put(quorum, "1", map[string]any{"a": 1}))
	one := consistency.ContextWithWriteLevel(context.Background(), consistency.One)
	require.NoError(t, users.Put(one, "1", map[string]any{"b": 2}))

	m := batch.Pending()[0]
	assert.Equal(t, consistency.Quorum, m.Level, "the strongest staged level wins")
	assert.Equal(t, time.Minute, m.TTL)
	assert.Equal(t, ts, m.Timestamp)
	assert.Equal(t, "version == 1", m.Condition)
}

func TestFlushFailure(t *testing.T) {
	ctx := context.Background()
	boom := fmt.Errorf("backend down")
	backend := mock.New().WithApplyError(boom)
	batch := NewImmediate(backend)

	require.NoError(t, batch.EntityMutator("users", storagemodels.Options{}).Delete(ctx, "1"))
	err := batch.Flush(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, batch.Pending(), "a failed flush is not retried")

	noApplier := NewImmediate(nil)
	require.NoError(t, noApplier.EntityMutator("users", storagemodels.Options{}).Delete(ctx, "1"))
	assert.True(t, errors.IsInvalidState(noApplier.Flush(ctx)))
}
