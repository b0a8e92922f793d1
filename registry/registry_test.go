/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/meta"
)

type widget struct {
	ID   string
	Name string
}

type gadget struct {
	ID int64
}

func TestRegistry(t *testing.T) {
	r := New()
	wm := meta.MustNew[widget]("widgets", "ID", meta.WithField("Name", "name"))
	require.NoError(t, r.Register(wm))
	require.NoError(t, r.Register(meta.MustNew[gadget]("gadgets", "ID")))

	t.Run("lookup by struct and pointer type", func(t *testing.T) {
		got, ok := r.Lookup(reflect.TypeOf(widget{}))
		require.True(t, ok)
		assert.Same(t, wm, got)

		got, ok = r.Lookup(reflect.TypeOf(&widget{}))
		require.True(t, ok)
		assert.Same(t, wm, got)
	})

	t.Run("lookup by name", func(t *testing.T) {
		got, ok := r.LookupName("widget")
		require.True(t, ok)
		assert.Same(t, wm, got)
		assert.Equal(t, []string{"gadget", "widget"}, r.Names())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, ok := r.Lookup(reflect.TypeOf(42))
		assert.False(t, ok)
		_, ok = r.Lookup(nil)
		assert.False(t, ok)

		_, err := r.EntityMeta(reflect.TypeOf(struct{}{}))
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("duplicates rejected", func(t *testing.T) {
		err := r.Register(meta.MustNew[widget]("other", "ID"))
		assert.True(t, errors.IsAlreadyExists(err))
		assert.Panics(t, func() { r.MustRegister(wm) })
		assert.True(t, errors.IsValidationError(r.Register(nil)))
	})
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()
	r.MustRegister(meta.MustNew[widget]("widgets", "ID"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.Lookup(reflect.TypeOf(widget{}))
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestIndexMapRegistry(t *testing.T) {
	idx := map[string]string{"PK": "W#{key}", "SK": "W#{key}"}
	RegisterIndexMap("widgets-test", idx)
	t.Cleanup(func() { UnregisterIndexMap("widgets-test") })

	idx["PK"] = "mutated"
	got, ok := GetIndexMap("widgets-test")
	require.True(t, ok)
	assert.Equal(t, "W#{key}", got["PK"], "registered maps are copied")

	_, ok = GetIndexMap("missing")
	assert.False(t, ok)
}
