/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package operations

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/entitymapper/datastore"
	dsmock "github.com/suparena/entitymapper/datastore/mock"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/flush"
	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/persistence"
	"github.com/suparena/entitymapper/proxy"
	"github.com/suparena/entitymapper/registry"
	"github.com/suparena/entitymapper/storagemodels"
)

type user struct {
	ID      string
	Name    string
	Email   string
	Bio     string
	Visits  int64
	Address *address
}

type address struct {
	ID   string
	City string
}

type account struct {
	ID    string
	Owner string
	Views int64
}

type peer struct {
	ID   string
	Name string
	Peer *peer
}

type eventKey struct {
	Stream string
	Seq    int64
}

type event struct {
	Key     eventKey
	Kind    string
	Payload string
}

var (
	userMeta = meta.MustNew[user]("users", "ID",
		meta.WithField("Name", "name"),
		meta.WithField("Email", "email"),
		meta.WithLazyField("Bio", "bio"),
		meta.WithCounterField("Visits", false),
		meta.WithJoinField("Address", "address_id", true, false),
	)
	addressMeta = meta.MustNew[address]("addresses", "ID", meta.WithField("City", "city"))
	accountMeta = meta.MustNew[account]("accounts", "ID",
		meta.WithField("Owner", "owner"),
		meta.WithCounterField("Views", true),
	)
	peerMeta    = meta.MustNew[peer]("peers", "ID",
		meta.WithField("Name", "name"),
		meta.WithJoinField("Peer", "peer_id", true, false),
	)
	eventMeta = meta.MustNew[event]("events", "Key",
		meta.WithClustering("Stream", "Seq"),
		meta.WithField("Kind", "kind"),
		meta.WithLazyField("Payload", "payload"),
	)

	userType    = reflect.TypeOf(user{})
	accountType = reflect.TypeOf(account{})
	peerType    = reflect.TypeOf(peer{})
	eventType   = reflect.TypeOf(event{})
)

type fixture struct {
	backend *dsmock.Backend
	cfg     *persistence.Configuration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(userMeta)
	reg.MustRegister(addressMeta)
	reg.MustRegister(eventMeta)
	reg.MustRegister(accountMeta)
	reg.MustRegister(peerMeta)
	backend := dsmock.New()
	return &fixture{
		backend: backend,
		cfg:     Install(&persistence.Configuration{Handles: backend, Metas: reg}),
	}
}

func (f *fixture) context(t *testing.T, entity any) *persistence.Context {
	t.Helper()
	pc, err := persistence.NewContext(f.cfg, nil, flush.NewImmediate(f.backend), entity, storagemodels.Options{})
	require.NoError(t, err)
	return pc
}

func (f *fixture) contextForKey(t *testing.T, typ reflect.Type, pk any) *persistence.Context {
	t.Helper()
	pc, err := persistence.NewContextForKey(f.cfg, nil, flush.NewImmediate(f.backend), typ, pk, storagemodels.Options{})
	require.NoError(t, err)
	return pc
}

func (f *fixture) seedUser() {
	f.backend.SetRow("users", "u1", datastore.Row{"name": "Ada", "email": "ada@example.com", "bio": "mathematician", "address_id": "a1"})
	f.backend.SetRow("addresses", "a1", datastore.Row{"city": "London"})
	f.backend.SetCounter("users:u1", "Visits", 7)
}

func TestInstallKeepsProvidedCollaborators(t *testing.T) {
	loader := NewLoader()
	cfg := Install(&persistence.Configuration{Loader: loader})
	assert.Same(t, loader, cfg.Loader)
	assert.NotNil(t, cfg.Persister)
	assert.NotNil(t, cfg.Merger)
	assert.NotNil(t, cfg.Refresher)
	assert.NotNil(t, cfg.Initializer)
}

func TestPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("row counters and cascade in one flush", func(t *testing.T) {
		f := newFixture(t)
		u := &user{ID: "u1", Name: "Ada", Email: "ada@example.com", Visits: 3, Address: &address{ID: "a1", City: "London"}}

		require.NoError(t, f.context(t, u).Persist(ctx))

		assert.Equal(t, datastore.Row{"name": "Ada", "email": "ada@example.com", "bio": "", "address_id": "a1"}, f.backend.Row("users", "u1"))
		assert.Equal(t, datastore.Row{"city": "London"}, f.backend.Row("addresses", "a1"))
		assert.Equal(t, int64(3), f.backend.Counter("users:u1", "Visits"))
		assert.Equal(t, 1, f.backend.ApplyCount(), "cascaded writes share the flush")
	})

	t.Run("empty join stores nil", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.context(t, &user{ID: "u2", Name: "Lin"}).Persist(ctx))

		row := f.backend.Row("users", "u2")
		require.NotNil(t, row)
		assert.Nil(t, row["address_id"])
		assert.Equal(t, int64(0), f.backend.Counter("users:u2", "Visits"))
	})

	t.Run("clustered entity is a wide-row cell", func(t *testing.T) {
		f := newFixture(t)
		e := &event{Key: eventKey{Stream: "s1", Seq: 4}, Kind: "opened", Payload: "{}"}

		require.NoError(t, f.context(t, e).Persist(ctx))

		cell, ok := f.backend.Cell("events", "s1", "4")
		require.True(t, ok)
		assert.Equal(t, map[string]any{"kind": "opened", "payload": "{}"}, cell)
	})

	t.Run("cyclic cascade writes each row once", func(t *testing.T) {
		f := newFixture(t)
		a := &peer{ID: "p1", Name: "left"}
		b := &peer{ID: "p2", Name: "right", Peer: a}
		a.Peer = b

		require.NoError(t, f.context(t, a).Persist(ctx))

		assert.Equal(t, datastore.Row{"name": "left", "peer_id": "p2"}, f.backend.Row("peers", "p1"))
		assert.Equal(t, datastore.Row{"name": "right", "peer_id": "p1"}, f.backend.Row("peers", "p2"))
		assert.Equal(t, 1, f.backend.ApplyCount())
	})

	t.Run("self reference", func(t *testing.T) {
		f := newFixture(t)
		a := &peer{ID: "p1", Name: "solo"}
		a.Peer = a

		require.NoError(t, f.context(t, a).Persist(ctx))
		assert.Equal(t, datastore.Row{"name": "solo", "peer_id": "p1"}, f.backend.Row("peers", "p1"))
	})
}

func TestFind(t *testing.T) {
	ctx := context.Background()

	t.Run("eager fields joins and counters", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser()
		pc := f.contextForKey(t, userType, "u1")

		p, err := pc.Find(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, p)

		got, ok := proxy.As[user](p)
		require.True(t, ok)
		assert.Equal(t, "Ada", got.Name)
		assert.Equal(t, int64(7), got.Visits)
		require.NotNil(t, got.Address)
		assert.Equal(t, "London", got.Address.City)
		assert.Empty(t, got.Bio)
		assert.False(t, p.IsLoaded("Bio"))

		reads := f.backend.Reads()
		require.NotEmpty(t, reads)
		assert.Equal(t, []string{"name", "email", "address_id"}, reads[0].Columns)
	})

	t.Run("lazy field loads on first access", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser()
		p, err := f.contextForKey(t, userType, "u1").Find(ctx, nil)
		require.NoError(t, err)

		before := len(f.backend.Reads())
		bio, err := proxy.Field[string](ctx, p, "Bio")
		require.NoError(t, err)
		assert.Equal(t, "mathematician", bio)
		assert.True(t, p.IsLoaded("Bio"))

		_, err = p.Get(ctx, "Bio")
		require.NoError(t, err)
		assert.Len(t, f.backend.Reads(), before+1, "a loaded field is not read twice")
	})

	t.Run("missing row", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.contextForKey(t, userType, "nobody").Find(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("dangling join leaves the field nil", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetRow("users", "u3", datastore.Row{"name": "Eve", "address_id": "gone"})
		p, err := f.contextForKey(t, userType, "u3").Find(ctx, nil)
		require.NoError(t, err)
		got, _ := proxy.As[user](p)
		assert.Nil(t, got.Address)
	})

	t.Run("clustered entity", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetCell("events", "s1", "4", map[string]any{"kind": "opened", "payload": "{}"})
		f.backend.SetCell("events", "s1", "5", map[string]any{"kind": "closed"})

		p, err := f.contextForKey(t, eventType, eventKey{Stream: "s1", Seq: 4}).Find(ctx, nil)
		require.NoError(t, err)
		got, _ := proxy.As[event](p)
		assert.Equal(t, "opened", got.Kind)

		missing, err := f.contextForKey(t, eventType, eventKey{Stream: "s1", Seq: 9}).Find(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("backend failure", func(t *testing.T) {
		f := newFixture(t)
		f.backend.WithGetError(assert.AnError)
		_, err := f.contextForKey(t, userType, "u1").Find(ctx, nil)
		assert.True(t, errors.IsBackendError(err))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestGetReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedUser()

	p, err := f.contextForKey(t, userType, "u1").GetReference(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, f.backend.Reads(), "references do not touch storage")
	assert.Empty(t, p.Interceptor().AlreadyLoaded())

	name, err := p.Get(ctx, "Name")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	reads := f.backend.Reads()
	require.Len(t, reads, 1)
	assert.Equal(t, []string{"name"}, reads[0].Columns)
	assert.False(t, p.IsLoaded("Email"))
}

func TestMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("managed entity writes dirty fields only", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser()
		pc := f.contextForKey(t, userType, "u1")
		p, err := pc.Find(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, p.Set("Name", "Grace"))
		require.NoError(t, p.Set("Visits", int64(10)))

		merged, err := pc.Merge(ctx, p)
		require.NoError(t, err)
		assert.Same(t, p, merged)
		assert.Empty(t, p.Interceptor().Dirty())

		row := f.backend.Row("users", "u1")
		assert.Equal(t, "Grace", row["name"])
		assert.Equal(t, "ada@example.com", row["email"])
		assert.Equal(t, int64(10), f.backend.Counter("users:u1", "Visits"))

		applied := f.backend.Applied()
		require.Len(t, applied, 1)
		for _, mu := range applied[0] {
			switch mu.Kind {
			case storagemodels.EntityRow:
				assert.Equal(t, map[string]any{"name": "Grace"}, mu.Values)
			case storagemodels.CounterRow:
				assert.Equal(t, map[string]int64{"Visits": 3}, mu.Increments)
			}
		}
	})

	t.Run("clean proxy writes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser()
		pc := f.contextForKey(t, userType, "u1")
		p, err := pc.Find(ctx, nil)
		require.NoError(t, err)

		_, err = pc.Merge(ctx, p)
		require.NoError(t, err)
		assert.Zero(t, f.backend.ApplyCount())
	})

	t.Run("transient entity becomes managed", func(t *testing.T) {
		f := newFixture(t)
		u := &user{ID: "u2", Name: "Lin", Bio: "new"}
		pc := f.context(t, u)

		merged, err := pc.Merge(ctx, u)
		require.NoError(t, err)
		require.True(t, proxy.IsProxy(merged))
		assert.Same(t, u, proxy.Unwrap(merged))
		assert.True(t, merged.(*proxy.Proxy).Interceptor().IsFullyLoaded())
		assert.Equal(t, "new", f.backend.Row("users", "u2")["bio"])
		assert.Same(t, merged, pc.Entity())
	})

	t.Run("clustered merge keeps untouched cell columns", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetCell("events", "s1", "4", map[string]any{"kind": "opened", "payload": "{}"})
		pc := f.contextForKey(t, eventType, eventKey{Stream: "s1", Seq: 4})
		p, err := pc.Find(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, p.Set("Kind", "closed"))
		_, err = pc.Merge(ctx, p)
		require.NoError(t, err)

		cell, ok := f.backend.Cell("events", "s1", "4")
		require.True(t, ok)
		assert.Equal(t, "closed", cell.(datastore.Row)["kind"])
		assert.Equal(t, "{}", cell.(datastore.Row)["payload"])
	})

	t.Run("unloaded counter increments from the stored value", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetCounter("accounts:c1", "Views", 10)
		f.backend.SetRow("accounts", "c1", datastore.Row{"owner": "ada"})
		pc := f.contextForKey(t, accountType, "c1")
		p, err := pc.Find(ctx, nil)
		require.NoError(t, err)
		require.False(t, p.IsLoaded("Views"))

		require.NoError(t, p.Set("Views", int64(11)))
		_, err = pc.Merge(ctx, p)
		require.NoError(t, err)

		assert.Equal(t, int64(11), f.backend.Counter("accounts:c1", "Views"))
	})

	t.Run("counter set on a reference", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetCounter("accounts:c1", "Views", 10)
		pc := f.contextForKey(t, accountType, "c1")
		p, err := pc.GetReference(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, p.Set("Views", int64(4)))
		_, err = pc.Merge(ctx, p)
		require.NoError(t, err)

		assert.Equal(t, int64(4), f.backend.Counter("accounts:c1", "Views"))
	})

	t.Run("cyclic transient merge", func(t *testing.T) {
		f := newFixture(t)
		a := &peer{ID: "p1", Name: "left"}
		b := &peer{ID: "p2", Name: "right", Peer: a}
		a.Peer = b
		pc := f.context(t, a)

		merged, err := pc.Merge(ctx, a)
		require.NoError(t, err)
		assert.Same(t, a, proxy.Unwrap(merged))
		assert.Equal(t, "p2", f.backend.Row("peers", "p1")["peer_id"])
		assert.Equal(t, "p1", f.backend.Row("peers", "p2")["peer_id"])
	})

	t.Run("cyclic managed merge", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetRow("peers", "p1", datastore.Row{"name": "left", "peer_id": nil})
		f.backend.SetRow("peers", "p2", datastore.Row{"name": "right", "peer_id": nil})
		pc := f.contextForKey(t, peerType, "p1")
		p, err := pc.Find(ctx, nil)
		require.NoError(t, err)

		other := &peer{ID: "p2", Name: "right"}
		other.Peer = p.Entity().(*peer)
		require.NoError(t, p.Set("Peer", other))
		_, err = pc.Merge(ctx, p)
		require.NoError(t, err)

		assert.Equal(t, "p2", f.backend.Row("peers", "p1")["peer_id"])
		assert.Equal(t, "p1", f.backend.Row("peers", "p2")["peer_id"])
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("row and counters", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser()

		require.NoError(t, f.context(t, &user{ID: "u1"}).Remove(ctx))
		assert.Nil(t, f.backend.Row("users", "u1"))
		assert.Zero(t, f.backend.Counter("users:u1", "Visits"))
		assert.NotNil(t, f.backend.Row("addresses", "a1"), "removal does not cascade")
	})

	t.Run("clustered cell", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetCell("events", "s1", "4", map[string]any{"kind": "opened"})
		f.backend.SetCell("events", "s1", "5", map[string]any{"kind": "closed"})

		require.NoError(t, f.context(t, &event{Key: eventKey{Stream: "s1", Seq: 4}}).Remove(ctx))
		_, ok := f.backend.Cell("events", "s1", "4")
		assert.False(t, ok)
		_, ok = f.backend.Cell("events", "s1", "5")
		assert.True(t, ok)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("reloads loaded fields and drops changes", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser()
		pc := f.contextForKey(t, userType, "u1")
		p, err := pc.Find(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, p.Set("Email", "local@example.com"))
		f.backend.SetRow("users", "u1", datastore.Row{"name": "Ada L.", "email": "ada@example.com", "bio": "mathematician", "address_id": "a1"})
		f.backend.SetCounter("users:u1", "Visits", 8)

		require.NoError(t, pc.Refresh(ctx))
		got, _ := proxy.As[user](p)
		assert.Equal(t, "Ada L.", got.Name)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.Equal(t, int64(8), got.Visits)
		assert.Empty(t, p.Interceptor().Dirty())
		assert.False(t, p.IsLoaded("Bio"), "unloaded fields stay lazy")
	})

	t.Run("row removed since load", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser()
		pc := f.contextForKey(t, userType, "u1")
		_, err := pc.Find(ctx, nil)
		require.NoError(t, err)

		f.backend.Clear()
		err = pc.Refresh(ctx)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("plain entity", func(t *testing.T) {
		f := newFixture(t)
		err := f.context(t, &user{ID: "u1"}).Refresh(ctx)
		assert.True(t, errors.IsNotManaged(err))
	})
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedUser()
	pc := f.contextForKey(t, userType, "u1")
	p, err := pc.GetReference(ctx, nil)
	require.NoError(t, err)

	got, err := pc.Initialize(ctx, p)
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.True(t, p.Interceptor().IsFullyLoaded())

	u, _ := proxy.As[user](p)
	assert.Equal(t, "mathematician", u.Bio)
	assert.Equal(t, int64(7), u.Visits)
	require.NotNil(t, u.Address)
	assert.Equal(t, "London", u.Address.City)

	_, err = pc.Initialize(ctx, &user{ID: "u1"})
	assert.True(t, errors.IsNotManaged(err))
}

func TestLoadPropertyRowGone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedUser()
	pc := f.contextForKey(t, userType, "u1")
	p, err := pc.GetReference(ctx, nil)
	require.NoError(t, err)

	f.backend.Clear()
	_, err = p.Get(ctx, "Name")
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, p.IsLoaded("Name"))
}
