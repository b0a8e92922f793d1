/*
Package entitymapper maps Go structs onto wide-column storage with lazy
loading, dirty tracking and per-table consistency levels.

Entities are described once with package meta and registered, then managed
through a Manager over a datastore.Backend:

	registry.Register(meta.MustNew[User]("users", "ID",
	    meta.WithField("Name", "name"),
	    meta.WithLazyField("Bio", "bio"),
	    meta.WithCounterField("Visits", false),
	))

	mgr, err := entitymapper.New(memtable.New())
	err = mgr.Persist(ctx, &User{ID: "42", Name: "Ada"})

	p, err := entitymapper.Find[User](ctx, mgr, "42") // nil, nil when missing
	bio, err := proxy.Field[string](ctx, p, "Bio")    // loaded on first access
	_ = p.Set("Name", "Grace")
	_, err = mgr.Merge(ctx, p)                        // writes only "name"

Writes made through a Batch reach the backend together:

	b := mgr.NewBatch()
	_ = b.Persist(ctx, a)
	_ = b.Remove(ctx, c)
	err = b.EndBatch(ctx)

Consistency levels come from the Policy of the manager, per table, and can
be overridden per call with storagemodels.WithConsistencyLevel.
*/
package entitymapper
