/*
Package persistence implements the per-operation persistence context.

A Context binds one entity, or one (type, primary key) pair, to its mapping,
a flush.Batch and the consistency levels of its table. Reads run under the
read level and writes under the write level; writes flush the batch once
their unit of work completes:

	pc, err := persistence.NewContext(cfg, nil, flush.NewImmediate(backend), user, storagemodels.Options{})
	err = pc.Persist(ctx)

	pc, err = persistence.NewContextForKey(cfg, nil, batch, reflect.TypeOf(User{}), "42", opts)
	p, err := pc.Find(ctx, nil) // nil, nil when the row does not exist

The storage work itself is delegated to the Loader, Persister, Merger,
Refresher and Initializer of the Configuration. Collaborators that walk an
entity graph call Duplicate to get a sibling context sharing the batch, so
the whole graph flushes together.
*/
package persistence
