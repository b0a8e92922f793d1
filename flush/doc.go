/*
Package flush accumulates pending writes and submits them to a backend.

A Batch keeps one pending storagemodels.Mutation per (table, row), in the
order rows were first touched. Mutators obtained from the batch stage writes
for an entity table, a wide-row table or the counter store:

	batch := flush.NewImmediate(backend)
	users := batch.EntityMutator("users", opts)
	_ = users.Put(ctx, "42", map[string]any{"name": "Ada"})
	_ = batch.CounterMutator(opts).Increment(ctx, "users:42", "visits", 1)
	err := batch.Flush(ctx) // one Apply call with both mutations

In Batching mode Flush is a no-op and EndBatch submits. Duplicate hands out
another handle onto the same pending mutations so that a whole entity graph
commits together; Fork starts an isolated set.
*/
package flush
