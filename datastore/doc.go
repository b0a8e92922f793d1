/*
Package datastore defines the storage interfaces of the persistence layer.

Reads go through per-table handles resolved from a Registry:

	type EntityHandle interface {
	    Table() string
	    GetRow(ctx context.Context, key string, columns ...string) (Row, error)
	}

	type WideRowHandle interface {
	    Table() string
	    Slice(ctx context.Context, key string, params storagemodels.SliceParams) ([]storagemodels.KeyValue, error)
	    Stream(ctx context.Context, key string, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult
	}

Writes are staged by a flush.Batch and submitted as an ordered list of
storagemodels.Mutation through an Applier. Reads take their consistency level
from consistency.ReadLevel(ctx); mutations carry the write level they were
staged under.

Implementations:
  - memtable: embedded in-memory backend with TTL, timestamps and conditional writes
  - ddb: DynamoDB implementation using a single-table design
  - mock: recording backend with error injection for tests

Router dispatches tables to different backends behind one Backend.
*/
package datastore
