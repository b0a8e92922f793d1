/*
Package storagemodels defines the data structures shared by the persistence
layer and the storage backends.

Key Types:

Options:
Per-operation settings carried by a persistence context:

	opts := storagemodels.NewOptions(
	    storagemodels.WithConsistencyLevel(consistency.Quorum),
	    storagemodels.WithTTL(time.Hour),
	)

Mutation:
Every staged change to one (table, row) pair. A flush hands the ordered list of
mutations to the backend's Applier.

KeyValue:
One wide-row cell with its remaining TTL, returned by slice and stream queries.

StreamResult:
Results from streaming wide rows with metadata:

	type StreamResult struct {
	    Item  KeyValue   // The streamed cell
	    Error error      // Item-specific error, if any
	    Meta  StreamMeta // Metadata about this item
	}

StreamOptions:
Configuration for streaming behavior:

	opts := []StreamOption{
	    WithBufferSize(100),
	    WithPageSize(25),
	    WithMaxRetries(3),
	    WithProgressHandler(progressFunc),
	}
*/
package storagemodels
