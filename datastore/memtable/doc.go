/*
Package memtable is an embedded, in-process datastore.Backend.

Each logical table keeps its rows in memory: entity rows as maps of columns,
wide rows as btrees ordered by column name. Values are stored as
snappy-compressed JSON, so what a handle returns has the shape a remote
backend would return (numbers as int64 or float64, times as strings).

Writes follow last-write-wins on the mutation timestamp. A write older than
the stored column, or than the latest deletion of its row, is skipped and
logged. TTLs expire columns at read time; Purge reclaims them.

Mutations may carry a guard condition written in the expr language. It sees
the current row's columns by name, plus exists and row:

	storagemodels.WithCondition("!exists")
	storagemodels.WithCondition("exists && version == 3")

A failed guard aborts the whole batch with a ConditionFailedError.

Per-table bloom filters short-circuit lookups of keys never written.
*/
package memtable
