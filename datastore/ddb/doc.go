/*
Package ddb provides a DynamoDB implementation of datastore.Backend.

Every logical table lives in one physical DynamoDB table (single-table
design). Where an item goes is decided by the index map registered for the
logical table; tables without one use

	{"PK": "<table>#{key}", "SK": "{column}"}

Entity rows and counter rows are single items whose {column} is "#". Wide
rows store one item per cell, so a slice is a Query over the sort key.

Index maps may name secondary index keys built from the written columns:

	registry.RegisterIndexMap("users", map[string]string{
	    "PK":     "USER#{key}",
	    "SK":     "PROFILE",
	    "GSI1PK": "EMAIL#{email}",
	})

A flush becomes TransactWriteItems calls of at most MaxTransactItems
actions. Each call is atomic; a flush spanning several calls is not. Write
guards are DynamoDB condition expressions, and a failed guard surfaces as an
errors.ConditionFailedError.

Reads under a strong consistency level in the context use ConsistentRead.
Items carry an ExpiresAt attribute when written with a TTL; expired items are
filtered on read since DynamoDB removes them lazily.
*/
package ddb
