/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"sync"
)

// Index maps describe how a logical table's rows become DynamoDB key
// attributes. Templates use {key} for the row key and {column} for the
// wide-row column; any other macro names a column of the written row, which
// is how secondary index keys are derived:
//
//	{"PK": "USER#{key}", "SK": "PROFILE", "GSI1PK": "EMAIL#{email}"}

var (
	indexMapRegistry = make(map[string]map[string]string)
	mu               sync.RWMutex
)

// RegisterIndexMap associates a logical table with an index map (PK, SK, etc.).
func RegisterIndexMap(table string, idxMap map[string]string) {
	copied := make(map[string]string, len(idxMap))
	for k, v := range idxMap {
		copied[k] = v
	}

	mu.Lock()
	defer mu.Unlock()
	indexMapRegistry[table] = copied
}

// GetIndexMap retrieves the index map for table, if any.
func GetIndexMap(table string) (map[string]string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := indexMapRegistry[table]
	return m, ok
}

// UnregisterIndexMap removes the index map for table.
func UnregisterIndexMap(table string) {
	mu.Lock()
	defer mu.Unlock()
	delete(indexMapRegistry, table)
}
