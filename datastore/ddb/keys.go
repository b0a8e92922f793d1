/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/registry"
)

const (
	attrPK             = "PK"
	attrSK             = "SK"
	attrEntityType     = "EntityType"
	attrExpiresAt      = "ExpiresAt"
	attrWriteTimestamp = "WriteTimestamp"
	attrValue          = "Value"

	macroKey    = "key"
	macroColumn = "column"

	// rowSortKey is the sort key of entity rows and counter rows under the
	// default layout.
	rowSortKey = "#"
)

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// reserved attributes are never returned as row columns.
var reserved = map[string]bool{
	attrPK:             true,
	attrSK:             true,
	attrEntityType:     true,
	attrExpiresAt:      true,
	attrWriteTimestamp: true,
}

// indexMap returns the key templates of a logical table: the registered index
// map, or "<table>#{key}" / "{column}".
func indexMap(table string) map[string]string {
	if m, ok := registry.GetIndexMap(table); ok {
		return m
	}
	return map[string]string{attrPK: table + "#{key}", attrSK: "{column}"}
}

// expandMacros replaces every {name} macro of template with vars[name]. ok is
// false when a macro has no value.
func expandMacros(template string, vars map[string]string) (string, bool) {
	ok := true
	expanded := macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
		v, found := vars[strings.Trim(macro, "{}")]
		if !found {
			ok = false
		}
		return v
	})
	return expanded, ok
}

// keyLayout expands the index map of one table for one row.
type keyLayout struct {
	table     string
	templates map[string]string
}

func layoutFor(table string) keyLayout {
	return keyLayout{table: table, templates: indexMap(table)}
}

// key builds the primary key of the item holding column of rowKey. Entity and
// counter rows pass rowSortKey as column.
func (l keyLayout) key(rowKey, column string) (map[string]types.AttributeValue, error) {
	vars := map[string]string{macroKey: rowKey, macroColumn: column}
	key := make(map[string]types.AttributeValue, 2)
	for _, attr := range []string{attrPK, attrSK} {
		template, ok := l.templates[attr]
		if !ok {
			return nil, errors.NewValidationError(attr, fmt.Sprintf("index map of %s has no %s template", l.table, attr))
		}
		v, ok := expandMacros(template, vars)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: %s of %s/%s", errors.ErrNoIndexMap, attr, l.table, rowKey)
		}
		key[attr] = &types.AttributeValueMemberS{Value: v}
	}
	return key, nil
}

// partition returns the expanded partition key of rowKey.
func (l keyLayout) partition(rowKey string) (string, error) {
	v, ok := expandMacros(l.templates[attrPK], map[string]string{macroKey: rowKey})
	if !ok || v == "" {
		return "", fmt.Errorf("%w: PK of %s/%s", errors.ErrNoIndexMap, l.table, rowKey)
	}
	return v, nil
}

// column recovers the wide-row column from an expanded sort key. It inverts
// templates of the form "<prefix>{column}<suffix>".
func (l keyLayout) column(sk string) string {
	template := l.templates[attrSK]
	i := strings.Index(template, "{column}")
	if i < 0 {
		return sk
	}
	prefix, suffix := template[:i], template[i+len("{column}"):]
	return strings.TrimSuffix(strings.TrimPrefix(sk, prefix), suffix)
}

// sortKey expands the sort key of a wide-row column.
func (l keyLayout) sortKey(column string) string {
	v, _ := expandMacros(l.templates[attrSK], map[string]string{macroColumn: column})
	return v
}

// secondary expands the non-key templates (secondary index keys) whose
// macros all resolve against values. Unresolved templates are skipped.
func (l keyLayout) secondary(rowKey string, values map[string]any) map[string]string {
	vars := map[string]string{macroKey: rowKey}
	for col, v := range values {
		if v != nil {
			vars[col] = fmt.Sprint(v)
		}
	}
	out := make(map[string]string)
	for attr, template := range l.templates {
		if attr == attrPK || attr == attrSK {
			continue
		}
		if v, ok := expandMacros(template, vars); ok {
			out[attr] = v
		}
	}
	return out
}
