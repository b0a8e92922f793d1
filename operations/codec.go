/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package operations

import (
	"context"
	"encoding"
	"fmt"
	"reflect"

	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/persistence"
	"github.com/suparena/entitymapper/proxy"
	"github.com/suparena/entitymapper/storagemodels"
)

// encodeValue turns a field value into a backend-neutral column value.
// Nil pointers become nil and text marshalers (time.Time, strfmt.DateTime)
// become strings.
func encodeValue(v any) (any, error) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, nil
	}
	if tm, ok := rv.Interface().(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(text), nil
	}
	return rv.Interface(), nil
}

// joinKey returns the formatted primary key of the entity referenced by a
// join field, or nil when the field is empty.
func joinKey(pc *persistence.Context, target any) (any, error) {
	if target == nil || reflect.ValueOf(target).IsNil() {
		return nil, nil
	}
	m, err := pc.Configuration().Metas.EntityMeta(proxy.DeriveBaseType(target))
	if err != nil {
		return nil, err
	}
	pk, err := meta.PrimaryKey(proxy.Unwrap(target), m)
	if err != nil {
		return nil, err
	}
	return meta.FormatKey(pk)
}

// encodeColumn returns the row column value of a simple or join field.
func encodeColumn(pc *persistence.Context, entity any, f *meta.FieldMeta) (any, error) {
	v, err := meta.GetValue(entity, f)
	if err != nil {
		return nil, err
	}
	if f.Kind == meta.Join {
		return joinKey(pc, v)
	}
	return encodeValue(v)
}

// encodeRow returns the row columns of fields. Counter fields are skipped.
func encodeRow(pc *persistence.Context, entity any, fields []*meta.FieldMeta) (map[string]any, error) {
	row := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Kind == meta.Counter {
			continue
		}
		v, err := encodeColumn(pc, entity, f)
		if err != nil {
			return nil, err
		}
		row[f.Column] = v
	}
	return row, nil
}

func allFields(m *meta.EntityMeta) []*meta.FieldMeta {
	out := make([]*meta.FieldMeta, len(m.Fields))
	for i := range m.Fields {
		out[i] = &m.Fields[i]
	}
	return out
}

func counterKey(pc *persistence.Context) (string, error) {
	key, err := meta.FormatKey(pc.PrimaryKey())
	if err != nil {
		return "", err
	}
	return storagemodels.CounterRowKey(pc.EntityMeta().TableName, key), nil
}

func hasCounters(m *meta.EntityMeta) bool {
	for i := range m.Fields {
		if m.Fields[i].Kind == meta.Counter {
			return true
		}
	}
	return false
}

func rowColumns(fields []*meta.FieldMeta) []string {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Kind != meta.Counter {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// readRow reads the stored columns of the entity bound to pc. Clustered
// entities are read from their wide-row cell. A missing row is (nil, nil).
func readRow(ctx context.Context, pc *persistence.Context, fields []*meta.FieldMeta) (datastore.Row, error) {
	m := pc.EntityMeta()
	rowKey, err := pc.RowKey()
	if err != nil {
		return nil, err
	}
	if !m.IsClustered() {
		handle, err := pc.EntityHandle(m.TableName)
		if err != nil {
			return nil, err
		}
		row, err := handle.GetRow(ctx, rowKey, rowColumns(fields)...)
		if err != nil {
			return nil, errors.NewBackendError("get row", m.TableName, err)
		}
		return row, nil
	}

	column, err := pc.ColumnName()
	if err != nil {
		return nil, err
	}
	handle, err := pc.WideRowHandle(m.TableName)
	if err != nil {
		return nil, err
	}
	cells, err := handle.Slice(ctx, rowKey, storagemodels.SliceParams{Start: column, End: column, Limit: 1})
	if err != nil {
		return nil, errors.NewBackendError("slice", m.TableName, err)
	}
	if len(cells) == 0 || cells[0].Key != column {
		return nil, nil
	}
	return cellRow(cells[0].Value)
}

func cellRow(v any) (datastore.Row, error) {
	switch row := v.(type) {
	case datastore.Row:
		return row, nil
	case map[string]any:
		return datastore.Row(row), nil
	case nil:
		return datastore.Row{}, nil
	default:
		return nil, errors.NewValidationError("cell", fmt.Sprintf("unexpected wide-row cell value %T", v))
	}
}

// readCounter reads one counter field of the entity bound to pc.
func readCounter(ctx context.Context, pc *persistence.Context, f *meta.FieldMeta) (int64, error) {
	key, err := counterKey(pc)
	if err != nil {
		return 0, err
	}
	handle, err := pc.CounterHandle()
	if err != nil {
		return 0, err
	}
	v, err := handle.GetCounter(ctx, key, f.Column)
	if err != nil {
		return 0, errors.NewBackendError("get counter", storagemodels.CounterTable, err)
	}
	return v, nil
}
