/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package meta

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/suparena/entitymapper/errors"
)

// KeySeparator joins the components of compound keys and clustering columns.
const KeySeparator = ":"

// Instantiate returns a new zero entity of the described type, as a pointer.
func Instantiate(m *EntityMeta) any {
	return reflect.New(m.Type).Interface()
}

func structOf(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errors.NewValidationError("entity", fmt.Sprintf("expected a non-nil pointer to a struct, got %T", entity))
	}
	return v.Elem(), nil
}

// GetValue reads field f of entity. entity must be a pointer to a struct.
func GetValue(entity any, f *FieldMeta) (any, error) {
	sv, err := structOf(entity)
	if err != nil {
		return nil, err
	}
	fv := sv.FieldByName(f.Name)
	if !fv.IsValid() {
		return nil, errors.NewValidationError(f.Name, fmt.Sprintf("no such field in %s", sv.Type().Name()))
	}
	return fv.Interface(), nil
}

// SetValue writes raw into field f of entity. Values read back from storage
// are coerced to the field type (float64 to int64, RFC 3339 strings to
// time.Time or strfmt.DateTime, and so on). A nil raw zeroes the field.
func SetValue(entity any, f *FieldMeta, raw any) error {
	sv, err := structOf(entity)
	if err != nil {
		return err
	}
	fv := sv.FieldByName(f.Name)
	if !fv.IsValid() || !fv.CanSet() {
		return errors.NewValidationError(f.Name, fmt.Sprintf("no settable field in %s", sv.Type().Name()))
	}
	if err := assign(fv, raw); err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", sv.Type().Name(), f.Name, err)
	}
	return nil
}

// PrimaryKey derives the primary key of entity through the id descriptor.
// A nil or zero id cannot identify a row and yields an InvalidStateError.
func PrimaryKey(entity any, m *EntityMeta) (any, error) {
	sv, err := structOf(entity)
	if err != nil {
		return nil, err
	}
	if sv.Type() != m.Type {
		return nil, errors.NewInvalidStateError(m.Name(), fmt.Sprintf("cannot derive a primary key from %s", sv.Type()))
	}
	fv := sv.FieldByName(m.ID.Name)
	if fv.IsZero() {
		return nil, errors.NewInvalidStateError(m.Name(), fmt.Sprintf("primary key %s is not set", m.ID.Name))
	}
	return fv.Interface(), nil
}

// SetPrimaryKey writes pk into the id field of entity.
func SetPrimaryKey(entity any, m *EntityMeta, pk any) error {
	return SetValue(entity, &m.ID, pk)
}

// RowKey formats the storage row key for pk. Clustered entities use the
// partition component only.
func RowKey(m *EntityMeta, pk any) (string, error) {
	if !m.IsClustered() {
		return FormatKey(pk)
	}
	sv, err := compound(m, pk)
	if err != nil {
		return "", err
	}
	return FormatKey(sv.FieldByName(m.Clustering.Partition).Interface())
}

// ColumnName formats the wide-row column that holds a clustered entity. It is
// empty for regular entities.
func ColumnName(m *EntityMeta, pk any) (string, error) {
	if !m.IsClustered() {
		return "", nil
	}
	sv, err := compound(m, pk)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(m.Clustering.Components))
	for i, name := range m.Clustering.Components {
		part, err := FormatKey(sv.FieldByName(name).Interface())
		if err != nil {
			return "", err
		}
		parts[i] = part
	}
	return strings.Join(parts, KeySeparator), nil
}

func compound(m *EntityMeta, pk any) (reflect.Value, error) {
	v := reflect.ValueOf(pk)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, errors.NewInvalidStateError(m.Name(), fmt.Sprintf("compound key expected, got %T", pk))
	}
	return v, nil
}

// FormatKey renders a scalar or compound primary key as a row key. Compound
// keys join their exported fields with KeySeparator in declaration order.
func FormatKey(pk any) (string, error) {
	v := reflect.ValueOf(pk)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", errors.NewInvalidStateError("", "nil primary key")
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return "", errors.NewInvalidStateError("", "nil primary key")
	}
	if _, ok := v.Interface().(encoding.TextMarshaler); !ok && v.Kind() == reflect.Struct {
		parts := make([]string, 0, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			part, err := FormatKey(v.Field(i).Interface())
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return strings.Join(parts, KeySeparator), nil
	}
	if tm, ok := v.Interface().(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return "", err
		}
		return string(text), nil
	}
	return fmt.Sprint(v.Interface()), nil
}

func assign(dst reflect.Value, raw any) error {
	if raw == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst.Addr().Interface(),
		WeaklyTypedInput: true,
		DecodeHook:       textUnmarshalerHook,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// textUnmarshalerHook lets string columns decode into any type implementing
// encoding.TextUnmarshaler (time.Time, strfmt.DateTime, uuid.UUID).
func textUnmarshalerHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	target := reflect.New(to)
	u, ok := target.Interface().(encoding.TextUnmarshaler)
	if !ok {
		return data, nil
	}
	if err := u.UnmarshalText([]byte(reflect.ValueOf(data).String())); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}
