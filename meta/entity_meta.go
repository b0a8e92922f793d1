/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package meta

import (
	"fmt"
	"reflect"

	"github.com/suparena/entitymapper/errors"
)

// FieldKind tells the persistence layer where a field's value lives.
type FieldKind int

const (
	// Simple fields are columns of the entity row.
	Simple FieldKind = iota
	// Counter fields live in the dedicated counter store and are written as increments.
	Counter
	// Join fields reference another entity; the row stores its primary key.
	Join
)

func (k FieldKind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Join:
		return "join"
	default:
		return "simple"
	}
}

// JoinMeta describes the entity a Join field points at.
type JoinMeta struct {
	// Type is the struct type of the referenced entity.
	Type reflect.Type
	// Cascade persists the referenced entity together with its owner.
	Cascade bool
}

// FieldMeta describes one persisted field.
type FieldMeta struct {
	// Name is the Go struct field name.
	Name string
	// Column is the column (or attribute) name in storage.
	Column string
	Kind   FieldKind
	// Lazy fields are skipped by eager loads and fetched on first access.
	Lazy bool
	Join *JoinMeta

	index int
	typ   reflect.Type
}

// Index is the field's position within EntityMeta.Fields.
func (f *FieldMeta) Index() int {
	return f.index
}

// Type is the Go type of the field.
func (f *FieldMeta) Type() reflect.Type {
	return f.typ
}

// Clustering describes how a compound primary key maps onto a wide row: the
// Partition component selects the row, the remaining Components (in order)
// name the column holding the entity.
type Clustering struct {
	Partition  string
	Components []string
}

// EntityMeta is the immutable mapping description of one entity type.
type EntityMeta struct {
	// Type is the struct type (never a pointer).
	Type      reflect.Type
	TableName string
	ID        FieldMeta
	// Clustering is non-nil for clustered (wide-row) entities.
	Clustering *Clustering
	Fields     []FieldMeta

	byName map[string]int
}

// IsClustered reports whether the entity is stored as a cell of a wide row.
func (m *EntityMeta) IsClustered() bool {
	return m.Clustering != nil
}

// Name returns the entity type name used in log lines and errors.
func (m *EntityMeta) Name() string {
	return m.Type.Name()
}

// Field returns the descriptor of the named field. The id field is not listed.
func (m *EntityMeta) Field(name string) (*FieldMeta, bool) {
	i, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return &m.Fields[i], true
}

// FieldNames lists every persisted non-id field, in declaration order.
func (m *EntityMeta) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i := range m.Fields {
		names[i] = m.Fields[i].Name
	}
	return names
}

// EagerFields returns the fields read by a full load.
func (m *EntityMeta) EagerFields() []*FieldMeta {
	out := make([]*FieldMeta, 0, len(m.Fields))
	for i := range m.Fields {
		if !m.Fields[i].Lazy {
			out = append(out, &m.Fields[i])
		}
	}
	return out
}

// EagerFieldNames returns the names of EagerFields.
func (m *EntityMeta) EagerFieldNames() []string {
	fields := m.EagerFields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Option configures an EntityMeta under construction.
type Option func(*builder) error

type builder struct {
	meta *EntityMeta
}

// WithField maps a struct field to a column. An empty column defaults to the
// field name.
func WithField(name, column string) Option {
	return func(b *builder) error {
		return b.add(FieldMeta{Name: name, Column: column, Kind: Simple})
	}
}

// WithLazyField maps a struct field that is only loaded on first access.
func WithLazyField(name, column string) Option {
	return func(b *builder) error {
		return b.add(FieldMeta{Name: name, Column: column, Kind: Simple, Lazy: true})
	}
}

// WithCounterField maps an integer field to the counter store.
func WithCounterField(name string, lazy bool) Option {
	return func(b *builder) error {
		return b.add(FieldMeta{Name: name, Column: name, Kind: Counter, Lazy: lazy})
	}
}

// WithJoinField maps a pointer-to-entity field. The row stores the target's
// primary key under column; cascade persists the target with its owner.
func WithJoinField(name, column string, cascade, lazy bool) Option {
	return func(b *builder) error {
		return b.add(FieldMeta{Name: name, Column: column, Kind: Join, Lazy: lazy, Join: &JoinMeta{Cascade: cascade}})
	}
}

// WithClustering marks the entity as clustered. The id field must be a struct
// holding the partition component and the clustering components.
func WithClustering(partition string, components ...string) Option {
	return func(b *builder) error {
		idType := b.meta.ID.typ
		if idType.Kind() == reflect.Pointer {
			idType = idType.Elem()
		}
		if idType.Kind() != reflect.Struct {
			return errors.NewValidationError(b.meta.ID.Name, "clustered entities need a compound id")
		}
		for _, name := range append([]string{partition}, components...) {
			if _, ok := idType.FieldByName(name); !ok {
				return errors.NewValidationError(name, fmt.Sprintf("no such component in %s", idType.Name()))
			}
		}
		if len(components) == 0 {
			return errors.NewValidationError(b.meta.ID.Name, "clustered entities need at least one clustering component")
		}
		b.meta.Clustering = &Clustering{Partition: partition, Components: append([]string(nil), components...)}
		return nil
	}
}

func (b *builder) add(f FieldMeta) error {
	if f.Name == b.meta.ID.Name {
		return errors.NewValidationError(f.Name, "the id field is mapped implicitly")
	}
	if _, dup := b.meta.byName[f.Name]; dup {
		return errors.NewValidationError(f.Name, "field mapped twice")
	}
	sf, ok := b.meta.Type.FieldByName(f.Name)
	if !ok || !sf.IsExported() {
		return errors.NewValidationError(f.Name, fmt.Sprintf("no exported field in %s", b.meta.Type.Name()))
	}
	if f.Column == "" {
		f.Column = f.Name
	}
	f.typ = sf.Type
	switch f.Kind {
	case Counter:
		switch sf.Type.Kind() {
		case reflect.Int, reflect.Int32, reflect.Int64:
		default:
			return errors.NewValidationError(f.Name, "counter fields must be integers")
		}
	case Join:
		if sf.Type.Kind() != reflect.Pointer || sf.Type.Elem().Kind() != reflect.Struct {
			return errors.NewValidationError(f.Name, "join fields must be pointers to entities")
		}
		f.Join.Type = sf.Type.Elem()
	}
	f.index = len(b.meta.Fields)
	b.meta.byName[f.Name] = f.index
	b.meta.Fields = append(b.meta.Fields, f)
	return nil
}

// New builds the EntityMeta of T, stored in table and identified by idField.
func New[T any](table, idField string, opts ...Option) (*EntityMeta, error) {
	var zero T
	return NewFor(reflect.TypeOf(zero), table, idField, opts...)
}

// NewFor is the reflect.Type form of New. typ may be a struct or a pointer to one.
func NewFor(typ reflect.Type, table, idField string, opts ...Option) (*EntityMeta, error) {
	if typ == nil {
		return nil, errors.NewValidationError("type", "entity type is required")
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, errors.NewValidationError("type", fmt.Sprintf("%s is not a struct", typ))
	}
	if table == "" {
		return nil, errors.NewValidationError("table", "table name is required")
	}
	sf, ok := typ.FieldByName(idField)
	if !ok || !sf.IsExported() {
		return nil, errors.NewValidationError(idField, fmt.Sprintf("no exported id field in %s", typ.Name()))
	}

	b := &builder{meta: &EntityMeta{
		Type:      typ,
		TableName: table,
		ID:        FieldMeta{Name: idField, Column: idField, Kind: Simple, index: -1, typ: sf.Type},
		byName:    make(map[string]int),
	}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b.meta, nil
}

// MustNew is New for package-level registration; it panics on error.
func MustNew[T any](table, idField string, opts ...Option) *EntityMeta {
	m, err := New[T](table, idField, opts...)
	if err != nil {
		panic(fmt.Sprintf("meta: %v", err))
	}
	return m
}
