/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/flush"
	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/proxy"
	"github.com/suparena/entitymapper/storagemodels"
)

// Context binds one entity (or one type and primary key) to its mapping, a
// mutation batch and the consistency levels in effect for its table. Every
// operation runs to completion, flush included, before returning.
//
// A Context and the proxies it builds are meant for a single goroutine.
// Independent contexts may run concurrently against the same backend.
type Context struct {
	cfg    *Configuration
	meta   *meta.EntityMeta
	batch  *flush.Batch
	scope  *consistency.Scope
	opts   storagemodels.Options
	logger *slog.Logger

	entity          any
	pk              any
	loadEagerFields bool

	handles *handleCache
}

var _ proxy.Context = (*Context)(nil)

// handleCache memoizes handle lookups per table name. Duplicated contexts
// share it.
type handleCache struct {
	mu      sync.Mutex
	entity  map[string]datastore.EntityHandle
	wide    map[string]datastore.WideRowHandle
	counter datastore.CounterHandle
}

func newHandleCache() *handleCache {
	return &handleCache{
		entity: make(map[string]datastore.EntityHandle),
		wide:   make(map[string]datastore.WideRowHandle),
	}
}

// NewContext binds a materialized entity, possibly a proxy. m may be nil, in
// which case it is looked up through cfg.Metas. The primary key is derived
// from the entity's id field.
func NewContext(cfg *Configuration, m *meta.EntityMeta, batch *flush.Batch, entity any, opts storagemodels.Options) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, errors.NewValidationError("entity", "entity is required")
	}
	m, err := resolveMeta(cfg, m, proxy.DeriveBaseType(entity))
	if err != nil {
		return nil, err
	}
	pk, err := meta.PrimaryKey(proxy.Unwrap(entity), m)
	if err != nil {
		return nil, err
	}
	return newContext(cfg, m, batch, entity, pk, opts, newHandleCache())
}

// NewContextForKey binds a type and primary key with no materialized entity.
// Entity returns nil until a Find populates it.
func NewContextForKey(cfg *Configuration, m *meta.EntityMeta, batch *flush.Batch, t reflect.Type, pk any, opts storagemodels.Options) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := resolveMeta(cfg, m, t)
	if err != nil {
		return nil, err
	}
	if pk == nil || reflect.ValueOf(pk).IsZero() {
		return nil, errors.NewInvalidStateError(m.Name(), "primary key is required")
	}
	return newContext(cfg, m, batch, nil, pk, opts, newHandleCache())
}

func resolveMeta(cfg *Configuration, m *meta.EntityMeta, t reflect.Type) (*meta.EntityMeta, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if m != nil {
		if t != nil && m.Type != t {
			return nil, errors.NewInvalidStateError(t.Name(), fmt.Sprintf("mapping describes %s", m.Name()))
		}
		return m, nil
	}
	found, err := cfg.Metas.EntityMeta(t)
	if err != nil {
		return nil, errors.NewInvalidStateError(fmt.Sprint(t), fmt.Sprintf("no entity mapping: %v", err))
	}
	return found, nil
}

func newContext(cfg *Configuration, m *meta.EntityMeta, batch *flush.Batch, entity, pk any, opts storagemodels.Options, handles *handleCache) (*Context, error) {
	if batch == nil {
		return nil, errors.NewValidationError("batch", "a mutation batch is required")
	}
	policy := cfg.policy()
	read, write := policy.ReadLevelFor(m.TableName), policy.WriteLevelFor(m.TableName)
	if opts.ConsistencyLevel.IsSet() {
		read, write = opts.ConsistencyLevel, opts.ConsistencyLevel
	}
	logger := cfg.logger().With("entity", m.Name(), "batch", batch.ID())
	return &Context{
		cfg:             cfg,
		meta:            m,
		batch:           batch,
		scope:           consistency.NewScope(read, write, consistency.WithLogger(logger)),
		opts:            opts,
		logger:          logger,
		entity:          entity,
		pk:              pk,
		loadEagerFields: true,
		handles:         handles,
	}, nil
}

// Persist stores a new entity and flushes. Managed entities (proxies) are
// rejected; use Merge for them.
func (c *Context) Persist(ctx context.Context) error {
	if c.entity == nil {
		return errors.NewInvalidStateError(c.meta.Name(), "no entity bound to the context")
	}
	if proxy.IsProxy(c.entity) {
		return errors.NewInvalidStateError(c.meta.Name(), "entity is already managed, merge it instead")
	}
	c.logger.Debug("persist", "pk", c.pk)
	return c.write(ctx, func(ctx context.Context) error {
		return c.cfg.Persister.Persist(ctx, c)
	})
}

// Merge reconciles entity with storage, flushes and returns the managed
// instance produced by the Merger.
func (c *Context) Merge(ctx context.Context, entity any) (any, error) {
	if entity == nil {
		return nil, errors.NewValidationError("entity", "entity is required")
	}
	c.logger.Debug("merge", "pk", c.pk)
	var merged any
	err := c.write(ctx, func(ctx context.Context) error {
		var err error
		merged, err = c.cfg.Merger.Merge(ctx, c, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Remove deletes the bound entity and flushes.
func (c *Context) Remove(ctx context.Context) error {
	c.logger.Debug("remove", "pk", c.pk)
	return c.write(ctx, func(ctx context.Context) error {
		return c.cfg.Persister.Remove(ctx, c)
	})
}

// write runs work and the flush under the write scope. A failed unit of work
// drops what it staged when the batch submits immediately; batching callers
// keep their pending writes and decide.
func (c *Context) write(ctx context.Context, work consistency.Work) error {
	return c.scope.ExecuteWithWriteLevel(ctx, func(ctx context.Context) error {
		if err := work(ctx); err != nil {
			if c.batch.Mode() == flush.Immediate {
				c.batch.Discard()
			}
			return err
		}
		return c.batch.Flush(ctx)
	})
}

// Find loads the bound entity as type t and returns it as a proxy, which
// becomes the context's entity. A missing row is (nil, nil). A nil t means the
// context's entity type.
func (c *Context) Find(ctx context.Context, t reflect.Type) (*proxy.Proxy, error) {
	if t == nil {
		t = c.meta.Type
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != c.meta.Type {
		return nil, errors.NewInvalidStateError(t.Name(), fmt.Sprintf("context is bound to %s", c.meta.Name()))
	}
	c.logger.Debug("find", "pk", c.pk, "eager", c.loadEagerFields)

	var found *proxy.Proxy
	err := c.scope.ExecuteWithReadLevel(ctx, func(ctx context.Context) error {
		entity, err := c.cfg.Loader.Load(ctx, c, t)
		if err != nil || entity == nil {
			return err
		}
		entity = proxy.Unwrap(entity)
		var loaded []string
		if c.loadEagerFields {
			loaded = c.meta.EagerFieldNames()
		}
		found, err = c.cfg.proxifier().BuildProxy(entity, c, loaded...)
		if err != nil {
			return err
		}
		c.entity = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// GetReference is Find without the eager load: the returned proxy reads
// every field on first access.
func (c *Context) GetReference(ctx context.Context, t reflect.Type) (*proxy.Proxy, error) {
	c.loadEagerFields = false
	return c.Find(ctx, t)
}

// Refresh re-reads the bound entity from storage in place.
func (c *Context) Refresh(ctx context.Context) error {
	c.logger.Debug("refresh", "pk", c.pk)
	return c.scope.ExecuteWithReadLevel(ctx, func(ctx context.Context) error {
		return c.cfg.Refresher.Refresh(ctx, c)
	})
}

// Initialize loads every field of a proxy that is not loaded yet and returns
// the same reference. Plain entities fail with a NotManagedError.
func (c *Context) Initialize(ctx context.Context, entity any) (any, error) {
	interceptor, err := proxy.GetInterceptor(entity)
	if err != nil {
		return nil, err
	}
	err = c.scope.ExecuteWithReadLevel(ctx, func(ctx context.Context) error {
		return c.cfg.Initializer.InitializeEntity(ctx, entity, c.meta, interceptor)
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// LoadField loads one field of target under the context's read level. It is
// what proxies built by this context call on first access.
func (c *Context) LoadField(ctx context.Context, target any, field *meta.FieldMeta) error {
	return c.scope.ExecuteWithReadLevel(ctx, func(ctx context.Context) error {
		return c.cfg.Loader.LoadProperty(ctx, c, target, field)
	})
}

// Duplicate returns a sibling context bound to other. It shares the
// configuration, options, handle cache and mutation batch of c. The mapping
// of c is reused when the types match; otherwise other's mapping is looked up.
func (c *Context) Duplicate(other any) (*Context, error) {
	if other == nil {
		return nil, errors.NewValidationError("entity", "entity is required")
	}
	m, err := c.siblingMeta(proxy.DeriveBaseType(other))
	if err != nil {
		return nil, err
	}
	pk, err := meta.PrimaryKey(proxy.Unwrap(other), m)
	if err != nil {
		return nil, err
	}
	return newContext(c.cfg, m, c.batch.Duplicate(), other, pk, c.opts, c.handles)
}

// DuplicateForKey is Duplicate for an unmaterialized (type, primary key) pair.
func (c *Context) DuplicateForKey(t reflect.Type, pk any) (*Context, error) {
	m, err := c.siblingMeta(t)
	if err != nil {
		return nil, err
	}
	if pk == nil || reflect.ValueOf(pk).IsZero() {
		return nil, errors.NewInvalidStateError(m.Name(), "primary key is required")
	}
	return newContext(c.cfg, m, c.batch.Duplicate(), nil, pk, c.opts, c.handles)
}

func (c *Context) siblingMeta(t reflect.Type) (*meta.EntityMeta, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == c.meta.Type {
		return c.meta, nil
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.NewInvalidStateError(fmt.Sprint(t), "cannot duplicate a context for a non-entity value")
	}
	return resolveMeta(c.cfg, nil, t)
}

// ExecuteWithReadConsistencyLevel runs work at level, or at the context's
// read default when no level is given.
func (c *Context) ExecuteWithReadConsistencyLevel(ctx context.Context, work consistency.Work, level ...consistency.Level) error {
	return c.scope.ExecuteWithReadLevel(ctx, work, level...)
}

// ExecuteWithWriteConsistencyLevel runs work at level, or at the context's
// write default when no level is given.
func (c *Context) ExecuteWithWriteConsistencyLevel(ctx context.Context, work consistency.Work, level ...consistency.Level) error {
	return c.scope.ExecuteWithWriteLevel(ctx, work, level...)
}

// PrimaryKey returns the bound primary key.
func (c *Context) PrimaryKey() any { return c.pk }

// Entity returns the bound entity, or nil for an unmaterialized key.
func (c *Context) Entity() any { return c.entity }

// SetEntity binds a loaded entity to the context. The primary key is unchanged.
func (c *Context) SetEntity(entity any) { c.entity = entity }

// EntityMeta is the mapping of the bound entity type.
func (c *Context) EntityMeta() *meta.EntityMeta { return c.meta }

// EntityType is the struct type of the bound entity.
func (c *Context) EntityType() reflect.Type { return c.meta.Type }

// Options are the per-call options the context was created with.
func (c *Context) Options() storagemodels.Options { return c.opts }

// Batch is the mutation arena writes are staged in.
func (c *Context) Batch() *flush.Batch { return c.batch }

// Configuration returns the shared configuration.
func (c *Context) Configuration() *Configuration { return c.cfg }

// Proxifier builds the proxies handed out by this context.
func (c *Context) Proxifier() *proxy.Proxifier { return c.cfg.proxifier() }

// Logger is tagged with the entity name and the batch ID.
func (c *Context) Logger() *slog.Logger { return c.logger }

// IsLoadEagerFields is true unless the context was used by GetReference.
func (c *Context) IsLoadEagerFields() bool { return c.loadEagerFields }

// SetLoadEagerFields switches between eager and lazy loading.
func (c *Context) SetLoadEagerFields(eager bool) { c.loadEagerFields = eager }

// ReadLevel is the read level used when no override is given.
func (c *Context) ReadLevel() consistency.Level { return c.scope.ReadDefault() }

// WriteLevel is the write level used when no override is given.
func (c *Context) WriteLevel() consistency.Level { return c.scope.WriteDefault() }

// RowKey is the storage row of the bound primary key.
func (c *Context) RowKey() (string, error) {
	return meta.RowKey(c.meta, c.pk)
}

// ColumnName is the wide-row column of a clustered entity, empty otherwise.
func (c *Context) ColumnName() (string, error) {
	return meta.ColumnName(c.meta, c.pk)
}

// EntityHandle returns the entity handle of table. Lookups are cached.
func (c *Context) EntityHandle(table string) (datastore.EntityHandle, error) {
	h := c.handles
	h.mu.Lock()
	defer h.mu.Unlock()
	if handle, ok := h.entity[table]; ok {
		return handle, nil
	}
	handle, err := c.cfg.Handles.FindEntityHandle(table)
	if err != nil {
		return nil, err
	}
	h.entity[table] = handle
	return handle, nil
}

// WideRowHandle returns the wide-row handle of table. Lookups are cached.
func (c *Context) WideRowHandle(table string) (datastore.WideRowHandle, error) {
	h := c.handles
	h.mu.Lock()
	defer h.mu.Unlock()
	if handle, ok := h.wide[table]; ok {
		return handle, nil
	}
	handle, err := c.cfg.Handles.FindWideRowHandle(table)
	if err != nil {
		return nil, err
	}
	h.wide[table] = handle
	return handle, nil
}

// CounterHandle returns the counter store handle.
func (c *Context) CounterHandle() (datastore.CounterHandle, error) {
	h := c.handles
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counter != nil {
		return h.counter, nil
	}
	handle, err := c.cfg.Handles.CounterHandle()
	if err != nil {
		return nil, err
	}
	h.counter = handle
	return handle, nil
}

// EntityMutator stages entity row writes for table in the context's batch.
func (c *Context) EntityMutator(table string) *flush.Mutator {
	return c.batch.EntityMutator(table, c.opts)
}

// WideRowMutator stages wide-row writes for table in the context's batch.
func (c *Context) WideRowMutator(table string) *flush.Mutator {
	return c.batch.WideRowMutator(table, c.opts)
}

// CounterMutator stages counter increments in the context's batch.
func (c *Context) CounterMutator() *flush.Mutator {
	return c.batch.CounterMutator(c.opts)
}
