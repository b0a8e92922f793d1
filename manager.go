/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitymapper

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/flush"
	"github.com/suparena/entitymapper/internal/logging"
	"github.com/suparena/entitymapper/operations"
	"github.com/suparena/entitymapper/persistence"
	"github.com/suparena/entitymapper/proxy"
	"github.com/suparena/entitymapper/registry"
	"github.com/suparena/entitymapper/storagemodels"
)

// Manager is the entry point of the mapper. It builds one persistence
// context per call, on a batch of its own in Immediate mode or on the
// manager's shared batch in Batching mode.
//
// In Immediate mode a Manager is safe for concurrent use. The proxies it
// returns are not.
type Manager struct {
	cfg      *persistence.Configuration
	backend  datastore.Backend
	mode     flush.Mode
	defaults []storagemodels.Option
	now      func() time.Time
	logger   *slog.Logger

	shared *flush.Batch
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger of the manager and everything it builds.
// Nil discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPolicy sets the consistency policy. The default reads and writes at
// One.
func WithPolicy(policy *consistency.Policy) Option {
	return func(m *Manager) {
		m.cfg.Policy = policy
	}
}

// WithRegistry resolves entity mappings from r instead of registry.Default.
func WithRegistry(r *registry.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.cfg.Metas = r
		}
	}
}

// WithFlushMode selects when writes reach the backend. In Batching mode
// Persist, Merge and Remove only stage; Flush submits.
func WithFlushMode(mode flush.Mode) Option {
	return func(m *Manager) {
		m.mode = mode
	}
}

// WithDefaultOptions applies opts to every operation before its own options.
func WithDefaultOptions(opts ...storagemodels.Option) Option {
	return func(m *Manager) {
		m.defaults = append(m.defaults, opts...)
	}
}

// WithClock replaces time.Now for write timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCollaborators replaces some of the default collaborators. Nil fields
// of c keep the defaults.
func WithCollaborators(c persistence.Configuration) Option {
	return func(m *Manager) {
		if c.Loader != nil {
			m.cfg.Loader = c.Loader
		}
		if c.Persister != nil {
			m.cfg.Persister = c.Persister
		}
		if c.Merger != nil {
			m.cfg.Merger = c.Merger
		}
		if c.Refresher != nil {
			m.cfg.Refresher = c.Refresher
		}
		if c.Initializer != nil {
			m.cfg.Initializer = c.Initializer
		}
	}
}

// New creates a Manager over backend.
func New(backend datastore.Backend, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, errors.NewValidationError("backend", "a storage backend is required")
	}
	m := &Manager{
		cfg:     &persistence.Configuration{Handles: backend, Metas: registry.Default},
		backend: backend,
		mode:    flush.Immediate,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = logging.OrDiscard(m.logger)
	m.cfg.Logger = m.logger
	m.cfg.Proxifier = proxy.NewProxifier(proxy.WithLogger(m.logger))
	operations.Install(m.cfg)
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	if m.mode == flush.Batching {
		m.shared = m.newBatch(flush.Batching)
	}
	m.logger.Debug("entity manager created", "mode", m.mode)
	return m, nil
}

// Configuration returns the configuration shared by the manager's contexts.
func (m *Manager) Configuration() *persistence.Configuration {
	return m.cfg
}

// Mode returns the flush mode.
func (m *Manager) Mode() flush.Mode {
	return m.mode
}

func (m *Manager) newBatch(mode flush.Mode) *flush.Batch {
	opts := []flush.Option{flush.WithLogger(m.logger), flush.WithClock(m.now)}
	if mode == flush.Batching {
		return flush.NewBatching(m.backend, opts...)
	}
	return flush.NewImmediate(m.backend, opts...)
}

// batch returns the batch of one operation.
func (m *Manager) batch() *flush.Batch {
	if m.shared != nil {
		return m.shared.Duplicate()
	}
	return m.newBatch(flush.Immediate)
}

func (m *Manager) options(opts []storagemodels.Option) storagemodels.Options {
	return storagemodels.NewOptions(append(append([]storagemodels.Option{}, m.defaults...), opts...)...)
}

func (m *Manager) contextFor(batch *flush.Batch, entity any, opts []storagemodels.Option) (*persistence.Context, error) {
	return persistence.NewContext(m.cfg, nil, batch, entity, m.options(opts))
}

// Persist stores a new entity. Managed entities are rejected with an
// InvalidStateError.
func (m *Manager) Persist(ctx context.Context, entity any, opts ...storagemodels.Option) error {
	pc, err := m.contextFor(m.batch(), entity, opts)
	if err != nil {
		return err
	}
	return pc.Persist(ctx)
}

// Merge writes the changes of entity and returns its managed instance. A
// proxy writes only its dirty fields; a plain entity is written in full.
func (m *Manager) Merge(ctx context.Context, entity any, opts ...storagemodels.Option) (any, error) {
	pc, err := m.contextFor(m.batch(), entity, opts)
	if err != nil {
		return nil, err
	}
	return pc.Merge(ctx, entity)
}

// Remove deletes entity, managed or not.
func (m *Manager) Remove(ctx context.Context, entity any, opts ...storagemodels.Option) error {
	pc, err := m.contextFor(m.batch(), entity, opts)
	if err != nil {
		return err
	}
	return pc.Remove(ctx)
}

// Refresh re-reads a managed entity in place and discards its unsaved
// changes.
func (m *Manager) Refresh(ctx context.Context, entity any, opts ...storagemodels.Option) error {
	if err := proxy.EnsureProxy(entity); err != nil {
		return err
	}
	pc, err := m.contextFor(m.batch(), entity, opts)
	if err != nil {
		return err
	}
	return pc.Refresh(ctx)
}

// Initialize loads every field of a managed entity that is still unloaded.
func (m *Manager) Initialize(ctx context.Context, entity any) (any, error) {
	if err := proxy.EnsureProxy(entity); err != nil {
		return nil, err
	}
	pc, err := m.contextFor(m.batch(), entity, nil)
	if err != nil {
		return nil, err
	}
	return pc.Initialize(ctx, entity)
}

// Flush submits what the manager's shared batch staged. In Immediate mode
// there is never anything to submit.
func (m *Manager) Flush(ctx context.Context) error {
	if m.shared == nil {
		return nil
	}
	return m.shared.EndBatch(ctx)
}

// Unwrap returns the plain entity behind a managed one.
func Unwrap(v any) any {
	return proxy.Unwrap(v)
}

func find[T any](ctx context.Context, m *Manager, pk any, eager bool, opts []storagemodels.Option) (*proxy.Proxy, error) {
	if m == nil {
		return nil, errors.NewValidationError("manager", "a manager is required")
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	pc, err := persistence.NewContextForKey(m.cfg, nil, m.batch(), t, pk, m.options(opts))
	if err != nil {
		return nil, err
	}
	if !eager {
		return pc.GetReference(ctx, t)
	}
	return pc.Find(ctx, t)
}

// Find loads the T stored under pk with its eager fields. It returns
// (nil, nil) when no row exists.
func Find[T any](ctx context.Context, m *Manager, pk any, opts ...storagemodels.Option) (*proxy.Proxy, error) {
	return find[T](ctx, m, pk, true, opts)
}

// GetReference is Find without the eager load: every field is read on first
// access.
func GetReference[T any](ctx context.Context, m *Manager, pk any, opts ...storagemodels.Option) (*proxy.Proxy, error) {
	return find[T](ctx, m, pk, false, opts)
}
