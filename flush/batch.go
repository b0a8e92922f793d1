/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package flush

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/internal/logging"
	"github.com/suparena/entitymapper/storagemodels"
)

// Mode selects when staged mutations reach the backend.
type Mode int

const (
	// Immediate submits on every Flush.
	Immediate Mode = iota
	// Batching ignores Flush and submits on EndBatch.
	Batching
)

func (m Mode) String() string {
	if m == Batching {
		return "batching"
	}
	return "immediate"
}

// Option configures a Batch.
type Option func(*arena)

// WithLogger sets the logger used for staging and flush events.
func WithLogger(logger *slog.Logger) Option {
	return func(a *arena) {
		a.logger = logging.OrDiscard(logger)
	}
}

// WithClock sets the clock used to stamp writes staged without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *arena) {
		if now != nil {
			a.now = now
		}
	}
}

type rowRef struct {
	table string
	kind  storagemodels.MutationKind
	row   string
}

// arena owns the staged mutations. Every Batch handle created by Duplicate
// points at the same arena.
type arena struct {
	id      uuid.UUID
	applier datastore.Applier
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	order  []rowRef
	staged map[rowRef]*storagemodels.Mutation
}

func newArena(applier datastore.Applier, opts ...Option) *arena {
	a := &arena{
		id:      uuid.New(),
		applier: applier,
		logger:  logging.Discard(),
		now:     time.Now,
		staged:  make(map[rowRef]*storagemodels.Mutation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Batch is a handle onto a mutation arena. It holds one pending mutation per
// (table, row) and submits them in registration order.
//
// A Batch is meant for one top-level operation at a time. Staging is
// serialized internally so handles shared by duplicated contexts stay
// consistent.
type Batch struct {
	arena *arena
	mode  Mode
}

// NewImmediate returns a batch that submits on every Flush.
func NewImmediate(applier datastore.Applier, opts ...Option) *Batch {
	return &Batch{arena: newArena(applier, opts...), mode: Immediate}
}

// NewBatching returns a batch that only submits on EndBatch.
func NewBatching(applier datastore.Applier, opts ...Option) *Batch {
	return &Batch{arena: newArena(applier, opts...), mode: Batching}
}

// ID identifies the arena behind the batch. Duplicates share it.
func (b *Batch) ID() uuid.UUID {
	return b.arena.id
}

// Mode returns the submission mode.
func (b *Batch) Mode() Mode {
	return b.mode
}

// Duplicate returns a new handle onto the same arena: mutations staged
// through either handle flush together.
func (b *Batch) Duplicate() *Batch {
	return &Batch{arena: b.arena, mode: b.mode}
}

// Fork returns a batch with an isolated arena on the same backend. Nothing
// staged through the fork is visible to b.
func (b *Batch) Fork() *Batch {
	a := &arena{
		id:      uuid.New(),
		applier: b.arena.applier,
		logger:  b.arena.logger,
		now:     b.arena.now,
		staged:  make(map[rowRef]*storagemodels.Mutation),
	}
	return &Batch{arena: a, mode: b.mode}
}

// Pending returns a copy of the staged mutations in flush order.
func (b *Batch) Pending() []storagemodels.Mutation {
	a := b.arena
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

// Flush submits the staged mutations in Immediate mode. In Batching mode it
// does nothing; EndBatch submits instead. An empty batch never reaches the
// backend.
func (b *Batch) Flush(ctx context.Context) error {
	if b.mode == Batching {
		b.arena.logger.Debug("flush deferred to end of batch", "batch", b.arena.id)
		return nil
	}
	return b.arena.submit(ctx)
}

// EndBatch submits the staged mutations regardless of mode.
func (b *Batch) EndBatch(ctx context.Context) error {
	return b.arena.submit(ctx)
}

// Discard drops every staged mutation.
func (b *Batch) Discard() {
	a := b.arena
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.order)
	a.reset()
	a.logger.Debug("batch discarded", "batch", a.id, "mutations", n)
}

func (a *arena) snapshot() []storagemodels.Mutation {
	out := make([]storagemodels.Mutation, 0, len(a.order))
	for _, ref := range a.order {
		m := a.staged[ref]
		if m.IsEmpty() {
			continue
		}
		out = append(out, cloneMutation(m))
	}
	return out
}

func (a *arena) reset() {
	a.order = nil
	a.staged = make(map[rowRef]*storagemodels.Mutation)
}

// submit hands the staged mutations to the applier and clears the arena.
// The arena is cleared even when the applier fails: nothing is rolled back
// and the caller decides how to recover.
func (a *arena) submit(ctx context.Context) error {
	a.mu.Lock()
	mutations := a.snapshot()
	a.reset()
	a.mu.Unlock()

	if len(mutations) == 0 {
		return nil
	}
	if a.applier == nil {
		return errors.NewInvalidStateError("batch", "no applier configured")
	}
	a.logger.Debug("flushing batch", "batch", a.id, "mutations", len(mutations))
	if err := a.applier.Apply(ctx, mutations); err != nil {
		return fmt.Errorf("flush batch %s: %w", a.id, err)
	}
	return nil
}

// stage merges one change into the pending mutation of (table, kind, row).
func (a *arena) stage(ctx context.Context, ref rowRef, opts storagemodels.Options, apply func(m *storagemodels.Mutation)) error {
	if ref.row == "" {
		return errors.NewValidationError("rowKey", fmt.Sprintf("empty row key for table %s", ref.table))
	}
	level, _ := consistency.WriteLevel(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.staged[ref]
	if !ok {
		m = &storagemodels.Mutation{Table: ref.table, Kind: ref.kind, RowKey: ref.row}
		a.staged[ref] = m
		a.order = append(a.order, ref)
	}
	if level.Stronger(m.Level) {
		m.Level = level
	}
	if opts.TTL > 0 {
		m.TTL = opts.TTL
	}
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	if ts.After(m.Timestamp) {
		m.Timestamp = ts
	}
	if opts.Condition != "" {
		m.Condition = opts.Condition
	}
	apply(m)
	a.logger.Debug("mutation staged", "batch", a.id, "table", ref.table, "kind", ref.kind, "row", ref.row)
	return nil
}

func cloneMutation(m *storagemodels.Mutation) storagemodels.Mutation {
	out := *m
	if m.Values != nil {
		out.Values = make(map[string]any, len(m.Values))
		for k, v := range m.Values {
			out.Values[k] = v
		}
	}
	if m.Columns != nil {
		out.Columns = make(map[string]any, len(m.Columns))
		for k, v := range m.Columns {
			out.Columns[k] = v
		}
	}
	if m.Increments != nil {
		out.Increments = make(map[string]int64, len(m.Increments))
		for k, v := range m.Increments {
			out.Increments[k] = v
		}
	}
	out.DeletedColumns = append([]string(nil), m.DeletedColumns...)
	return out
}
