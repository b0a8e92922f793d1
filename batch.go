/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitymapper

import (
	"context"

	"github.com/google/uuid"
	"github.com/suparena/entitymapper/flush"
	"github.com/suparena/entitymapper/storagemodels"
)

// Batch groups writes that reach the backend together on EndBatch. It is
// meant for one goroutine.
type Batch struct {
	m     *Manager
	batch *flush.Batch
}

// NewBatch starts a batch on its own arena, independent of the manager's
// mode.
func (m *Manager) NewBatch() *Batch {
	return &Batch{m: m, batch: m.newBatch(flush.Batching)}
}

// ID identifies the batch in logs.
func (b *Batch) ID() uuid.UUID {
	return b.batch.ID()
}

// Persist stages a new entity. Nothing is written before Flush.
func (b *Batch) Persist(ctx context.Context, entity any, opts ...storagemodels.Option) error {
	pc, err := b.m.contextFor(b.batch.Duplicate(), entity, opts)
	if err != nil {
		return err
	}
	return pc.Persist(ctx)
}

// Merge stages the changes of entity and returns its managed instance.
func (b *Batch) Merge(ctx context.Context, entity any, opts ...storagemodels.Option) (any, error) {
	pc, err := b.m.contextFor(b.batch.Duplicate(), entity, opts)
	if err != nil {
		return nil, err
	}
	return pc.Merge(ctx, entity)
}

// Remove stages the deletion of entity.
func (b *Batch) Remove(ctx context.Context, entity any, opts ...storagemodels.Option) error {
	pc, err := b.m.contextFor(b.batch.Duplicate(), entity, opts)
	if err != nil {
		return err
	}
	return pc.Remove(ctx)
}

// Pending returns the number of rows with staged changes.
func (b *Batch) Pending() int {
	return len(b.batch.Pending())
}

// EndBatch submits every staged mutation. The batch is empty afterwards,
// whether or not the backend accepted them.
func (b *Batch) EndBatch(ctx context.Context) error {
	return b.batch.EndBatch(ctx)
}

// CleanBatch drops every staged mutation.
func (b *Batch) CleanBatch() {
	b.batch.Discard()
}
