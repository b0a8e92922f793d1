/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package operations

import (
	"context"

	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/persistence"
	"github.com/suparena/entitymapper/proxy"
)

// Refresher is the default persistence.Refresher.
type Refresher struct {
	loader *Loader
}

var _ persistence.Refresher = (*Refresher)(nil)

// NewRefresher creates a Refresher that decodes fields through l. A nil l
// uses a fresh Loader.
func NewRefresher(l *Loader) *Refresher {
	if l == nil {
		l = NewLoader()
	}
	return &Refresher{loader: l}
}

// Refresh re-reads every loaded field of the managed entity bound to pc,
// dropping unsaved changes. Unloaded fields stay lazy.
func (r *Refresher) Refresh(ctx context.Context, pc *persistence.Context) error {
	interceptor, err := proxy.GetInterceptor(pc.Entity())
	if err != nil {
		return err
	}
	target := interceptor.Target()
	loaded := interceptor.AlreadyLoaded()
	fields := make([]*meta.FieldMeta, 0, len(loaded))
	for _, name := range loaded {
		if f, ok := pc.EntityMeta().Field(name); ok {
			fields = append(fields, f)
		}
	}

	row, err := readRow(ctx, pc, fields)
	if err != nil {
		return err
	}
	if row == nil {
		key, _ := pc.RowKey()
		return errors.NewNotFoundError(pc.EntityMeta().Name(), key)
	}
	for _, f := range fields {
		if err := r.loader.apply(ctx, pc, target, f, row); err != nil {
			return err
		}
	}
	interceptor.ClearDirty()
	pc.Logger().Debug("entity refreshed", "pk", pc.PrimaryKey(), "fields", len(fields))
	return nil
}
