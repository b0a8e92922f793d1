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

// Initializer is the default persistence.Initializer.
type Initializer struct{}

var _ persistence.Initializer = (*Initializer)(nil)

func NewInitializer() *Initializer {
	return &Initializer{}
}

// InitializeEntity loads every field of entity that is not loaded yet,
// through the interceptor so the loaded set is updated as it goes.
func (i *Initializer) InitializeEntity(ctx context.Context, entity any, m *meta.EntityMeta, interceptor *proxy.Interceptor) error {
	if interceptor == nil {
		return errors.NewNotManagedError(entity)
	}
	if interceptor.EntityMeta().Type != m.Type {
		return errors.NewInvalidStateError(m.Name(), "interceptor belongs to "+interceptor.EntityMeta().Name())
	}
	for _, f := range interceptor.Unloaded() {
		if _, err := interceptor.Get(ctx, f.Name); err != nil {
			return err
		}
	}
	return nil
}
