/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package persistence

import (
	"log/slog"

	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/errors"
	"github.com/suparena/entitymapper/internal/logging"
	"github.com/suparena/entitymapper/proxy"
)

// Configuration holds what every persistence context of a process shares:
// the consistency policy, the storage handles and the collaborators.
// It is read-only once contexts have been created from it.
type Configuration struct {
	Policy    *consistency.Policy
	Handles   datastore.Registry
	Metas     EntityMetaProvider
	Proxifier *proxy.Proxifier

	Loader      Loader
	Persister   Persister
	Merger      Merger
	Refresher   Refresher
	Initializer Initializer

	Logger *slog.Logger
}

// Validate reports the first missing dependency.
func (c *Configuration) Validate() error {
	if c == nil {
		return errors.NewValidationError("configuration", "configuration is required")
	}
	switch {
	case c.Handles == nil:
		return errors.NewValidationError("Handles", "a storage handle registry is required")
	case c.Metas == nil:
		return errors.NewValidationError("Metas", "an entity meta provider is required")
	case c.Loader == nil:
		return errors.NewValidationError("Loader", "a loader is required")
	case c.Persister == nil:
		return errors.NewValidationError("Persister", "a persister is required")
	case c.Merger == nil:
		return errors.NewValidationError("Merger", "a merger is required")
	case c.Refresher == nil:
		return errors.NewValidationError("Refresher", "a refresher is required")
	case c.Initializer == nil:
		return errors.NewValidationError("Initializer", "an initializer is required")
	}
	return nil
}

func (c *Configuration) policy() *consistency.Policy {
	if c.Policy == nil {
		return consistency.DefaultPolicy()
	}
	return c.Policy
}

func (c *Configuration) proxifier() *proxy.Proxifier {
	if c.Proxifier == nil {
		return proxy.NewProxifier(proxy.WithLogger(c.Logger))
	}
	return c.Proxifier
}

func (c *Configuration) logger() *slog.Logger {
	return logging.OrDiscard(c.Logger)
}
