/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package operations

import "github.com/suparena/entitymapper/persistence"

// Install fills every nil collaborator of cfg with the defaults of this
// package and returns cfg.
func Install(cfg *persistence.Configuration) *persistence.Configuration {
	loader := NewLoader()
	persister := NewPersister()
	if cfg.Loader == nil {
		cfg.Loader = loader
	}
	if cfg.Persister == nil {
		cfg.Persister = persister
	}
	if cfg.Merger == nil {
		cfg.Merger = NewMerger(persister)
	}
	if cfg.Refresher == nil {
		cfg.Refresher = NewRefresher(loader)
	}
	if cfg.Initializer == nil {
		cfg.Initializer = NewInitializer()
	}
	return cfg
}
