/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package testmodels

import (
	"github.com/go-openapi/strfmt"
	"github.com/suparena/entitymapper/meta"
	"github.com/suparena/entitymapper/registry"
)

type RatingSystem struct {

	// Timestamp when the rating system was created.
	// Required: true
	// Format: date-time
	CreatedAt *strfmt.DateTime `json:"CreatedAt"`

	// A description of the rating system.
	// Required: true
	Description *string `json:"Description"`

	// Unique identifier for the rating system.
	// Required: true
	ID *string `json:"Id"`

	// Name of the rating system.
	// Required: true
	Name *string `json:"Name"`

	// site Url
	SiteURL string `json:"SiteUrl,omitempty"`

	// Timestamp when the rating system was last updated.
	// Required: true
	// Format: date-time
	UpdatedAt *strfmt.DateTime `json:"UpdatedAt"`
}

// Player belongs to a rating system and counts the matches it played.
type Player struct {
	ID           string
	Name         string
	Bio          string
	RatingSystem *RatingSystem

	MatchesPlayed int64
}

// RatingKey identifies one rating change: the player's partition and the
// time of the change.
type RatingKey struct {
	PlayerID string
	At       strfmt.DateTime
}

// RatingEntry is one row of a player's rating history.
type RatingEntry struct {
	Key    RatingKey
	Rating float64
	Delta  float64
	Match  string
}

var (
	RatingSystemMeta = meta.MustNew[RatingSystem]("rating_systems", "ID",
		meta.WithField("Name", "Name"),
		meta.WithField("Description", "Description"),
		meta.WithLazyField("SiteURL", "SiteUrl"),
		meta.WithField("CreatedAt", "CreatedAt"),
		meta.WithField("UpdatedAt", "UpdatedAt"),
	)

	PlayerMeta = meta.MustNew[Player]("players", "ID",
		meta.WithField("Name", "name"),
		meta.WithLazyField("Bio", "bio"),
		meta.WithJoinField("RatingSystem", "rating_system_id", false, false),
		meta.WithCounterField("MatchesPlayed", true),
	)

	RatingEntryMeta = meta.MustNew[RatingEntry]("rating_history", "Key",
		meta.WithClustering("PlayerID", "At"),
		meta.WithField("Rating", "rating"),
		meta.WithField("Delta", "delta"),
		meta.WithLazyField("Match", "match"),
	)
)

// Register adds the mappings of every test model to r.
func Register(r *registry.Registry) error {
	for _, m := range []*meta.EntityMeta{RatingSystemMeta, PlayerMeta, RatingEntryMeta} {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}
