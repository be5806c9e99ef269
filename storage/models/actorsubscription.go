package models

import (
	"time"

	"gorm.io/datatypes"
)

type ActorSubscriptionStatus string

const (
	ActorSubscriptionActive ActorSubscriptionStatus = "active"
	ActorSubscriptionPaused ActorSubscriptionStatus = "paused"
)

// ActorSubscriptionFilter is spec.md §4.3's "subscription's filter
// config": year, media type, genre include/exclude, min rating with a
// vote-count exemption, main-role-only by order < 3, Chinese-title-only.
type ActorSubscriptionFilter struct {
	StartYear      int     `json:"startYear"`
	MediaTypes     []string `json:"mediaTypes"` // "Movie" and/or "Series"
	GenresInclude  []int   `json:"genresInclude,omitempty"`
	GenresExclude  []int   `json:"genresExclude,omitempty"`
	MinRating      float64 `json:"minRating"`
	MinVoteCount   int     `json:"minVoteCount"`
	MainRoleOnly   bool    `json:"mainRoleOnly"`
	ChineseTitleOnly bool  `json:"chineseTitleOnly"`
}

// DefaultActorSubscriptionFilter mirrors the zero-configuration
// behavior a freshly created subscription should have: no year floor,
// both media types, no genre constraint, no rating floor, vote-count
// exemption threshold of 10, no main-role or Chinese-title requirement.
func DefaultActorSubscriptionFilter() ActorSubscriptionFilter {
	return ActorSubscriptionFilter{
		MediaTypes:   []string{"Movie", "Series"},
		MinVoteCount: 10,
	}
}

// ActorSubscription is spec.md §4.3 "each active actor subscription".
type ActorSubscription struct {
	ID             uint                                        `gorm:"column:id;primaryKey" json:"id"`
	MetadataPersonID string                                    `gorm:"column:metadata_person_id;uniqueIndex" json:"metadataPersonId"`
	ActorName      string                                      `gorm:"column:actor_name" json:"actorName"`
	ProfilePath    string                                      `gorm:"column:profile_path" json:"profilePath"`
	Status         ActorSubscriptionStatus                     `gorm:"column:status" json:"status"`
	Filter         datatypes.JSONType[ActorSubscriptionFilter] `gorm:"column:filter" json:"filter"`
	LastCheckedAt  *time.Time                                  `gorm:"column:last_checked_at" json:"lastCheckedAt,omitempty"`
	CreatedAt      time.Time                                   `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt      time.Time                                   `gorm:"column:updated_at" json:"updatedAt"`
}

func (ActorSubscription) TableName() string { return "actor_subscriptions" }
