package models

import (
	"time"

	"gorm.io/datatypes"
)

type ItemType string

const (
	ItemTypeMovie   ItemType = "Movie"
	ItemTypeSeries  ItemType = "Series"
	ItemTypeSeason  ItemType = "Season"
	ItemTypeEpisode ItemType = "Episode"
)

type SubscriptionStatus string

const (
	SubStatusNone            SubscriptionStatus = "NONE"
	SubStatusWanted          SubscriptionStatus = "WANTED"
	SubStatusPendingRelease  SubscriptionStatus = "PENDING_RELEASE"
	SubStatusSubscribed      SubscriptionStatus = "SUBSCRIBED"
	SubStatusIgnored         SubscriptionStatus = "IGNORED"
	SubStatusPaused          SubscriptionStatus = "PAUSED"
)

// ActorRef is a member of MediaMetadata.Actors / Directors.
type ActorRef struct {
	MetadataPersonID int64  `json:"metadataPersonId"`
	Name             string `json:"name"`
	Role             string `json:"role,omitempty"`
	Order            int    `json:"order"`
}

// SubscriptionSource is a member of MediaMetadata.SubscriptionSources.
type SubscriptionSource struct {
	Type string `json:"type"` // "collection" | "actor_subscription" | "watchlist" | "manual"
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssetDetail is one library item backing a MediaMetadata row, carrying
// the folder placement the reverse proxy's effective-permissions filter
// checks against a user's policy, spec.md §4.8 "Asset exists in
// asset_details with source library ID in EnabledFolders ... none of
// its ancestor_ids in ExcludedSubFolders."
type AssetDetail struct {
	LibraryItemID    string   `json:"libraryItemId"`
	SourceLibraryID  string   `json:"sourceLibraryId"`
	AncestorIDs      []string `json:"ancestorIds"`
}

// MediaMetadata is the local metadata cache, spec.md §3 "MediaMetadata".
// (metadata_id, item_type) is unique; a single row may back multiple
// library items via LibraryItemIDs.
type MediaMetadata struct {
	MetadataID            int64                                      `gorm:"column:metadata_id;primaryKey" json:"metadataId"`
	ItemType               ItemType                                   `gorm:"column:item_type;primaryKey" json:"itemType"`
	Title                  string                                     `gorm:"column:title" json:"title"`
	OriginalTitle          string                                     `gorm:"column:original_title" json:"originalTitle"`
	ReleaseYear            int                                        `gorm:"column:release_year" json:"releaseYear"`
	ReleaseDate            *time.Time                                 `gorm:"column:release_date" json:"releaseDate,omitempty"`
	UnifiedRating          string                                     `gorm:"column:unified_rating" json:"unifiedRating"`
	RuntimeMinutes         int                                        `gorm:"column:runtime_minutes" json:"runtimeMinutes"`
	Rating                 float64                                    `gorm:"column:rating" json:"rating"`
	Overview               string                                     `gorm:"column:overview" json:"overview"`
	OverviewEmbedding      datatypes.JSONType[[]float32]              `gorm:"column:overview_embedding" json:"overviewEmbedding,omitempty"`
	Genres                 datatypes.JSONType[[]string]               `gorm:"column:genres" json:"genres"`
	Countries              datatypes.JSONType[[]string]               `gorm:"column:countries" json:"countries"`
	Studios                datatypes.JSONType[[]string]               `gorm:"column:studios" json:"studios"`
	Tags                   datatypes.JSONType[[]string]               `gorm:"column:tags" json:"tags"`
	Keywords               datatypes.JSONType[[]string]               `gorm:"column:keywords" json:"keywords"`
	Actors                 datatypes.JSONType[[]ActorRef]             `gorm:"column:actors" json:"actors"`
	Directors              datatypes.JSONType[[]ActorRef]             `gorm:"column:directors" json:"directors"`
	LibraryItemIDs         datatypes.JSONType[[]string]               `gorm:"column:library_item_ids" json:"libraryItemIds"`
	AssetDetails           datatypes.JSONType[[]AssetDetail]          `gorm:"column:asset_details" json:"assetDetails,omitempty"`
	ParentSeriesMetadataID *int64                                     `gorm:"column:parent_series_metadata_id" json:"parentSeriesMetadataId,omitempty"`
	SeasonNumber           *int                                       `gorm:"column:season_number" json:"seasonNumber,omitempty"`
	EpisodeNumber          *int                                       `gorm:"column:episode_number" json:"episodeNumber,omitempty"`
	InLibrary              bool                                       `gorm:"column:in_library" json:"inLibrary"`
	SubscriptionStatus     SubscriptionStatus                         `gorm:"column:subscription_status" json:"subscriptionStatus"`
	SubscriptionSources    datatypes.JSONType[[]SubscriptionSource]   `gorm:"column:subscription_sources" json:"subscriptionSources"`
	DateAdded              time.Time                                  `gorm:"column:date_added" json:"dateAdded"`
	LastSyncedAt           time.Time                                  `gorm:"column:last_synced_at" json:"lastSyncedAt"`
}

func (MediaMetadata) TableName() string { return "media_metadata" }

// AddSubscriptionSource is commutative over (item, source): adding the
// same source twice leaves SubscriptionSources unchanged in content.
func (m *MediaMetadata) AddSubscriptionSource(src SubscriptionSource) {
	list := m.SubscriptionSources.Data()
	for _, s := range list {
		if s.Type == src.Type && s.ID == src.ID {
			return
		}
	}
	list = append(list, src)
	m.SubscriptionSources = datatypes.NewJSONType(list)
}

// RemoveSubscriptionSource removes src if present (no-op otherwise).
// When that removal leaves no sources it resets SubscriptionStatus to
// SubStatusNone itself and reports nowEmpty (spec.md §3 invariant).
func (m *MediaMetadata) RemoveSubscriptionSource(sourceType, id string) (removed bool, nowEmpty bool) {
	list := m.SubscriptionSources.Data()
	out := list[:0]
	for _, s := range list {
		if s.Type == sourceType && s.ID == id {
			removed = true
			continue
		}
		out = append(out, s)
	}
	m.SubscriptionSources = datatypes.NewJSONType(out)
	if removed && len(out) == 0 {
		m.SubscriptionStatus = SubStatusNone
		nowEmpty = true
	}
	return removed, nowEmpty
}
