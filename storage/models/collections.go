package models

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type CollectionType string

const (
	CollectionTypeFilter                CollectionType = "filter"
	CollectionTypeList                  CollectionType = "list"
	CollectionTypeAIRecommendation      CollectionType = "ai_recommendation"
	CollectionTypeAIRecommendationGlobal CollectionType = "ai_recommendation_global"
)

// Rule is one clause of a filter collection's rule set, spec.md §4.4.
type Rule struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// FilterDefinition is the `definition` payload for type=filter.
type FilterDefinition struct {
	Logic string `json:"logic"` // "AND" | "OR"
	Rules []Rule `json:"rules"`
}

// ListSource is one entry of a list collection's source list.
type ListSource struct {
	Kind   string `json:"kind"` // "rss" | "metadata_list" | "discover" | "cultural_list" | "platform"
	URL    string `json:"url,omitempty"`
	Query  string `json:"query,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ListDefinition is the `definition` payload for type=list.
type ListDefinition struct {
	Sources           []ListSource `json:"sources"`
	Limit             int          `json:"limit"`
	LLMFilterPrompt   string       `json:"llmFilterPrompt,omitempty"`
	ItemTypes         []ItemType   `json:"itemTypes"`
	ShowInLatest      bool         `json:"showInLatest"`
}

// GeneratedMediaEntry is one member of a list/AI collection's resolved
// content, or one of up to 9 cover-art samples for a filter collection.
type GeneratedMediaEntry struct {
	MetadataID    int64    `json:"metadataId"`
	ItemType      ItemType `json:"itemType"`
	LibraryItemID *string  `json:"libraryItemId,omitempty"`
	SeasonNumber  *int     `json:"seasonNumber,omitempty"`
}

// CustomCollection is spec.md §3 "CustomCollection".
type CustomCollection struct {
	ID                  uint64                                       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name                string                                       `gorm:"column:name" json:"name"`
	Type                CollectionType                               `gorm:"column:type" json:"type"`
	Definition          datatypes.JSON                                `gorm:"column:definition" json:"definition"`
	Status              string                                       `gorm:"column:status" json:"status"`
	SortOrder           int                                          `gorm:"column:sort_order" json:"sortOrder"`
	AllowedUserIDs      datatypes.JSONType[[]string]                 `gorm:"column:allowed_user_ids" json:"allowedUserIds,omitempty"`
	LibraryItemID       *string                                      `gorm:"column:library_item_id" json:"libraryItemId,omitempty"`
	InLibraryCount      int                                          `gorm:"column:in_library_count" json:"inLibraryCount"`
	GeneratedMediaInfo  datatypes.JSONType[[]GeneratedMediaEntry]    `gorm:"column:generated_media_info" json:"generatedMediaInfo"`
	ItemTypes           datatypes.JSONType[[]ItemType]               `gorm:"column:item_types" json:"itemTypes"`
	ShowInLatest        bool                                         `gorm:"column:show_in_latest" json:"showInLatest"`
	LastSyncedAt        time.Time                                    `gorm:"column:last_synced_at" json:"lastSyncedAt"`
	CreatedAt           time.Time                                    `json:"createdAt"`
	UpdatedAt           time.Time                                    `json:"updatedAt"`
}

func (CustomCollection) TableName() string { return "custom_collections" }

// IsVisibleTo reports whether collection c should appear for userID,
// honoring AllowedUserIDs (nil/empty means visible to everyone).
func (c CustomCollection) IsVisibleTo(userID string) bool {
	allowed := c.AllowedUserIDs.Data()
	if len(allowed) == 0 {
		return true
	}
	for _, u := range allowed {
		if u == userID {
			return true
		}
	}
	return false
}

// ToMimickedID implements spec.md §4.8's mimicked-ID formula.
func (c CustomCollection) ToMimickedID() string {
	return ToMimickedID(c.ID)
}

// ToMimickedID converts a real custom_collection DB id into the
// negative synthetic-library id the proxy exposes to Library Server
// clients. Grounded verbatim on original_source/reverse_proxy.py's
// `to_mimicked_id`.
func ToMimickedID(dbID uint64) string {
	return strconv.FormatInt(-(int64(mimickedIDBase) + int64(dbID)), 10)
}

const mimickedIDBase = 900000

// IsMimickedID reports whether itemID names a synthetic library rather
// than a real Library Server item, grounded on `is_mimicked_id`.
func IsMimickedID(itemID string) bool {
	return strings.HasPrefix(itemID, "-")
}

// FromMimickedID recovers the real custom_collection DB id a mimicked
// id was derived from, grounded on `from_mimicked_id`. ok is false if
// mimickedID is not a well-formed mimicked id.
func FromMimickedID(mimickedID string) (dbID uint64, ok bool) {
	n, err := strconv.ParseInt(mimickedID, 10, 64)
	if err != nil || n >= 0 {
		return 0, false
	}
	real := -n - mimickedIDBase
	if real < 0 {
		return 0, false
	}
	return uint64(real), true
}

// CleanupVersion is one library copy listed in a CleanupTask, spec.md
// §3 "CleanupTask".
type CleanupVersion struct {
	LibraryItemID string `json:"libraryItemId"`
	Path          string `json:"path"`
	SizeBytes     int64  `json:"sizeBytes"`
	Resolution    string `json:"resolution"`
	Bitrate       int64  `json:"bitrate"`
	Effect        string `json:"effect"` // "dovi_p8" | "dovi_p7" | "dovi_p5" | "dovi_other" | "hdr10+" | "hdr" | "sdr"
}

type CleanupTask struct {
	MetadataID    int64                                  `gorm:"column:metadata_id;primaryKey" json:"metadataId"`
	ItemType      ItemType                               `gorm:"column:item_type;primaryKey" json:"itemType"`
	Versions      datatypes.JSONType[[]CleanupVersion]   `gorm:"column:versions" json:"versions"`
	BestVersionID *string                                `gorm:"column:best_version_id" json:"bestVersionId,omitempty"`
	Status        string                                 `gorm:"column:status" json:"status"`
	CreatedAt     time.Time                              `json:"createdAt"`
	UpdatedAt     time.Time                              `json:"updatedAt"`
}

func (CleanupTask) TableName() string { return "cleanup_tasks" }
