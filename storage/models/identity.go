package models

import (
	"time"

	"gorm.io/datatypes"
)

// PersonIdentity is the four-ID identity map described in spec.md §3.
// A row may carry any number of the four external-ID columns (the
// schema does not require one to be set), and each is globally unique
// when non-null; uniqueness is enforced by a unique index per column
// (NULLs never collide) and by identity.SafeMerge at the application
// layer (see identity/merge.go).
type PersonIdentity struct {
	MapID            uint64                          `gorm:"column:map_id;primaryKey;autoIncrement" json:"mapId"`
	LibraryPersonID  *string                         `gorm:"column:library_person_id;uniqueIndex" json:"libraryPersonId,omitempty"`
	MetadataPersonID *int64                          `gorm:"column:metadata_person_id;uniqueIndex" json:"metadataPersonId,omitempty"`
	IMDbID           *string                         `gorm:"column:imdb_id;uniqueIndex" json:"imdbId,omitempty"`
	CulturalPersonID *string                         `gorm:"column:cultural_person_id;uniqueIndex" json:"culturalPersonId,omitempty"`
	PrimaryName      string                          `gorm:"column:primary_name" json:"primaryName"`
	Aliases          datatypes.JSONType[[]string]    `gorm:"column:aliases" json:"aliases"`
	CreatedAt        time.Time                       `json:"createdAt"`
	UpdatedAt        time.Time                       `json:"updatedAt"`
}

func (PersonIdentity) TableName() string { return "person_identity_map" }

// IDField names the four external-ID columns identity.SafeMerge walks.
type IDField string

const (
	IDFieldLibrary  IDField = "library_person_id"
	IDFieldMetadata IDField = "metadata_person_id"
	IDFieldIMDb     IDField = "imdb_id"
	IDFieldCultural IDField = "cultural_person_id"
)

// AllIDFields lists the identity columns in the order SafeMerge visits.
var AllIDFields = []IDField{IDFieldLibrary, IDFieldMetadata, IDFieldIMDb, IDFieldCultural}

// TranslationEntry is the persistent translation cache keyed by a
// trimmed, case-insensitive source phrase; spec.md §3 "TranslationEntry".
type TranslationEntry struct {
	SourcePhrase   string    `gorm:"column:source_phrase;primaryKey" json:"sourcePhrase"`
	Translation    *string   `gorm:"column:translation" json:"translation,omitempty"`
	Engine         string    `gorm:"column:engine" json:"engine"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (TranslationEntry) TableName() string { return "translation_cache" }

// IsPoison reports whether this cache entry records a known-failed
// translation attempt, which suppresses further online retries.
func (t TranslationEntry) IsPoison() bool { return t.Translation == nil }
