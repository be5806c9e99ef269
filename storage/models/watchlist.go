package models

import (
	"time"

	"gorm.io/datatypes"
)

type WatchlistStatus string

const (
	WatchlistWatching   WatchlistStatus = "Watching"
	WatchlistPaused     WatchlistStatus = "Paused"
	WatchlistCompleted  WatchlistStatus = "Completed"
	WatchlistForceEnded WatchlistStatus = "Force-Ended"
)

// NextEpisode describes the next episode to air for a watched series.
type NextEpisode struct {
	SeasonNumber  int       `json:"seasonNumber"`
	EpisodeNumber int       `json:"episodeNumber"`
	Title         string    `json:"title"`
	AirDate       time.Time `json:"airDate"`
}

// WatchlistEntry is spec.md §3 "Watchlist entry".
type WatchlistEntry struct {
	LibrarySeriesID  string                             `gorm:"column:library_series_id;primaryKey" json:"librarySeriesId"`
	MetadataID       int64                              `gorm:"column:metadata_id" json:"metadataId"`
	Title            string                             `gorm:"column:title" json:"title"`
	Status           WatchlistStatus                    `gorm:"column:status" json:"status"`
	NextEpisodeToAir datatypes.JSONType[*NextEpisode]    `gorm:"column:next_episode_to_air" json:"nextEpisodeToAir,omitempty"`
	MissingSeasons   datatypes.JSONType[[]int]           `gorm:"column:missing_seasons" json:"missingSeasons"`
	IsAiring         bool                               `gorm:"column:is_airing" json:"isAiring"`
	MaxKnownSeason   int                                `gorm:"column:max_known_season" json:"maxKnownSeason"`
	ForceEnded       bool                               `gorm:"column:force_ended" json:"forceEnded"`
	LastCheckedAt    time.Time                          `gorm:"column:last_checked_at" json:"lastCheckedAt"`
}

func (WatchlistEntry) TableName() string { return "watchlist" }

// UserMediaState is the per-user playback/favorite state, keyed by
// (user_id, library_item_id) per spec.md §3.
type UserMediaState struct {
	UserID               string    `gorm:"column:user_id;primaryKey" json:"userId"`
	LibraryItemID        string    `gorm:"column:library_item_id;primaryKey" json:"libraryItemId"`
	IsFavorite           bool      `gorm:"column:is_favorite" json:"isFavorite"`
	IsPlayed             bool      `gorm:"column:is_played" json:"isPlayed"`
	PlaybackPositionTicks int64    `gorm:"column:playback_position_ticks" json:"playbackPositionTicks"`
	LastPlayedAt         *time.Time `gorm:"column:last_played_at" json:"lastPlayedAt,omitempty"`
}

func (UserMediaState) TableName() string { return "user_media_state" }
