// Package watchlist implements spec.md §4.3's watchlist scan: compare
// cached series metadata against the metadata provider's season list,
// compute missing_seasons/next_episode_to_air, and drive the status
// state machine. Grounded on the teacher's services/jobs package shape
// (a single job type wired with its repositories and a client).
package watchlist

import (
	"context"
	"sort"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"mediabridge/apperrors"
	"mediabridge/clients/metadata"
	"mediabridge/processor"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

type Adder struct {
	media     repo.MediaRepository
	watchlist repo.WatchlistRepository
	meta      metadata.Provider
}

var _ processor.WatchlistAdder = (*Adder)(nil)

func New(media repo.MediaRepository, watchlist repo.WatchlistRepository, meta metadata.Provider) *Adder {
	return &Adder{media: media, watchlist: watchlist, meta: meta}
}

// AddSeries implements the processor.WatchlistAdder hook spec.md §4.2
// step 7(a) calls: create the entry on first sight, then immediately
// run a scan so a freshly-processed series starts with real state.
func (a *Adder) AddSeries(ctx context.Context, metadataID int64) error {
	row, err := a.media.Find(ctx, metadataID, models.ItemTypeSeries)
	if err != nil {
		return err
	}
	libraryIDs := row.LibraryItemIDs.Data()
	if len(libraryIDs) == 0 {
		return apperrors.Validation("series has no library item id to key the watchlist entry on")
	}
	librarySeriesID := libraryIDs[0]

	entry, err := a.watchlist.Find(ctx, librarySeriesID)
	if err != nil {
		if !apperrors.Is(err, apperrors.KindAuthoritativeNotFound) {
			return err
		}
		entry = &models.WatchlistEntry{
			LibrarySeriesID: librarySeriesID,
			MetadataID:      metadataID,
			Title:           row.Title,
			Status:          models.WatchlistWatching,
		}
	}
	return a.Scan(ctx, entry)
}

// Scan implements spec.md §4.3 "On each scan, compare the cached
// series metadata against the metadata provider's season list" and the
// status transition rules that follow it.
func (a *Adder) Scan(ctx context.Context, entry *models.WatchlistEntry) error {
	showID := strconv.FormatInt(entry.MetadataID, 10)
	show, err := a.meta.GetTVShow(ctx, showID)
	if err != nil {
		return err
	}

	localSeasons, err := a.media.FindSeasons(ctx, entry.MetadataID)
	if err != nil {
		return err
	}
	local := make(map[int]bool, len(localSeasons))
	for _, s := range localSeasons {
		if s.SeasonNumber != nil {
			local[*s.SeasonNumber] = true
		}
	}

	var providerSeasons []int
	maxSeason := 0
	for _, s := range show.Seasons {
		if s.SeasonNumber <= 0 { // season 0 is "Specials", not a real season
			continue
		}
		providerSeasons = append(providerSeasons, s.SeasonNumber)
		if s.SeasonNumber > maxSeason {
			maxSeason = s.SeasonNumber
		}
	}
	sort.Ints(providerSeasons)

	var missing []int
	for _, n := range providerSeasons {
		if !local[n] {
			missing = append(missing, n)
		}
	}

	priorMax := entry.MaxKnownSeason
	if priorMax == 0 {
		priorMax = maxSeason
	}
	newSeasonDiscovered := maxSeason > entry.MaxKnownSeason && entry.MaxKnownSeason > 0

	now := time.Now()
	next := a.nextEpisodeToAir(ctx, showID, providerSeasons, priorMax, now)

	switch entry.Status {
	case models.WatchlistWatching:
		if next == nil && !newSeasonDiscovered && a.seasonFullyAired(ctx, showID, priorMax, now) {
			entry.Status = models.WatchlistCompleted
		}
	case models.WatchlistCompleted, models.WatchlistForceEnded:
		// A manual Force-Ended blocks reopening on episode-count
		// changes within the known season, but spec.md §4.3 carves out
		// an explicit exception for a freshly announced season.
		if newSeasonDiscovered {
			entry.Status = models.WatchlistWatching
		}
	}

	entry.MissingSeasons = datatypes.NewJSONType(missing)
	entry.NextEpisodeToAir = datatypes.NewJSONType(next)
	entry.IsAiring = show.InProduction || show.Status == "Returning Series"
	if maxSeason > entry.MaxKnownSeason {
		entry.MaxKnownSeason = maxSeason
	}
	entry.LastCheckedAt = now

	return a.watchlist.Save(ctx, entry)
}

// nextEpisodeToAir scans seasons from the last known season forward,
// returning the first episode whose air date is still in the future.
// Earlier seasons are skipped: a series already past season N cannot
// have an unaired episode in season N-1.
func (a *Adder) nextEpisodeToAir(ctx context.Context, showID string, providerSeasons []int, fromSeason int, now time.Time) *models.NextEpisode {
	for _, num := range providerSeasons {
		if num < fromSeason {
			continue
		}
		season, err := a.meta.GetTVSeason(ctx, showID, num)
		if err != nil || season == nil {
			continue
		}
		for _, ep := range season.Episodes {
			airDate, perr := time.Parse("2006-01-02", ep.AirDate)
			if perr != nil || !airDate.After(now) {
				continue
			}
			return &models.NextEpisode{
				SeasonNumber:  ep.SeasonNumber,
				EpisodeNumber: ep.EpisodeNumber,
				Title:         ep.Name,
				AirDate:       airDate,
			}
		}
	}
	return nil
}

// seasonFullyAired reports whether every episode of seasonNumber has
// an air date on or before now. A season with no episode data is
// treated as not confirmed, never as fully aired.
func (a *Adder) seasonFullyAired(ctx context.Context, showID string, seasonNumber int, now time.Time) bool {
	if seasonNumber <= 0 {
		return false
	}
	season, err := a.meta.GetTVSeason(ctx, showID, seasonNumber)
	if err != nil || season == nil || len(season.Episodes) == 0 {
		return false
	}
	for _, ep := range season.Episodes {
		airDate, perr := time.Parse("2006-01-02", ep.AirDate)
		if perr != nil || airDate.After(now) {
			return false
		}
	}
	return true
}
