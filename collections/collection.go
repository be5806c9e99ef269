// Package collections wires the rule evaluator, list importer, AI
// recommender, and cover generator into the custom-collection engine
// spec.md §4.4 describes, grounded on the teacher's services/jobs
// package shape (a job type wired with its repositories and clients
// through one constructor).
package collections

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mediabridge/apperrors"
	"mediabridge/clients/library"
	"mediabridge/logging"
	"mediabridge/processor"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

// Engine owns the lifecycle of every custom collection: sync (import
// or filter-match), list-collection health check, cover regeneration,
// and the live-matching hook the metadata processor calls on each
// newly-processed item.
type Engine struct {
	collections repo.CollectionRepository
	media       repo.MediaRepository
	watchlist   repo.WatchlistRepository
	library     *library.Client
	importer    *Importer
	recommender *Recommender
	cover       *CoverGenerator
	// coverDir is where generated collage JPEGs are written, keyed by
	// collection id; the reverse proxy serves them back for the
	// synthetic library's Images/Primary endpoint.
	coverDir string
}

var _ processor.CollectionMatcher = (*Engine)(nil)
var _ processor.CoverGenerator = (*Engine)(nil)

func New(
	collections repo.CollectionRepository,
	media repo.MediaRepository,
	watchlist repo.WatchlistRepository,
	lib *library.Client,
	importer *Importer,
	recommender *Recommender,
	cover *CoverGenerator,
	coverDir string,
) *Engine {
	return &Engine{
		collections: collections,
		media:       media,
		watchlist:   watchlist,
		library:     lib,
		importer:    importer,
		recommender: recommender,
		cover:       cover,
		coverDir:    coverDir,
	}
}

// CoverPath returns the on-disk path of a collection's generated cover,
// the file the reverse proxy streams back for its synthetic image
// endpoint.
func (e *Engine) CoverPath(collectionID uint64) string {
	return filepath.Join(e.coverDir, fmt.Sprintf("%d.jpg", collectionID))
}

// regenerateCover composites a fresh collage from up to 9 sample
// entries' posters and writes it to CoverPath, tolerating a failed
// fetch per spec.md §4.4 (loadTile already swallows individual misses;
// this only guards against a total failure to produce any image).
func (e *Engine) regenerateCover(ctx context.Context, c *models.CustomCollection, samples []models.GeneratedMediaEntry) {
	if e.cover == nil || e.coverDir == "" || e.library == nil {
		return
	}
	var posterURLs []string
	for _, s := range samples {
		row, err := e.media.Find(ctx, s.MetadataID, s.ItemType)
		if err != nil || len(row.LibraryItemIDs.Data()) == 0 {
			continue
		}
		posterURLs = append(posterURLs, e.library.PosterURL(row.LibraryItemIDs.Data()[0]))
	}
	badge := Badge(c.Type, c.InLibraryCount)
	img, err := e.cover.Generate(posterURLs, badge)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Uint64("collectionId", c.ID).Msg("cover generation failed")
		return
	}
	if err := os.MkdirAll(e.coverDir, 0o755); err != nil {
		return
	}
	if err := os.WriteFile(e.CoverPath(c.ID), img, 0o644); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Uint64("collectionId", c.ID).Msg("writing cover file failed")
	}
}

// GenerateForLibrary implements processor.CoverGenerator: when
// libraryViewID names a synthetic collection view, its cover is
// regenerated from the collection's current sample set. A real native
// library folder id (libraryViewID not a mimicked id) has no
// collection-backed cover to regenerate, so this is a deliberate no-op
// rather than an error, spec.md §4.2 step 7(c).
func (e *Engine) GenerateForLibrary(ctx context.Context, libraryViewID string) error {
	dbID, ok := models.FromMimickedID(libraryViewID)
	if !ok {
		return nil
	}
	c, err := e.collections.Find(ctx, dbID)
	if err != nil {
		return err
	}
	samples := c.GeneratedMediaInfo.Data()
	if len(samples) > 9 {
		samples = samples[:9]
	}
	e.regenerateCover(ctx, c, samples)
	return nil
}

// airingSetAdapter adapts repo.WatchlistRepository to the Evaluator's
// AiringSet, spec.md §4.4 "Boolean is_in_progress".
type airingSetAdapter struct {
	entries []models.WatchlistEntry
}

func (a airingSetAdapter) IsAiring(metadataID int64) bool {
	for _, e := range a.entries {
		if e.MetadataID == metadataID && e.IsAiring {
			return true
		}
	}
	return false
}

// Evaluator builds a rule Evaluator against a freshly loaded airing
// set, the entrypoint the reverse proxy's live filter-collection page
// queries use (syncFilter builds its own from loadAiring).
func (e *Engine) Evaluator(ctx context.Context) (*Evaluator, error) {
	airing, err := e.loadAiring(ctx)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(airing, nil), nil
}

func (e *Engine) loadAiring(ctx context.Context) (airingSetAdapter, error) {
	entries, err := e.watchlist.All(ctx)
	if err != nil {
		return airingSetAdapter{}, err
	}
	return airingSetAdapter{entries: entries}, nil
}

// SyncAll runs Sync over every stored collection, whatever its status,
// as the high-frequency task chain's collection refresh stage.
func (e *Engine) SyncAll(ctx context.Context) error {
	log := logging.FromContext(ctx)
	rows, err := e.collections.All(ctx)
	if err != nil {
		return err
	}
	for i := range rows {
		if err := e.Sync(ctx, &rows[i]); err != nil {
			log.Warn().Err(err).Uint64("collectionId", rows[i].ID).Msg("collection sync failed, continuing")
		}
	}
	return nil
}

// Sync dispatches to the type-specific sync routine; the filter and
// list routines regenerate cover art on every sync.
func (e *Engine) Sync(ctx context.Context, c *models.CustomCollection) error {
	switch c.Type {
	case models.CollectionTypeFilter:
		return e.syncFilter(ctx, c)
	case models.CollectionTypeList:
		return e.syncList(ctx, c)
	case models.CollectionTypeAIRecommendationGlobal:
		return e.syncAIGlobal(ctx, c)
	default:
		return nil // ai_recommendation is computed per-user at request time (§4.8), nothing to sync here.
	}
}

// syncFilter re-evaluates a filter collection's rule set over every
// cached media row and records up to 9 samples for cover generation
// (spec.md §3 "for filter types: up to 9 samples used only for cover
// generation").
func (e *Engine) syncFilter(ctx context.Context, c *models.CustomCollection) error {
	var def models.FilterDefinition
	if err := decodeDefinition(c.Definition, &def); err != nil {
		return err
	}
	airing, err := e.loadAiring(ctx)
	if err != nil {
		return err
	}
	evaluator := NewEvaluator(airing, nil)

	rows, err := e.media.All(ctx, c.ItemTypes.Data())
	if err != nil {
		return err
	}

	var matched []models.MediaMetadata
	inLibrary := 0
	for _, row := range rows {
		if evaluator.Matches(row, def) {
			matched = append(matched, row)
			if row.InLibrary {
				inLibrary++
			}
		}
	}

	samples := matched
	if len(samples) > 9 {
		samples = samples[:9]
	}
	entries := make([]models.GeneratedMediaEntry, 0, len(samples))
	for _, m := range samples {
		entries = append(entries, models.GeneratedMediaEntry{MetadataID: m.MetadataID, ItemType: m.ItemType})
	}

	c.GeneratedMediaInfo = jsonEntries(entries)
	c.InLibraryCount = inLibrary
	c.LastSyncedAt = time.Now()
	e.regenerateCover(ctx, c, entries)
	return e.collections.Save(ctx, c)
}

// syncList runs the list importer then the list-collection health
// check, spec.md §4.4 "List-collection health check".
func (e *Engine) syncList(ctx context.Context, c *models.CustomCollection) error {
	var def models.ListDefinition
	if err := decodeDefinition(c.Definition, &def); err != nil {
		return err
	}
	imported, err := e.importer.Import(ctx, def)
	if err != nil {
		return err
	}

	entries := make([]models.GeneratedMediaEntry, 0, len(imported))
	inLibrary := 0
	now := time.Now()
	for _, item := range imported {
		entries = append(entries, models.GeneratedMediaEntry{
			MetadataID:   item.MetadataID,
			ItemType:     item.ItemType,
			SeasonNumber: item.SeasonNumber,
		})

		row, err := e.media.Find(ctx, item.MetadataID, item.ItemType)
		if err != nil {
			if !apperrors.Is(err, apperrors.KindAuthoritativeNotFound) {
				continue
			}
			row = &models.MediaMetadata{MetadataID: item.MetadataID, ItemType: item.ItemType, Title: item.Title, DateAdded: now}
			if !item.ReleaseDate.IsZero() {
				releaseDate := item.ReleaseDate
				row.ReleaseDate = &releaseDate
			}
		}
		if row.InLibrary {
			inLibrary++
			continue
		}
		source := models.SubscriptionSource{Type: "collection", ID: fmt.Sprint(c.ID), Name: c.Name}
		row.AddSubscriptionSource(source)
		if row.ReleaseDate != nil && row.ReleaseDate.After(now) {
			row.SubscriptionStatus = models.SubStatusPendingRelease
		} else if row.SubscriptionStatus == models.SubStatusNone {
			row.SubscriptionStatus = models.SubStatusWanted
		}
		if err := e.saveMedia(ctx, row); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Int64("metadataId", item.MetadataID).Msg("collection health check: saving media row failed")
		}
	}

	e.removeStaleSources(ctx, c, entries)

	c.GeneratedMediaInfo = jsonEntries(entries)
	c.InLibraryCount = inLibrary
	c.LastSyncedAt = now
	samples := entries
	if len(samples) > 9 {
		samples = samples[:9]
	}
	e.regenerateCover(ctx, c, samples)
	return e.collections.Save(ctx, c)
}

// removeStaleSources implements "Items removed from the list have the
// collection source removed (possibly returning them to NONE)".
func (e *Engine) removeStaleSources(ctx context.Context, c *models.CustomCollection, current []models.GeneratedMediaEntry) {
	currentSet := map[string]bool{}
	for _, entry := range current {
		currentSet[fmt.Sprintf("%d:%s", entry.MetadataID, entry.ItemType)] = true
	}
	previous, err := e.media.FindBySubscriptionSource(ctx, "collection", fmt.Sprint(c.ID))
	if err != nil {
		return
	}
	for i := range previous {
		row := &previous[i]
		key := fmt.Sprintf("%d:%s", row.MetadataID, row.ItemType)
		if currentSet[key] {
			continue
		}
		if removed, _ := row.RemoveSubscriptionSource("collection", fmt.Sprint(c.ID)); removed {
			_ = e.saveMedia(ctx, row)
		}
	}
}

// syncAIGlobal computes the site-wide AI recommendation pool once
// (vs. per-user ai_recommendation, resolved live by the proxy).
func (e *Engine) syncAIGlobal(ctx context.Context, c *models.CustomCollection) error {
	rows, err := e.media.FindInLibrary(ctx)
	if err != nil {
		return err
	}
	var history []HistoryEntry
	for _, row := range rows {
		if row.Rating >= 7.0 {
			history = append(history, HistoryEntry{MetadataID: row.MetadataID, ItemType: row.ItemType, Title: row.Title, Year: row.ReleaseYear})
		}
	}
	candidates, err := e.media.All(ctx, c.ItemTypes.Data())
	if err != nil {
		return err
	}
	limit := 50
	if def, err := decodeLimit(c.Definition); err == nil && def > 0 {
		limit = def
	}
	recs, err := e.recommender.Recommend(ctx, history, candidates, limit)
	if err != nil {
		return err
	}
	entries := make([]models.GeneratedMediaEntry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, models.GeneratedMediaEntry{MetadataID: r.MetadataID, ItemType: r.ItemType})
	}
	c.GeneratedMediaInfo = jsonEntries(entries)
	c.LastSyncedAt = time.Now()
	samples := entries
	if len(samples) > 9 {
		samples = samples[:9]
	}
	e.regenerateCover(ctx, c, samples)
	return e.collections.Save(ctx, c)
}

// RecommendForUser computes a per-user ai_recommendation candidate
// pool at request time, spec.md §4.8 "compute the recommendation set
// for uid with a candidate pool >= limit".
func (e *Engine) RecommendForUser(ctx context.Context, history []HistoryEntry, itemTypes []models.ItemType, limit int) ([]models.MediaMetadata, error) {
	candidates, err := e.media.All(ctx, itemTypes)
	if err != nil {
		return nil, err
	}
	return e.recommender.Recommend(ctx, history, candidates, limit)
}

// MatchAndAppend implements the processor.CollectionMatcher hook
// spec.md §4.2 step 7(b) calls: append a freshly-processed item to
// every filter collection it newly matches.
func (e *Engine) MatchAndAppend(ctx context.Context, entry models.GeneratedMediaEntry) error {
	row, err := e.media.Find(ctx, entry.MetadataID, entry.ItemType)
	if err != nil {
		return err
	}
	filters, err := e.collections.FindByType(ctx, models.CollectionTypeFilter)
	if err != nil {
		return err
	}
	airing, err := e.loadAiring(ctx)
	if err != nil {
		return err
	}
	evaluator := NewEvaluator(airing, nil)

	for i := range filters {
		c := &filters[i]
		var def models.FilterDefinition
		if err := decodeDefinition(c.Definition, &def); err != nil {
			continue
		}
		if !evaluator.Matches(*row, def) {
			continue
		}
		existing := c.GeneratedMediaInfo.Data()
		if containsEntry(existing, entry) {
			continue
		}
		if len(existing) < 9 {
			existing = append(existing, entry)
			c.GeneratedMediaInfo = jsonEntries(existing)
			e.regenerateCover(ctx, c, existing)
		}
		c.InLibraryCount++
		if err := e.collections.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func containsEntry(list []models.GeneratedMediaEntry, e models.GeneratedMediaEntry) bool {
	for _, x := range list {
		if x.MetadataID == e.MetadataID && x.ItemType == e.ItemType {
			return true
		}
	}
	return false
}

func (e *Engine) saveMedia(ctx context.Context, row *models.MediaMetadata) error {
	if _, err := e.media.Find(ctx, row.MetadataID, row.ItemType); err != nil {
		if apperrors.Is(err, apperrors.KindAuthoritativeNotFound) {
			return e.media.Create(ctx, row)
		}
		return err
	}
	return e.media.Save(ctx, row)
}
