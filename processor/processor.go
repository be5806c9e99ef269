// Package processor implements the Metadata Processor, spec.md §4.2:
// the single entry point that reconciles a library item's cast against
// the cultural provider, resolves each actor's identity, scores the
// result, and either writes it back or parks it for review. Grounded
// on the teacher's services/jobs package shape (a single-purpose job
// type wired with its repositories and clients through a constructor),
// narrowed here to one synchronous operation instead of a cron job.
package processor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mediabridge/apperrors"
	"mediabridge/clients/cultural"
	"mediabridge/clients/library"
	"mediabridge/clients/metadata"
	"mediabridge/identity"
	"mediabridge/logging"
	"mediabridge/metrics"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

// WatchlistAdder is the fan-out hook spec.md §4.2 step 7(a) calls for
// series items; implemented by the watchlist processor.
type WatchlistAdder interface {
	AddSeries(ctx context.Context, metadataID int64) error
}

// CollectionMatcher is the fan-out hook spec.md §4.2 step 7(b) calls to
// append a newly-processed item to any custom collection it now matches.
type CollectionMatcher interface {
	MatchAndAppend(ctx context.Context, entry models.GeneratedMediaEntry) error
}

// CoverGenerator is the fan-out hook spec.md §4.2 step 7(c) calls for
// each library view the item belongs to, when cover generation is on.
type CoverGenerator interface {
	GenerateForLibrary(ctx context.Context, libraryViewID string) error
}

// Config carries the processor's tunables, spec.md §4.1 "configured
// threshold" and §4.2's optional cover-generation fan-out.
type Config struct {
	QualityFloor    float64
	CoverGenEnabled bool
}

// Result is process()'s return shape, spec.md §4.2's public contract.
type Result struct {
	OK            bool
	NeedsReview   bool
	Reason        string
	AffectedFacts []string
}

// Processor is the single entry point described by spec.md §4.2.
type Processor struct {
	db          *gorm.DB
	library     *library.Client
	cultural    *cultural.Client
	meta        metadata.Provider
	translator  identity.Translator
	media       repo.MediaRepository
	processed   repo.ProcessedItemRepository
	review      repo.ReviewQueueRepository
	watchlist   WatchlistAdder
	collections CollectionMatcher
	cover       CoverGenerator
	cfg         Config
}

func New(
	db *gorm.DB,
	lib *library.Client,
	cult *cultural.Client,
	meta metadata.Provider,
	translator identity.Translator,
	media repo.MediaRepository,
	processed repo.ProcessedItemRepository,
	review repo.ReviewQueueRepository,
	watchlist WatchlistAdder,
	collections CollectionMatcher,
	cover CoverGenerator,
	cfg Config,
) *Processor {
	return &Processor{
		db:          db,
		library:     lib,
		cultural:    cult,
		meta:        meta,
		translator:  translator,
		media:       media,
		processed:   processed,
		review:      review,
		watchlist:   watchlist,
		collections: collections,
		cover:       cover,
		cfg:         cfg,
	}
}

// Process implements spec.md §4.2's 7-step contract.
func (p *Processor) Process(ctx context.Context, libraryItemID string, forceFullUpdate bool) (Result, error) {
	start := time.Now()
	result, err := p.process(ctx, libraryItemID, forceFullUpdate)
	metrics.RecordProcess(outcomeOf(result, err), time.Since(start))
	return result, err
}

func outcomeOf(r Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case r.NeedsReview:
		return "reviewed"
	default:
		return "written"
	}
}

func (p *Processor) process(ctx context.Context, libraryItemID string, forceFullUpdate bool) (Result, error) {
	log := logging.FromContext(ctx)

	if forceFullUpdate {
		if err := p.processed.Clear(ctx, libraryItemID); err != nil {
			log.Warn().Err(err).Str("item", libraryItemID).Msg("clearing processed-item cache")
		}
	} else if cached, err := p.processed.Get(ctx, libraryItemID); err == nil {
		return resultFromCache(cached), nil
	}

	item, err := p.library.GetItem(ctx, libraryItemID)
	if err != nil {
		return Result{}, fmt.Errorf("processor: loading item %s: %w", libraryItemID, err)
	}

	// Step 1: an episode is never processed on its own; its owning
	// series is processed instead.
	if item.Type == "Episode" {
		if item.SeriesID == "" {
			return Result{}, apperrors.Validation("episode " + libraryItemID + " has no owning series id")
		}
		return p.Process(ctx, item.SeriesID, forceFullUpdate)
	}

	originalCast := actorsFromPeople(item.People)
	directorCandidates := directorsFromPeople(item.People)

	var candidateCast []identity.RawActor
	if imdbID := item.ProviderIDs["Imdb"]; imdbID != "" {
		candidateCast, err = p.cultural.FetchCast(ctx, imdbID)
	} else if item.Name != "" && item.ProductionYear > 0 {
		candidateCast, err = p.cultural.FetchCastByNameYear(ctx, item.Name, item.ProductionYear)
	}
	if err != nil && !apperrors.Is(err, apperrors.KindAuthoritativeNotFound) {
		log.Warn().Err(err).Str("item", libraryItemID).Msg("cultural cast lookup failed, continuing with original cast only")
	}

	merged := mergeCast(originalCast, candidateCast)

	var finalActors []models.ActorRef
	var finalDirectors []models.ActorRef
	var castForScoring []identity.CastActor

	txErr := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, d := range directorCandidates {
			if !identity.ContainsCJK(d.Name) && d.Name != "" {
				if translated, terr := identity.TranslateCached(ctx, tx, "director-name", d.Name, p.translator); terr == nil && translated != "" {
					d.Name = translated
				}
			}
			row, rerr := identity.Resolve(ctx, tx, d)
			if rerr != nil {
				log.Warn().Err(rerr).Str("director", d.Name).Msg("identity resolution failed, dropping director")
				continue
			}
			var metadataPersonID int64
			if row.MetadataPersonID != nil {
				metadataPersonID = *row.MetadataPersonID
			}
			finalDirectors = append(finalDirectors, models.ActorRef{
				MetadataPersonID: metadataPersonID,
				Name:             d.Name,
				Order:            i,
			})
		}

		for i := range merged {
			a := &merged[i]

			if !identity.ContainsCJK(a.name) && a.name != "" {
				if translated, terr := identity.TranslateCached(ctx, tx, "cast-name", a.name, p.translator); terr == nil && translated != "" {
					a.name = translated
				}
			}
			a.role = identity.CleanRole(a.role)
			if !identity.ContainsCJK(a.role) && a.role != "" && !identity.IsPlaceholder(a.role) {
				if translated, terr := identity.TranslateCached(ctx, tx, "cast-role", a.role, p.translator); terr == nil && translated != "" {
					a.role = translated
				}
			}

			row, rerr := identity.Resolve(ctx, tx, a.raw)
			if rerr != nil {
				log.Warn().Err(rerr).Str("actor", a.name).Msg("identity resolution failed, dropping actor from cast")
				continue
			}

			var metadataPersonID int64
			if row.MetadataPersonID != nil {
				metadataPersonID = *row.MetadataPersonID
			}
			finalActors = append(finalActors, models.ActorRef{
				MetadataPersonID: metadataPersonID,
				Name:             a.name,
				Role:             a.role,
				Order:            a.order,
			})
			castForScoring = append(castForScoring, identity.CastActor{Name: a.name, Role: a.role})
		}
		return nil
	})
	if txErr != nil {
		return Result{}, fmt.Errorf("processor: resolving cast identities for %s: %w", libraryItemID, txErr)
	}

	itemType := itemTypeOf(item.Type)
	metadataID, hasMetadataID := parseMetadataID(item)
	isAnimation := hasMetadataID && p.hasExemptGenre(ctx, metadataID, itemType)
	score := identity.ScoreCast(castForScoring, len(originalCast), nil, isAnimation)

	if score < p.cfg.QualityFloor {
		reason := fmt.Sprintf("cast quality score %.1f below threshold %.1f", score, p.cfg.QualityFloor)
		entry := models.ReviewQueueEntry{
			LibraryItemID: libraryItemID,
			Reason:        reason,
			QualityScore:  score,
			Cast:          datatypes.NewJSONType(finalActors),
		}
		if err := p.review.Upsert(ctx, &entry); err != nil {
			return Result{}, fmt.Errorf("processor: parking %s on review queue: %w", libraryItemID, err)
		}
		p.saveProcessed(ctx, libraryItemID, "needs_review", reason)
		return Result{NeedsReview: true, Reason: reason}, nil
	}

	people := peopleFromActors(finalActors)
	if err := p.library.UpdateItemCast(ctx, libraryItemID, people); err != nil {
		return Result{}, fmt.Errorf("processor: writing cast back for %s: %w", libraryItemID, err)
	}

	affected := []string{"cast"}
	if hasMetadataID {
		if err := p.upsertMediaMetadata(ctx, metadataID, itemType, item, libraryItemID, finalActors, finalDirectors); err != nil {
			return Result{}, fmt.Errorf("processor: upserting media metadata for %s: %w", libraryItemID, err)
		}
		affected = append(affected, "media_metadata")
	}

	p.fanOut(ctx, item, itemType, metadataID, hasMetadataID, libraryItemID)

	p.saveProcessed(ctx, libraryItemID, "ok", "")
	return Result{OK: true, AffectedFacts: affected}, nil
}

// fanOut implements spec.md §4.2 step 7. Failures here are logged, not
// fatal: the cast write-back already succeeded and must not be undone
// by a derived-view hiccup.
func (p *Processor) fanOut(ctx context.Context, item *library.Item, itemType models.ItemType, metadataID int64, hasMetadataID bool, libraryItemID string) {
	log := logging.FromContext(ctx)

	if itemType == models.ItemTypeSeries && hasMetadataID && p.watchlist != nil {
		if err := p.watchlist.AddSeries(ctx, metadataID); err != nil {
			log.Warn().Err(err).Str("item", libraryItemID).Msg("watchlist fan-out failed")
		}
	}

	if hasMetadataID && p.collections != nil {
		entry := models.GeneratedMediaEntry{MetadataID: metadataID, ItemType: itemType, LibraryItemID: &libraryItemID}
		if err := p.collections.MatchAndAppend(ctx, entry); err != nil {
			log.Warn().Err(err).Str("item", libraryItemID).Msg("collection match fan-out failed")
		}
	}

	if p.cfg.CoverGenEnabled && p.cover != nil && item.ParentID != "" {
		if err := p.cover.GenerateForLibrary(ctx, item.ParentID); err != nil {
			log.Warn().Err(err).Str("item", libraryItemID).Msg("cover generation fan-out failed")
		}
	}
}

// upsertMediaMetadata writes the full local metadata row spec.md §4.2
// step 6 and §4.4/§4.8's filter and permission engines read from: every
// Library-Server-sourced field the item carries (requested via
// itemDetailFields in clients/library), supplemented by the metadata
// provider for the facts the Library Server doesn't track (countries,
// keywords, a TMDB-sourced overview/rating fallback).
func (p *Processor) upsertMediaMetadata(ctx context.Context, metadataID int64, itemType models.ItemType, item *library.Item, libraryItemID string, actors, directors []models.ActorRef) error {
	log := logging.FromContext(ctx)
	row, err := p.media.Find(ctx, metadataID, itemType)
	isNew := false
	if err != nil {
		if !apperrors.Is(err, apperrors.KindAuthoritativeNotFound) {
			return err
		}
		isNew = true
		row = &models.MediaMetadata{MetadataID: metadataID, ItemType: itemType, DateAdded: time.Now()}
	}

	overview, providerReleaseDate, providerRating, countries, keywords := p.fetchProviderFacts(ctx, metadataID, itemType)

	row.Title = item.Name
	row.InLibrary = true
	row.Actors = datatypes.NewJSONType(actors)
	row.Directors = datatypes.NewJSONType(directors)
	row.LastSyncedAt = time.Now()

	row.Overview = firstNonEmpty(item.Overview, overview)
	row.UnifiedRating = unifiedRating(item.OfficialRating)
	row.RuntimeMinutes = runtimeMinutes(item.RunTimeTicks)
	if item.CommunityRating > 0 {
		row.Rating = item.CommunityRating
	} else {
		row.Rating = providerRating
	}

	if released, ok := parseItemDate(item.PremiereDate); ok {
		row.ReleaseDate = &released
		row.ReleaseYear = released.Year()
	} else if released, ok := parseItemDate(providerReleaseDate); ok {
		row.ReleaseDate = &released
		row.ReleaseYear = released.Year()
	}

	if len(item.Genres) > 0 {
		row.Genres = datatypes.NewJSONType(item.Genres)
	}
	if len(countries) > 0 {
		row.Countries = datatypes.NewJSONType(countries)
	}
	if len(item.Studios) > 0 {
		row.Studios = datatypes.NewJSONType(studioNames(item.Studios))
	}
	if len(item.Tags) > 0 {
		row.Tags = datatypes.NewJSONType(item.Tags)
	}
	if len(keywords) > 0 {
		row.Keywords = datatypes.NewJSONType(keywords)
	}

	ids := row.LibraryItemIDs.Data()
	known := false
	for _, id := range ids {
		if id == libraryItemID {
			known = true
			break
		}
	}
	if !known {
		ids = append(ids, libraryItemID)
	}
	row.LibraryItemIDs = datatypes.NewJSONType(ids)

	row.AssetDetails = datatypes.NewJSONType(upsertAssetDetail(row.AssetDetails.Data(), libraryItemID, item))

	if isNew {
		if err := p.media.Create(ctx, row); err != nil {
			return err
		}
	} else if err := p.media.Save(ctx, row); err != nil {
		return err
	}
	log.Debug().Int64("metadataId", metadataID).Str("item", libraryItemID).Msg("media metadata upserted")
	return nil
}

// fetchProviderFacts supplements the Library-Server-sourced fields with
// whatever the metadata provider knows for metadataID: an overview and
// release-date fallback (the Library Server sometimes leaves these
// blank for items still missing local NFO data), a rating fallback
// when the Library Server carries no community rating yet, and the
// production-country/keyword lists the Library Server never tracks at
// all. A provider lookup failure degrades to empty values rather than
// failing the whole upsert — the fields it didn't already have stay
// unset, same as before this call existed.
func (p *Processor) fetchProviderFacts(ctx context.Context, metadataID int64, itemType models.ItemType) (overview, releaseDate string, rating float64, countries, keywords []string) {
	if p.meta == nil {
		return
	}
	log := logging.FromContext(ctx)
	id := strconv.FormatInt(metadataID, 10)

	if itemType == models.ItemTypeMovie {
		movie, err := p.meta.GetMovie(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("metadataId", metadataID).Msg("metadata provider movie lookup failed")
			return
		}
		return movie.Overview, movie.ReleaseDate, movie.VoteAverage, movie.Countries, movie.Keywords
	}

	show, err := p.meta.GetTVShow(ctx, id)
	if err != nil {
		log.Warn().Err(err).Int64("metadataId", metadataID).Msg("metadata provider tv show lookup failed")
		return
	}
	return show.Overview, show.FirstAirDate, show.VoteAverage, show.Countries, show.Keywords
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// runtimeMinutes converts the Library Server's RunTimeTicks (100ns
// units) into whole minutes.
func runtimeMinutes(ticks int64) int {
	if ticks <= 0 {
		return 0
	}
	const ticksPerMinute = int64(time.Minute / 100)
	return int(ticks / ticksPerMinute)
}

func parseItemDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func studioNames(studios []library.NameIdPair) []string {
	out := make([]string, 0, len(studios))
	for _, s := range studios {
		out = append(out, s.Name)
	}
	return out
}

// upsertAssetDetail records or refreshes libraryItemID's folder
// placement, the source library and ancestor-folder chain spec.md
// §4.8's permission filter keys on.
func upsertAssetDetail(existing []models.AssetDetail, libraryItemID string, item *library.Item) []models.AssetDetail {
	detail := models.AssetDetail{
		LibraryItemID:   libraryItemID,
		SourceLibraryID: sourceLibraryID(item.AncestorIDs),
		AncestorIDs:     item.AncestorIDs,
	}
	for i := range existing {
		if existing[i].LibraryItemID == libraryItemID {
			existing[i] = detail
			return existing
		}
	}
	return append(existing, detail)
}

// sourceLibraryID takes the root of the Library Server's ancestor
// chain (CollectionFolder, Items/{id}'s AncestorIds runs leaf-to-root)
// as the owning top-level library.
func sourceLibraryID(ancestorIDs []string) string {
	if len(ancestorIDs) == 0 {
		return ""
	}
	return ancestorIDs[len(ancestorIDs)-1]
}

// unifiedRatingMap converts a Library Server OfficialRating into the
// numeric parental-rating age the permission filter's MaxParentalRating
// comparison expects (storage/repo/media.go's FilterVisible casts
// unified_rating straight to int), grounded on original_source's
// RATING_MAP/country-prefix-stripping technique but re-keyed onto a
// numeric age scale instead of that implementation's five-bucket
// vocabulary.
var unifiedRatingMap = map[string]string{
	"g": "0", "tv-g": "0", "tv-y": "0", "approved": "0", "e": "0", "u": "0", "all": "0",
	"pg": "7", "tv-pg": "7", "tv-y7": "7", "tv-y7-fv": "7",
	"pg-13": "13", "tv-14": "14",
	"r": "17", "m": "17", "tv-ma": "17",
	"nc-17": "18", "ao": "18", "x": "18",
}

// unifiedRating resolves officialRating to a numeric age string, or ""
// when the rating is absent or explicitly unrated.
func unifiedRating(officialRating string) string {
	if officialRating == "" {
		return ""
	}
	key := strings.ToLower(officialRating)
	switch key {
	case "nr", "unrated", "ur", "not rated":
		return ""
	}
	if v, ok := unifiedRatingMap[key]; ok {
		return v
	}
	// Country-prefixed ratings ("us-pg-13", "de-16") carry the real
	// grade after the first hyphen; a bare numeric suffix (national
	// age-rating boards) is already the value this column wants.
	if idx := strings.Index(key, "-"); idx >= 0 {
		rest := key[idx+1:]
		if v, ok := unifiedRatingMap[rest]; ok {
			return v
		}
		if isDigits(rest) {
			return rest
		}
	}
	if isDigits(key) {
		return key
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (p *Processor) saveProcessed(ctx context.Context, libraryItemID, kind, reason string) {
	log := logging.FromContext(ctx)
	err := p.processed.Save(ctx, &models.ProcessedItem{
		LibraryItemID: libraryItemID,
		ResultKind:    kind,
		Reason:        reason,
		ProcessedAt:   time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("item", libraryItemID).Msg("writing processed-item cache")
	}
}

func resultFromCache(c *models.ProcessedItem) Result {
	if c.ResultKind == "needs_review" {
		return Result{NeedsReview: true, Reason: c.Reason}
	}
	return Result{OK: true}
}

// workingActor is one cast member mid-pipeline: original/candidate
// fields merged, name and role not yet translated or cleaned.
type workingActor struct {
	name  string
	role  string
	order int
	raw   identity.RawActor
}

func actorsFromPeople(people []library.Person) []identity.RawActor {
	out := make([]identity.RawActor, 0, len(people))
	for _, person := range people {
		if person.Type != "" && person.Type != "Actor" {
			continue
		}
		a := identity.RawActor{Name: person.Name, Role: person.Role, Order: person.SortOrder}
		if person.ProviderIDs != nil {
			if imdb := person.ProviderIDs["Imdb"]; imdb != "" {
				a.IMDbID = imdb
			}
			if tmdb := person.ProviderIDs["Tmdb"]; tmdb != "" {
				if n, err := strconv.ParseUint(tmdb, 10, 64); err == nil {
					a.MetadataID = &n
				}
			}
		}
		out = append(out, a)
	}
	return out
}

// directorsFromPeople mirrors actorsFromPeople for the People entries
// the Library Server tags as directing credits; spec.md §3's Directors
// field on MediaMetadata is resolved the same way actors are, minus
// the cultural-provider enrichment pass actors get.
func directorsFromPeople(people []library.Person) []identity.RawActor {
	out := make([]identity.RawActor, 0)
	for _, person := range people {
		if person.Type != "Director" {
			continue
		}
		d := identity.RawActor{Name: person.Name, Order: person.SortOrder}
		if person.ProviderIDs != nil {
			if imdb := person.ProviderIDs["Imdb"]; imdb != "" {
				d.IMDbID = imdb
			}
			if tmdb := person.ProviderIDs["Tmdb"]; tmdb != "" {
				if n, err := strconv.ParseUint(tmdb, 10, 64); err == nil {
					d.MetadataID = &n
				}
			}
		}
		out = append(out, d)
	}
	return out
}

// mergeCast implements spec.md §4.2 step 2's matching: the Library
// Server's roster is the baseline (order and membership), enriched
// with the cultural provider's role/alias information for any actor it
// also lists, matched by normalized name (grounded on spec.md §4.1's
// NFKD/strip/lowercase normalization, the only stable key the cultural
// provider's per-actor credits carry).
func mergeCast(original, candidates []identity.RawActor) []workingActor {
	out := make([]workingActor, 0, len(original))
	for _, o := range original {
		w := workingActor{name: o.Name, role: o.Role, order: o.Order, raw: o}
		for _, c := range candidates {
			if identity.SameActor(o.Name, c.Name) {
				w.role = identity.SelectRole(o.Role, c.Role)
				if c.CulturalID != "" {
					w.raw.CulturalID = c.CulturalID
				}
				if c.CulturalURL != "" {
					w.raw.CulturalURL = c.CulturalURL
				}
				break
			}
		}
		out = append(out, w)
	}
	return out
}

func itemTypeOf(t string) models.ItemType {
	switch t {
	case "Series":
		return models.ItemTypeSeries
	case "Season":
		return models.ItemTypeSeason
	case "Episode":
		return models.ItemTypeEpisode
	default:
		return models.ItemTypeMovie
	}
}

func parseMetadataID(item *library.Item) (int64, bool) {
	raw := item.ProviderIDs["Tmdb"]
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// hasExemptGenre checks a previously-synced MediaMetadata row for the
// animation/documentary size-penalty exemption spec.md §4.1 names.
// Only the stored row's genres are read, not the Library Server item's
// own Genres, so a never-before-seen item is never exempt on its first
// pass.
func (p *Processor) hasExemptGenre(ctx context.Context, metadataID int64, itemType models.ItemType) bool {
	row, err := p.media.Find(ctx, metadataID, itemType)
	if err != nil {
		return false
	}
	for _, g := range row.Genres.Data() {
		if g == "Animation" || g == "Documentary" {
			return true
		}
	}
	return false
}

func peopleFromActors(actors []models.ActorRef) []library.Person {
	out := make([]library.Person, 0, len(actors))
	for _, a := range actors {
		p := library.Person{Name: a.Name, Role: a.Role, Type: "Actor", SortOrder: a.Order}
		if a.MetadataPersonID != 0 {
			p.ProviderIDs = map[string]string{"Tmdb": strconv.FormatInt(a.MetadataPersonID, 10)}
		}
		out = append(out, p)
	}
	return out
}
