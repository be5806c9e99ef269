// Package actorsub implements spec.md §4.3's actor subscription scan:
// pull an actor's filmography, dedup by normalized title, enrich TV
// works with the actor's billing order, classify each work against
// the subscription's filter config, and reconcile subscription
// sources on the local media cache. Grounded on the teacher's
// services/jobs single-purpose-job shape, the same shape derived/watchlist
// already follows.
package actorsub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mediabridge/apperrors"
	"mediabridge/clients/metadata"
	"mediabridge/identity"
	"mediabridge/logging"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

// enrichConcurrency bounds the per-title TV billing-order fetches,
// spec.md §4.3 "bounded concurrency = 5".
const enrichConcurrency = 5

type Scanner struct {
	subs  repo.ActorSubscriptionRepository
	media repo.MediaRepository
	meta  metadata.Provider
}

func New(subs repo.ActorSubscriptionRepository, media repo.MediaRepository, meta metadata.Provider) *Scanner {
	return &Scanner{subs: subs, media: media, meta: meta}
}

// work is one deduplicated filmography entry, carrying the fields the
// filter config and classifier both need.
type work struct {
	metadataID  string
	itemType    models.ItemType
	title       string
	releaseDate string
	popularity  float64
	voteAverage float64
	voteCount   int
	genreIDs    []int
	order       int
}

// ScanAll runs every active subscription in turn, spec.md §4.3 "For
// each active actor subscription". A single subscription's failure is
// logged and skipped rather than aborting the remaining scans.
func (s *Scanner) ScanAll(ctx context.Context) error {
	log := logging.FromContext(ctx)
	subs, err := s.subs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("actorsub: listing active subscriptions: %w", err)
	}
	for i := range subs {
		if err := s.ScanSubscription(ctx, &subs[i]); err != nil {
			log.Error().Err(err).Str("actor", subs[i].ActorName).Msg("actor subscription scan failed")
		}
	}
	return nil
}

// ScanSubscription implements the full per-actor pipeline.
func (s *Scanner) ScanSubscription(ctx context.Context, sub *models.ActorSubscription) error {
	log := logging.FromContext(ctx).With().Str("actor", sub.ActorName).Logger()

	works, err := s.filmography(ctx, sub.MetadataPersonID)
	if err != nil {
		return fmt.Errorf("actorsub: fetching filmography: %w", err)
	}
	works = dedupeByTitle(works)
	if err := s.enrichOrder(ctx, works, sub.MetadataPersonID); err != nil {
		log.Warn().Err(err).Msg("billing-order enrichment partially failed")
	}

	filter := sub.Filter.Data()
	sourceType, sourceID := "actor_subscription", strconv.FormatUint(uint64(sub.ID), 10)

	stillTracked := make(map[string]bool, len(works))
	for _, w := range works {
		kept, reason := matchesFilter(w, filter)
		stillTracked[w.metadataID] = true

		row, ferr := s.media.Find(ctx, parseID(w.metadataID), w.itemType)
		isNew := false
		if ferr != nil {
			if !apperrors.Is(ferr, apperrors.KindAuthoritativeNotFound) {
				log.Error().Err(ferr).Str("metadataId", w.metadataID).Msg("looking up tracked work")
				continue
			}
			isNew = true
			row = &models.MediaMetadata{
				MetadataID: parseID(w.metadataID),
				ItemType:   w.itemType,
				Title:      w.title,
				DateAdded:  time.Now(),
			}
		}

		source := models.SubscriptionSource{Type: sourceType, ID: sourceID, Name: sub.ActorName}
		row.AddSubscriptionSource(source)
		switch {
		case !kept:
			row.SubscriptionStatus = models.SubStatusIgnored
			log.Debug().Str("title", w.title).Str("reason", reason).Msg("work ignored by filter")
		case row.InLibrary:
			// Already in the library: the actor subscription module
			// has no authority to move a library item's own status,
			// spec.md §4.3 "subscribed when missing or pending release".
		default:
			row.SubscriptionStatus = models.SubStatusWanted
		}

		if isNew {
			err = s.media.Create(ctx, row)
		} else {
			err = s.media.Save(ctx, row)
		}
		if err != nil {
			log.Error().Err(err).Str("metadataId", w.metadataID).Msg("saving tracked work")
		}
	}

	if err := s.unbindDropped(ctx, sourceType, sourceID, stillTracked); err != nil {
		log.Error().Err(err).Msg("unbinding dropped works")
	}

	return s.subs.TouchLastChecked(ctx, sub.ID)
}

// unbindDropped removes the subscription source from every tracked row
// whose TMDb id is no longer present in the actor's current filmography,
// spec.md §4.3 "Works that fall out of the actor's current filmography
// have the subscription source removed".
func (s *Scanner) unbindDropped(ctx context.Context, sourceType, sourceID string, stillTracked map[string]bool) error {
	tracked, err := s.media.FindBySubscriptionSource(ctx, sourceType, sourceID)
	if err != nil {
		return err
	}
	for i := range tracked {
		row := &tracked[i]
		key := strconv.FormatInt(row.MetadataID, 10)
		if stillTracked[key] {
			continue
		}
		row.RemoveSubscriptionSource(sourceType, sourceID)
		if err := s.media.Save(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// filmography fetches and merges movie and TV credits concurrently.
func (s *Scanner) filmography(ctx context.Context, personID string) ([]work, error) {
	var movies []metadata.Credit
	var tv []metadata.Credit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		movies, err = s.meta.GetPersonMovieCredits(gctx, personID)
		return err
	})
	g.Go(func() error {
		var err error
		tv, err = s.meta.GetPersonTVCredits(gctx, personID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]work, 0, len(movies)+len(tv))
	for _, c := range movies {
		out = append(out, creditToWork(c, models.ItemTypeMovie))
	}
	for _, c := range tv {
		out = append(out, creditToWork(c, models.ItemTypeSeries))
	}
	return out, nil
}

func creditToWork(c metadata.Credit, itemType models.ItemType) work {
	order := c.Order
	if itemType == models.ItemTypeSeries {
		order = 999 // resolved separately via enrichOrder; TV credits don't carry order
	}
	return work{
		metadataID:  c.MediaID,
		itemType:    itemType,
		title:       c.Title,
		releaseDate: c.ReleaseDate,
		popularity:  c.Popularity,
		voteAverage: c.VoteAverage,
		voteCount:   c.VoteCount,
		genreIDs:    c.GenreIDs,
		order:       order,
	}
}

// dedupeByTitle groups works by normalized title (TMDb sometimes
// returns the same production under several regional entries) and
// keeps the most popular representative of each group.
func dedupeByTitle(works []work) []work {
	groups := make(map[string][]work, len(works))
	order := make([]string, 0, len(works))
	for _, w := range works {
		key := identity.NormalizeName(w.title)
		if key == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], w)
	}

	out := make([]work, 0, len(order))
	for _, key := range order {
		group := groups[key]
		best := group[0]
		for _, w := range group[1:] {
			if w.popularity > best.popularity {
				best = w
			}
		}
		out = append(out, best)
	}
	return out
}

// enrichOrder resolves the actor's billing order on every TV work
// concurrently, bounded to enrichConcurrency in-flight fetches.
func (s *Scanner) enrichOrder(ctx context.Context, works []work, personID string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range works {
		if works[i].itemType != models.ItemTypeSeries {
			continue
		}
		i := i
		g.Go(func() error {
			order, err := s.meta.GetTVCastOrder(gctx, works[i].metadataID, personID)
			if err != nil {
				works[i].order = 999
				return nil // a single title's lookup failure shouldn't abort the scan
			}
			works[i].order = order
			return nil
		})
	}
	return g.Wait()
}

// matchesFilter applies spec.md §4.3's filter config, returning false
// plus a human-readable reason on the first failing criterion.
func matchesFilter(w work, f models.ActorSubscriptionFilter) (bool, string) {
	if w.releaseDate == "" {
		return false, "missing release date"
	}
	year, err := strconv.Atoi(strings.SplitN(w.releaseDate, "-", 2)[0])
	if err == nil && f.StartYear > 0 && year < f.StartYear {
		return false, fmt.Sprintf("released before %d", f.StartYear)
	}

	mediaTypeName := "Movie"
	if w.itemType == models.ItemTypeSeries {
		mediaTypeName = "Series"
	}
	if len(f.MediaTypes) > 0 && !contains(f.MediaTypes, mediaTypeName) {
		return false, "excluded media type"
	}

	if len(f.GenresExclude) > 0 && intersects(w.genreIDs, f.GenresExclude) {
		return false, "excluded genre"
	}
	if len(f.GenresInclude) > 0 && !intersects(w.genreIDs, f.GenresInclude) {
		return false, "does not include required genre"
	}

	if f.MinRating > 0 {
		minVotes := f.MinVoteCount
		if minVotes <= 0 {
			minVotes = 10
		}
		exempt := w.voteCount < minVotes || w.voteAverage == 0
		if !exempt && w.voteAverage < f.MinRating {
			return false, fmt.Sprintf("rating %.1f below floor", w.voteAverage)
		}
	}

	if f.ChineseTitleOnly && !identity.ContainsCJK(w.title) {
		return false, "no Chinese title"
	}

	if f.MainRoleOnly && w.order >= 3 {
		return false, "not a main role"
	}

	return true, ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a []int, b []int) bool {
	set := make(map[int]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	for _, v := range a {
		if set[v] {
			return true
		}
	}
	return false
}

func parseID(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
