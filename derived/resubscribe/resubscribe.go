// Package resubscribe implements spec.md §4's quality-upgrade scan:
// walk in-library metadata rows, compare the current best version's
// resolution/effect tags against a configured floor, and submit a
// best_version=1 subscribe request to the Downloader when the floor
// isn't met. Grounded on derived/cleanup's tag vocabulary (the two
// scanners rank the same file properties) and the original
// implementation's tasks/resubscribe.py `_evaluate_rating_rule`.
package resubscribe

import (
	"context"
	"fmt"
	"time"

	"mediabridge/apperrors"
	"mediabridge/clients/downloader"
	"mediabridge/clients/library"
	"mediabridge/config"
	"mediabridge/derived/cleanup"
	"mediabridge/logging"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

type Scanner struct {
	media   repo.MediaRepository
	quota   repo.QuotaRepository
	lib     *library.Client
	dl      *downloader.Client
	cfg     config.ResubscribeConfig
	quotaLimit int
}

func New(media repo.MediaRepository, quota repo.QuotaRepository, lib *library.Client, dl *downloader.Client, cfg config.ResubscribeConfig, quotaLimit int) *Scanner {
	return &Scanner{media: media, quota: quota, lib: lib, dl: dl, cfg: cfg, quotaLimit: quotaLimit}
}

// Scan walks every in-library row and resubscribes (or, in "delete"
// mode, flags) whichever ones fall below the configured floor.
func (s *Scanner) Scan(ctx context.Context) error {
	log := logging.FromContext(ctx)
	rows, err := s.media.FindInLibrary(ctx)
	if err != nil {
		return fmt.Errorf("resubscribe: listing in-library rows: %w", err)
	}
	for _, row := range rows {
		if err := s.scanRow(ctx, &row); err != nil {
			log.Error().Err(err).Int64("metadataId", row.MetadataID).Msg("resubscribe scan failed for row")
		}
	}
	return nil
}

// scanRow evaluates one row against the rating floor first (it can
// exempt a row from ever resubscribing, same as the quality floor
// check the original short-circuits on), then against the
// resolution/effect floor.
func (s *Scanner) scanRow(ctx context.Context, row *models.MediaMetadata) error {
	skip, needsAction, reason := s.evaluateRatingRule(row.Rating)
	if skip {
		return nil
	}
	if needsAction && s.cfg.RuleType == "delete" {
		return s.flagForDeletion(ctx, row, reason)
	}

	libraryIDs := row.LibraryItemIDs.Data()
	if len(libraryIDs) == 0 {
		return nil
	}

	meetsFloor, err := s.meetsQualityFloor(ctx, libraryIDs[0])
	if err != nil {
		return err
	}
	if meetsFloor {
		return nil
	}
	return s.resubscribe(ctx, row)
}

// evaluateRatingRule mirrors the original's two-outcome rating check:
// a rating below the floor either exempts the row from resubscribing
// ("resubscribe" mode skips silently) or flags it as needing attention
// ("delete" mode). A zero rating (unrated) is exempt when configured.
func (s *Scanner) evaluateRatingRule(rating float64) (skip bool, needsAction bool, reason string) {
	if !s.cfg.RatingEnabled {
		return false, false, ""
	}
	lowRating := false
	switch {
	case rating == 0 && s.cfg.RatingIgnoreZero:
		// unrated, exempt
	case rating < s.cfg.RatingMin:
		lowRating = true
	}
	if !lowRating {
		return false, false, ""
	}
	if s.cfg.RuleType == "delete" {
		return false, true, fmt.Sprintf("rating too low (%.1f)", rating)
	}
	return true, false, ""
}

func (s *Scanner) flagForDeletion(ctx context.Context, row *models.MediaMetadata, reason string) error {
	logging.FromContext(ctx).Info().
		Int64("metadataId", row.MetadataID).
		Str("title", row.Title).
		Str("reason", reason).
		Msg("resubscribe: flagged for deletion")
	return nil
}

// meetsQualityFloor fetches the library item's current best media
// source and reports whether its resolution/effect already clears the
// configured floor, reusing the cleanup scanner's own tag vocabulary
// so both scanners agree on what "1080p" or "hdr" means.
func (s *Scanner) meetsQualityFloor(ctx context.Context, libraryItemID string) (bool, error) {
	item, err := s.lib.GetItemWithMediaSources(ctx, libraryItemID)
	if err != nil {
		return false, fmt.Errorf("fetching media sources for %s: %w", libraryItemID, err)
	}
	if len(item.MediaSources) == 0 {
		return false, nil
	}
	var resolution, effect string
	for _, stream := range item.MediaSources[0].MediaStreams {
		if stream.Type == "Video" {
			resolution = cleanup.ResolutionTag(stream.Height)
			effect = cleanup.EffectTag(stream)
			break
		}
	}
	if s.cfg.MinResolution != "" && resolutionRank(resolution) < resolutionRank(s.cfg.MinResolution) {
		return false, nil
	}
	if s.cfg.MinEffect != "" && effectRank(effect) < effectRank(s.cfg.MinEffect) {
		return false, nil
	}
	return true, nil
}

// resolutionTiers and effectTiers rank best-to-worst, matching the
// cleanup package's default priority lists.
var resolutionTiers = []string{"2160p", "1080p", "720p"}
var effectTiers = []string{"dovi_p8", "dovi_p7", "dovi_p5", "dovi_other", "hdr10+", "hdr", "sdr"}

func resolutionRank(tag string) int {
	return rank(resolutionTiers, tag)
}

func effectRank(tag string) int {
	return rank(effectTiers, tag)
}

// rank returns a higher number for a better tier, so an absent/unknown
// tag (not present in tiers) ranks below every recognized one.
func rank(tiers []string, tag string) int {
	for i, t := range tiers {
		if t == tag {
			return len(tiers) - i
		}
	}
	return -1
}

// resubscribe checks today's subscription quota before submitting a
// best_version=1 request, the same quota gate every subscribe path in
// this system respects.
func (s *Scanner) resubscribe(ctx context.Context, row *models.MediaMetadata) error {
	date := time.Now().UTC().Format("2006-01-02")
	quota, err := s.quota.GetOrCreate(ctx, date, s.quotaLimit)
	if err != nil {
		return fmt.Errorf("resubscribe: checking quota: %w", err)
	}
	if quota.Remaining() <= 0 {
		return apperrors.RateLimited("resubscribe: daily subscription quota exhausted")
	}

	req := downloader.SubscribeRequest{
		Name:        row.Title,
		TMDBID:      row.MetadataID,
		Type:        string(row.ItemType),
		BestVersion: true,
	}
	if err := s.dl.Subscribe(ctx, req); err != nil {
		return err
	}
	return s.quota.Increment(ctx, date)
}
