// Package cleanup implements spec.md §5's duplicate-version scanner:
// find metadata rows backed by more than one library item, rank the
// versions by a configurable tiered rule chain, and record the result
// as a pending CleanupTask for the operator to execute or ignore.
// Grounded on the teacher's services/jobs job shape and the original
// implementation's tasks/cleanup.py quality/resolution/effect/filesize
// rule chain.
package cleanup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"mediabridge/clients/library"
	"mediabridge/config"
	"mediabridge/logging"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

type Scanner struct {
	media   repo.MediaRepository
	cleanup repo.CleanupRepository
	lib     *library.Client
	rules   []config.CleanupRule
}

func New(media repo.MediaRepository, cleanup repo.CleanupRepository, lib *library.Client, cfg config.CleanupConfig) *Scanner {
	return &Scanner{media: media, cleanup: cleanup, lib: lib, rules: cfg.Rules}
}

// Scan walks every metadata row with more than one library item id and
// refreshes its CleanupTask with the current version set and ranking.
func (s *Scanner) Scan(ctx context.Context) error {
	log := logging.FromContext(ctx)
	rows, err := s.media.FindDuplicates(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: listing duplicate rows: %w", err)
	}
	for _, row := range rows {
		if err := s.scanRow(ctx, &row); err != nil {
			log.Error().Err(err).Int64("metadataId", row.MetadataID).Msg("cleanup scan failed for row")
		}
	}
	return nil
}

func (s *Scanner) scanRow(ctx context.Context, row *models.MediaMetadata) error {
	libraryIDs := row.LibraryItemIDs.Data()
	versions := make([]models.CleanupVersion, 0, len(libraryIDs))
	for _, id := range libraryIDs {
		item, err := s.lib.GetItemWithMediaSources(ctx, id)
		if err != nil {
			return fmt.Errorf("fetching media sources for %s: %w", id, err)
		}
		versions = append(versions, versionFromItem(id, item))
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return s.compare(versions[i], versions[j]) < 0
	})

	existing, err := s.cleanup.Find(ctx, row.MetadataID, row.ItemType)
	task := existing
	if err != nil {
		task = &models.CleanupTask{
			MetadataID: row.MetadataID,
			ItemType:   row.ItemType,
			Status:     "pending",
		}
	} else if task.Status == "ignored" {
		return nil // the operator has already dismissed this row
	}

	task.Versions = datatypes.NewJSONType(versions)
	if len(versions) > 0 {
		task.BestVersionID = &versions[0].LibraryItemID
	}
	return s.cleanup.Save(ctx, task)
}

func versionFromItem(libraryItemID string, item *library.Item) models.CleanupVersion {
	v := models.CleanupVersion{LibraryItemID: libraryItemID}
	if len(item.MediaSources) == 0 {
		return v
	}
	source := item.MediaSources[0]
	v.Path = source.Path
	v.SizeBytes = source.SizeBytes
	v.Bitrate = int64(source.Bitrate)
	for _, stream := range source.MediaStreams {
		if stream.Type == "Video" {
			v.Resolution = ResolutionTag(stream.Height)
			v.Effect = EffectTag(stream)
			break
		}
	}
	return v
}

// EffectTag condenses a video stream's dynamic-range signaling into
// the same tag vocabulary the "effect" cleanup rule ranks against.
func EffectTag(stream library.MediaStream) string {
	switch {
	case strings.Contains(stream.VideoRange, "Dolby Vision"):
		switch {
		case strings.Contains(stream.Profile, "8"):
			return "dovi_p8"
		case strings.Contains(stream.Profile, "7"):
			return "dovi_p7"
		case strings.Contains(stream.Profile, "5"):
			return "dovi_p5"
		default:
			return "dovi_other"
		}
	case strings.Contains(strings.ToLower(stream.VideoRange), "hdr10+"):
		return "hdr10+"
	case strings.Contains(strings.ToLower(stream.VideoRange), "hdr"):
		return "hdr"
	default:
		return "sdr"
	}
}

func ResolutionTag(height int) string {
	switch {
	case height >= 2000:
		return "2160p"
	case height >= 1000:
		return "1080p"
	case height >= 700:
		return "720p"
	default:
		return ""
	}
}

// compare ranks a against b, -1 meaning a is the better version,
// evaluating each enabled rule in configured order until one decides.
func (s *Scanner) compare(a, b models.CleanupVersion) int {
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		if c := compareByRule(rule, a, b); c != 0 {
			return c
		}
	}
	return 0
}

func compareByRule(rule config.CleanupRule, a, b models.CleanupVersion) int {
	switch rule.ID {
	case "quality":
		return compareByTag(rule.Priority, qualityTag(a.Path), qualityTag(b.Path))
	case "resolution":
		return compareByTag(rule.Priority, a.Resolution, b.Resolution)
	case "effect":
		return compareByTag(rule.Priority, a.Effect, b.Effect)
	case "filesize":
		switch {
		case a.SizeBytes > b.SizeBytes:
			return -1
		case a.SizeBytes < b.SizeBytes:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// compareByTag ranks two tags by position in priority (earlier wins);
// a tag absent from priority ranks below every listed tag.
func compareByTag(priority []string, a, b string) int {
	ai, bi := indexOf(priority, a), indexOf(priority, b)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if strings.EqualFold(s, v) {
			return i
		}
	}
	return len(list)
}

func qualityTag(path string) string {
	lower := strings.ToLower(path)
	for _, tag := range []string{"remux", "bluray", "web-dl", "webdl", "hdtv"} {
		if strings.Contains(lower, tag) {
			if tag == "webdl" {
				return "web-dl"
			}
			return tag
		}
	}
	return ""
}
