package cleanup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediabridge/clients/library"
	"mediabridge/config"
	"mediabridge/storage/models"
)

func TestResolutionTag(t *testing.T) {
	assert.Equal(t, "2160p", ResolutionTag(2160))
	assert.Equal(t, "1080p", ResolutionTag(1080))
	assert.Equal(t, "720p", ResolutionTag(720))
	assert.Equal(t, "", ResolutionTag(480))
}

func TestEffectTagDolbyVisionProfiles(t *testing.T) {
	assert.Equal(t, "dovi_p8", EffectTag(library.MediaStream{VideoRange: "Dolby Vision", Profile: "dvhe.08"}))
	assert.Equal(t, "dovi_other", EffectTag(library.MediaStream{VideoRange: "Dolby Vision", Profile: "dvhe.04"}))
	assert.Equal(t, "hdr10+", EffectTag(library.MediaStream{VideoRange: "HDR10+"}))
	assert.Equal(t, "hdr", EffectTag(library.MediaStream{VideoRange: "HDR10"}))
	assert.Equal(t, "sdr", EffectTag(library.MediaStream{VideoRange: "SDR"}))
}

func TestQualityTagDetectsSourceFromPath(t *testing.T) {
	assert.Equal(t, "remux", qualityTag("/media/Movie (2020) Remux.mkv"))
	assert.Equal(t, "web-dl", qualityTag("/media/Movie.2020.WEBDL.mkv"))
	assert.Equal(t, "", qualityTag("/media/Movie.2020.mkv"))
}

func TestCompareByTagEarlierInPriorityWins(t *testing.T) {
	priority := []string{"2160p", "1080p", "720p"}
	assert.Equal(t, -1, compareByTag(priority, "2160p", "1080p"))
	assert.Equal(t, 1, compareByTag(priority, "720p", "1080p"))
	assert.Equal(t, 0, compareByTag(priority, "1080p", "1080p"))
}

func TestCompareByTagUnlistedTagRanksLast(t *testing.T) {
	priority := []string{"2160p", "1080p"}
	assert.Equal(t, -1, compareByTag(priority, "1080p", "480p"))
}

func TestScannerCompareFallsThroughRuleChain(t *testing.T) {
	s := &Scanner{rules: []config.CleanupRule{
		{ID: "quality", Enabled: true, Priority: []string{"remux", "bluray"}},
		{ID: "filesize", Enabled: true, Priority: []string{"desc"}},
	}}

	remux := models.CleanupVersion{Path: "/a-remux.mkv", SizeBytes: 100}
	bluray := models.CleanupVersion{Path: "/b-bluray.mkv", SizeBytes: 9000}

	assert.Equal(t, -1, s.compare(remux, bluray), "quality rule decides before filesize is consulted")

	tieA := models.CleanupVersion{Path: "/a.mkv", SizeBytes: 100}
	tieB := models.CleanupVersion{Path: "/b.mkv", SizeBytes: 9000}
	assert.Equal(t, 1, s.compare(tieA, tieB), "quality ties, filesize decides (larger wins)")
}

func TestScannerCompareSkipsDisabledRules(t *testing.T) {
	s := &Scanner{rules: []config.CleanupRule{
		{ID: "quality", Enabled: false, Priority: []string{"remux", "bluray"}},
		{ID: "filesize", Enabled: true, Priority: []string{"desc"}},
	}}

	remux := models.CleanupVersion{Path: "/a-remux.mkv", SizeBytes: 100}
	bluray := models.CleanupVersion{Path: "/b-bluray.mkv", SizeBytes: 9000}

	assert.Equal(t, 1, s.compare(remux, bluray), "quality rule disabled, filesize picks the bigger file")
}
