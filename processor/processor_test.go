package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediabridge/clients/library"
	"mediabridge/identity"
	"mediabridge/storage/models"
)

func TestActorsFromPeopleSkipsCrew(t *testing.T) {
	people := []library.Person{
		{Name: "张译", Role: "饰 刑警", Type: "Actor", SortOrder: 0, ProviderIDs: map[string]string{"Imdb": "nm123", "Tmdb": "456"}},
		{Name: "Some Director", Type: "Director"},
	}

	out := actorsFromPeople(people)

	assert.Len(t, out, 1)
	assert.Equal(t, "张译", out[0].Name)
	assert.Equal(t, "nm123", out[0].IMDbID)
	if assert.NotNil(t, out[0].MetadataID) {
		assert.EqualValues(t, 456, *out[0].MetadataID)
	}
}

func TestMergeCastPrefersCulturalRoleOnMatch(t *testing.T) {
	original := []identity.RawActor{{Name: "Zhang Yi", Role: "actor", Order: 0}}
	candidates := []identity.RawActor{{Name: "Zhang Yi", Role: "刑警队长", Order: 0, CulturalID: "cult-1"}}

	merged := mergeCast(original, candidates)

	if assert.Len(t, merged, 1) {
		assert.Equal(t, "刑警队长", merged[0].role)
		assert.Equal(t, "cult-1", merged[0].raw.CulturalID)
	}
}

func TestMergeCastKeepsOriginalWhenNoCandidateMatches(t *testing.T) {
	original := []identity.RawActor{{Name: "Unmatched Actor", Role: "侦探"}}
	candidates := []identity.RawActor{{Name: "Someone Else", Role: "配角"}}

	merged := mergeCast(original, candidates)

	if assert.Len(t, merged, 1) {
		assert.Equal(t, "侦探", merged[0].role)
		assert.Empty(t, merged[0].raw.CulturalID)
	}
}

func TestItemTypeOf(t *testing.T) {
	assert.Equal(t, models.ItemTypeSeries, itemTypeOf("Series"))
	assert.Equal(t, models.ItemTypeSeason, itemTypeOf("Season"))
	assert.Equal(t, models.ItemTypeEpisode, itemTypeOf("Episode"))
	assert.Equal(t, models.ItemTypeMovie, itemTypeOf("Movie"))
}

func TestParseMetadataID(t *testing.T) {
	id, ok := parseMetadataID(&library.Item{ProviderIDs: map[string]string{"Tmdb": "1234"}})
	assert.True(t, ok)
	assert.EqualValues(t, 1234, id)

	_, ok = parseMetadataID(&library.Item{ProviderIDs: map[string]string{}})
	assert.False(t, ok)
}

func TestPeopleFromActorsCarriesMetadataID(t *testing.T) {
	actors := []models.ActorRef{{MetadataPersonID: 77, Name: "张译", Role: "刑警", Order: 1}}

	people := peopleFromActors(actors)

	if assert.Len(t, people, 1) {
		assert.Equal(t, "77", people[0].ProviderIDs["Tmdb"])
		assert.Equal(t, "Actor", people[0].Type)
	}
}

func TestResultFromCache(t *testing.T) {
	assert.Equal(t, Result{OK: true}, resultFromCache(&models.ProcessedItem{ResultKind: "ok"}))

	r := resultFromCache(&models.ProcessedItem{ResultKind: "needs_review", Reason: "low score"})
	assert.True(t, r.NeedsReview)
	assert.Equal(t, "low score", r.Reason)
}

func TestDirectorsFromPeopleKeepsOnlyDirectors(t *testing.T) {
	people := []library.Person{
		{Name: "张艺谋", Type: "Director", SortOrder: 0, ProviderIDs: map[string]string{"Tmdb": "42"}},
		{Name: "An Actor", Type: "Actor"},
	}

	out := directorsFromPeople(people)

	if assert.Len(t, out, 1) {
		assert.Equal(t, "张艺谋", out[0].Name)
		if assert.NotNil(t, out[0].MetadataID) {
			assert.EqualValues(t, 42, *out[0].MetadataID)
		}
	}
}

func TestUnifiedRating(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"PG-13", "13"},
		{"pg-13", "13"},
		{"R", "17"},
		{"TV-MA", "17"},
		{"G", "0"},
		{"us-pg-13", "13"},
		{"de-16", "16"},
		{"16", "16"},
		{"NR", ""},
		{"Unrated", ""},
		{"", ""},
		{"not-a-rating", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, unifiedRating(c.in), "input %q", c.in)
	}
}

func TestRuntimeMinutes(t *testing.T) {
	assert.Equal(t, 0, runtimeMinutes(0))
	assert.Equal(t, 90, runtimeMinutes(90*60*10_000_000))
}

func TestUpsertAssetDetailReplacesExistingEntry(t *testing.T) {
	existing := []models.AssetDetail{{LibraryItemID: "item-1", SourceLibraryID: "old"}}
	item := &library.Item{AncestorIDs: []string{"folder-1", "lib-1"}}

	out := upsertAssetDetail(existing, "item-1", item)

	if assert.Len(t, out, 1) {
		assert.Equal(t, "lib-1", out[0].SourceLibraryID)
		assert.Equal(t, []string{"folder-1", "lib-1"}, out[0].AncestorIDs)
	}
}

func TestUpsertAssetDetailAppendsNewEntry(t *testing.T) {
	item := &library.Item{AncestorIDs: []string{"lib-2"}}

	out := upsertAssetDetail(nil, "item-2", item)

	if assert.Len(t, out, 1) {
		assert.Equal(t, "item-2", out[0].LibraryItemID)
		assert.Equal(t, "lib-2", out[0].SourceLibraryID)
	}
}
