package actorsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediabridge/clients/metadata"
	"mediabridge/storage/models"
)

func TestCreditToWorkResetsTVOrderForLaterEnrichment(t *testing.T) {
	c := metadata.Credit{MediaID: "1", Title: "A Show", Order: 2}
	w := creditToWork(c, models.ItemTypeSeries)
	assert.Equal(t, 999, w.order)
}

func TestCreditToWorkKeepsMovieOrder(t *testing.T) {
	c := metadata.Credit{MediaID: "1", Title: "A Movie", Order: 2}
	w := creditToWork(c, models.ItemTypeMovie)
	assert.Equal(t, 2, w.order)
}

func TestDedupeByTitleKeepsMostPopular(t *testing.T) {
	works := []work{
		{metadataID: "1", title: "Returning Hero", popularity: 10},
		{metadataID: "2", title: "returning   hero", popularity: 50},
		{metadataID: "3", title: "Other Show", popularity: 5},
	}
	out := dedupeByTitle(works)

	assert.Len(t, out, 2)
	byID := map[string]work{}
	for _, w := range out {
		byID[w.metadataID] = w
	}
	assert.Contains(t, byID, "2")
	assert.Contains(t, byID, "3")
}

func TestMatchesFilterRejectsBeforeStartYear(t *testing.T) {
	w := work{releaseDate: "2010-01-01"}
	f := models.ActorSubscriptionFilter{StartYear: 2015, MediaTypes: []string{"Movie"}}
	ok, reason := matchesFilter(w, f)
	assert.False(t, ok)
	assert.Contains(t, reason, "2015")
}

func TestMatchesFilterRejectsExcludedMediaType(t *testing.T) {
	w := work{releaseDate: "2020-01-01", itemType: models.ItemTypeSeries}
	f := models.ActorSubscriptionFilter{MediaTypes: []string{"Movie"}}
	ok, _ := matchesFilter(w, f)
	assert.False(t, ok)
}

func TestMatchesFilterRatingExemptOnLowVoteCount(t *testing.T) {
	w := work{releaseDate: "2020-01-01", voteAverage: 3.0, voteCount: 2}
	f := models.ActorSubscriptionFilter{MediaTypes: []string{"Movie"}, MinRating: 7.0, MinVoteCount: 10}
	ok, _ := matchesFilter(w, f)
	assert.True(t, ok, "a work under the vote-count floor is exempt from the rating floor")
}

func TestMatchesFilterRejectsLowRatingWithEnoughVotes(t *testing.T) {
	w := work{releaseDate: "2020-01-01", voteAverage: 3.0, voteCount: 500}
	f := models.ActorSubscriptionFilter{MediaTypes: []string{"Movie"}, MinRating: 7.0, MinVoteCount: 10}
	ok, _ := matchesFilter(w, f)
	assert.False(t, ok)
}

func TestMatchesFilterChineseTitleOnly(t *testing.T) {
	f := models.ActorSubscriptionFilter{MediaTypes: []string{"Movie"}, ChineseTitleOnly: true}

	rejected := work{releaseDate: "2020-01-01", title: "No Chinese Here"}
	ok, _ := matchesFilter(rejected, f)
	assert.False(t, ok)

	accepted := work{releaseDate: "2020-01-01", title: "功夫"}
	ok, _ = matchesFilter(accepted, f)
	assert.True(t, ok)
}

func TestMatchesFilterMainRoleOnly(t *testing.T) {
	f := models.ActorSubscriptionFilter{MediaTypes: []string{"Movie"}, MainRoleOnly: true}

	lead := work{releaseDate: "2020-01-01", order: 1}
	ok, _ := matchesFilter(lead, f)
	assert.True(t, ok)

	supporting := work{releaseDate: "2020-01-01", order: 5}
	ok, _ = matchesFilter(supporting, f)
	assert.False(t, ok)
}

func TestMatchesFilterGenreIncludeExclude(t *testing.T) {
	f := models.ActorSubscriptionFilter{
		MediaTypes:    []string{"Movie"},
		GenresInclude: []int{28},
		GenresExclude: []int{99},
	}

	ok, _ := matchesFilter(work{releaseDate: "2020-01-01", genreIDs: []int{28, 12}}, f)
	assert.True(t, ok)

	ok, _ = matchesFilter(work{releaseDate: "2020-01-01", genreIDs: []int{12}}, f)
	assert.False(t, ok, "missing the required genre")

	ok, _ = matchesFilter(work{releaseDate: "2020-01-01", genreIDs: []int{28, 99}}, f)
	assert.False(t, ok, "carries an excluded genre")
}
