package watchlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mediabridge/clients/metadata"
)

// fakeProvider implements metadata.Provider with only GetTVSeason
// wired; every other method is unused by the functions under test.
type fakeProvider struct {
	metadata.Provider
	seasons map[int]*metadata.TVSeason
}

func (f *fakeProvider) GetTVSeason(ctx context.Context, tvShowID string, seasonNumber int) (*metadata.TVSeason, error) {
	return f.seasons[seasonNumber], nil
}

func TestSeasonFullyAiredTrueWhenAllEpisodesPast(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	a := &Adder{meta: &fakeProvider{seasons: map[int]*metadata.TVSeason{
		1: {SeasonNumber: 1, Episodes: []metadata.TVEpisode{
			{SeasonNumber: 1, EpisodeNumber: 1, AirDate: "2026-01-01"},
			{SeasonNumber: 1, EpisodeNumber: 2, AirDate: "2026-01-08"},
		}},
	}}}

	assert.True(t, a.seasonFullyAired(context.Background(), "1", 1, now))
}

func TestSeasonFullyAiredFalseWithFutureEpisode(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	a := &Adder{meta: &fakeProvider{seasons: map[int]*metadata.TVSeason{
		1: {SeasonNumber: 1, Episodes: []metadata.TVEpisode{
			{SeasonNumber: 1, EpisodeNumber: 1, AirDate: "2026-01-01"},
			{SeasonNumber: 1, EpisodeNumber: 2, AirDate: "2026-12-01"},
		}},
	}}}

	assert.False(t, a.seasonFullyAired(context.Background(), "1", 1, now))
}

func TestSeasonFullyAiredFalseWithNoEpisodeData(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	a := &Adder{meta: &fakeProvider{seasons: map[int]*metadata.TVSeason{}}}

	assert.False(t, a.seasonFullyAired(context.Background(), "1", 1, now))
}

func TestNextEpisodeToAirFindsFirstFutureEpisode(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	a := &Adder{meta: &fakeProvider{seasons: map[int]*metadata.TVSeason{
		2: {SeasonNumber: 2, Episodes: []metadata.TVEpisode{
			{SeasonNumber: 2, EpisodeNumber: 1, Name: "Aired", AirDate: "2026-01-01"},
			{SeasonNumber: 2, EpisodeNumber: 2, Name: "Upcoming", AirDate: "2026-08-15"},
		}},
	}}}

	next := a.nextEpisodeToAir(context.Background(), "1", []int{2}, 2, now)

	if assert.NotNil(t, next) {
		assert.Equal(t, "Upcoming", next.Title)
		assert.Equal(t, 2, next.EpisodeNumber)
	}
}

func TestNextEpisodeToAirSkipsSeasonsBeforeFromSeason(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	a := &Adder{meta: &fakeProvider{seasons: map[int]*metadata.TVSeason{
		1: {SeasonNumber: 1, Episodes: []metadata.TVEpisode{
			{SeasonNumber: 1, EpisodeNumber: 1, Name: "ShouldBeSkipped", AirDate: "2026-12-01"},
		}},
	}}}

	next := a.nextEpisodeToAir(context.Background(), "1", []int{1}, 2, now)

	assert.Nil(t, next)
}
