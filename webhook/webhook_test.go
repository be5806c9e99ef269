package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentOfFoldsEpisodeIntoSeries(t *testing.T) {
	assert.Equal(t, "series-1", parentOf(Event{ItemType: "Episode", ItemID: "ep-1", SeriesID: "series-1"}))
	assert.Equal(t, "movie-1", parentOf(Event{ItemType: "Movie", ItemID: "movie-1"}))
}

func TestNextUpdateDescriptionCarriesThroughWhenNoPendingBatch(t *testing.T) {
	ev := Event{Type: EventImageUpdate, Description: "Image updated for Example"}
	assert.Equal(t, "Image updated for Example", nextUpdateDescription(false, ev))
}

func TestNextUpdateDescriptionCoalescesSecondImageUpdate(t *testing.T) {
	ev := Event{Type: EventImageUpdate, Description: "Image updated again"}
	assert.Equal(t, imageUpdateCoalescedDescription, nextUpdateDescription(true, ev))
}

func TestNextUpdateDescriptionMetadataUpdateNeverCoalesces(t *testing.T) {
	ev := Event{Type: EventMetadataUpdate, Description: "Metadata refreshed"}
	assert.Equal(t, "Metadata refreshed", nextUpdateDescription(true, ev))
}

func TestUpdateTaskLabel(t *testing.T) {
	assert.Equal(t, "metadata-sync:series-1", updateTaskLabel("series-1", ""))
	assert.Equal(t, "metadata-sync:series-1 (Multiple image updates detected)", updateTaskLabel("series-1", imageUpdateCoalescedDescription))
}
