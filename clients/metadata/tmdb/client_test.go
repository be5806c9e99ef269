package tmdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mediabridge/clients/types"
)

func TestNew(t *testing.T) {
	_, err := New(types.ClientConfig{APIKey: "test-api-key"})
	assert.NoError(t, err)
}

func TestExpandDateMacros(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	out := ExpandDateMacros(map[string]string{
		"release_date.gte": "{today}",
		"release_date.lte": "{today+7}",
		"unrelated":        "value",
	}, now)

	assert.Equal(t, "2026-07-30", out["release_date.gte"])
	assert.Equal(t, "2026-08-06", out["release_date.lte"])
	assert.Equal(t, "value", out["unrelated"])
}

func TestExpandDateMacrosNegativeOffset(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	out := ExpandDateMacros(map[string]string{"first_air_date.gte": "{today-10}"}, now)
	assert.Equal(t, "2026-07-20", out["first_air_date.gte"])
}
