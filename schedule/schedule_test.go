package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFriendlyRendersZeroAsNotScheduled(t *testing.T) {
	assert.Equal(t, "not scheduled", friendly(time.Time{}))
}

func TestFriendlyRendersPastAsDueNow(t *testing.T) {
	assert.Equal(t, "due now", friendly(time.Now().Add(-time.Minute)))
}

func TestFriendlyRendersMinutesAndHours(t *testing.T) {
	assert.Equal(t, "in 5 minutes", friendly(time.Now().Add(5*time.Minute+30*time.Second)))
	assert.Equal(t, "in 2 hours", friendly(time.Now().Add(2*time.Hour+10*time.Minute)))
}

func TestRegisterAndRunNow(t *testing.T) {
	s := New()
	ran := false
	err := s.Register("test-job", "@every 1h", 0, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, s.RunNow(context.Background(), "test-job"))
	assert.True(t, ran)
}
