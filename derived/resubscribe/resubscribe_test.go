package resubscribe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediabridge/config"
)

func TestEvaluateRatingRuleIgnoresZeroWhenConfigured(t *testing.T) {
	s := &Scanner{cfg: config.ResubscribeConfig{RatingEnabled: true, RatingMin: 6, RatingIgnoreZero: true, RuleType: "resubscribe"}}
	skip, needsAction, _ := s.evaluateRatingRule(0)
	assert.False(t, skip)
	assert.False(t, needsAction)
}

func TestEvaluateRatingRuleResubscribeModeSkipsLowRating(t *testing.T) {
	s := &Scanner{cfg: config.ResubscribeConfig{RatingEnabled: true, RatingMin: 6, RuleType: "resubscribe"}}
	skip, needsAction, _ := s.evaluateRatingRule(4.5)
	assert.True(t, skip)
	assert.False(t, needsAction)
}

func TestEvaluateRatingRuleDeleteModeFlagsLowRating(t *testing.T) {
	s := &Scanner{cfg: config.ResubscribeConfig{RatingEnabled: true, RatingMin: 6, RuleType: "delete"}}
	skip, needsAction, reason := s.evaluateRatingRule(4.5)
	assert.False(t, skip)
	assert.True(t, needsAction)
	assert.NotEmpty(t, reason)
}

func TestEvaluateRatingRuleDisabledNeverActs(t *testing.T) {
	s := &Scanner{cfg: config.ResubscribeConfig{RatingEnabled: false, RatingMin: 9, RuleType: "delete"}}
	skip, needsAction, _ := s.evaluateRatingRule(0.1)
	assert.False(t, skip)
	assert.False(t, needsAction)
}

func TestEvaluateRatingRuleAboveFloorNeverActs(t *testing.T) {
	s := &Scanner{cfg: config.ResubscribeConfig{RatingEnabled: true, RatingMin: 6, RuleType: "delete"}}
	skip, needsAction, _ := s.evaluateRatingRule(7.2)
	assert.False(t, skip)
	assert.False(t, needsAction)
}

func TestResolutionRankOrdersBestFirst(t *testing.T) {
	assert.Greater(t, resolutionRank("2160p"), resolutionRank("1080p"))
	assert.Greater(t, resolutionRank("1080p"), resolutionRank("720p"))
	assert.Less(t, resolutionRank(""), resolutionRank("720p"))
}

func TestEffectRankOrdersBestFirst(t *testing.T) {
	assert.Greater(t, effectRank("dovi_p8"), effectRank("hdr"))
	assert.Greater(t, effectRank("hdr"), effectRank("sdr"))
}
