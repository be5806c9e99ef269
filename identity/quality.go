package identity

import "math"

// CastActor is the minimal shape the quality scorer and role pipeline
// need from a processed cast entry.
type CastActor struct {
	Name string
	Role string
}

// ScoreCast implements spec.md §4.1 "Cast quality score (0.0-10.0)".
// expectedCount is a pointer so "not provided" can be distinguished
// from "0"; isAnimation unconditionally short-circuits to 7.0 on an
// empty cast and skips every size penalty otherwise.
func ScoreCast(cast []CastActor, originalCount int, expectedCount *int, isAnimation bool) float64 {
	if len(cast) == 0 {
		if isAnimation {
			return 7.0
		}
		return 0.0
	}

	var total float64
	for _, a := range cast {
		var score float64
		if a.Name != "" {
			if ContainsCJK(a.Name) {
				score += 5.0
			} else {
				score += 1.0
			}
		}
		if a.Role != "" {
			switch {
			case ContainsCJK(a.Role) && !IsPlaceholder(a.Role):
				score += 5.0
			case ContainsCJK(a.Role) && IsPlaceholder(a.Role):
				score += 2.5
			default:
				score += 0.5
			}
		}
		if score > 10.0 {
			score = 10.0
		}
		total += score
	}

	avg := total / float64(len(cast))
	if isAnimation {
		return round1(avg)
	}

	count := len(cast)
	switch {
	case count < 10:
		avg *= float64(count) / 10.0
	case expectedCount != nil && count < int(float64(*expectedCount)*0.8):
		avg *= float64(count) / float64(*expectedCount)
	case expectedCount == nil && originalCount > 0 && count < int(float64(originalCount)*0.8):
		avg *= float64(count) / float64(originalCount)
	}

	return round1(avg)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
