// Package collections implements the custom-collection engine, spec.md
// §4.4: the typed rule evaluator over cached MediaMetadata, the list
// importer, the AI recommender, and the cover generator. Grounded on
// the teacher's services/jobs/recommendation shape (a filter/query
// layer sitting in front of a cached media table) adapted from a
// single query DSL onto the field-grouped operator set spec.md §4.4
// enumerates.
package collections

import (
	"strconv"
	"strings"
	"time"

	"mediabridge/storage/models"
)

// Rule mirrors models.Rule; re-declared here as the evaluator's input
// shape so callers never need to import storage/models just to build
// a rule set in tests.
type Rule = models.Rule

// Logic combines a collection's rules, spec.md §4.4 "Combine per-rule
// booleans by AND or OR per the collection's logic".
type Logic string

const (
	LogicAND Logic = "AND"
	LogicOR  Logic = "OR"
)

// AiringSet reports whether a series' metadata ID is currently airing,
// spec.md §4.4 "Boolean is_in_progress: true when the series' metadata
// ID is in the airing set" — backed by the watchlist's IsAiring column.
type AiringSet interface {
	IsAiring(metadataID int64) bool
}

// Evaluator evaluates a FilterDefinition against MediaMetadata rows.
type Evaluator struct {
	Airing AiringSet
	Now    func() time.Time
}

func NewEvaluator(airing AiringSet, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{Airing: airing, Now: now}
}

// Matches reports whether row satisfies def, combining per-rule results
// per def.Logic. An empty rule set matches everything (AND over zero
// clauses) and nothing (OR over zero clauses is vacuously false, so an
// empty OR set is treated as AND-style "match all" since a collection
// with no rules configured is more useful matching everything than
// nothing).
func (e *Evaluator) Matches(row models.MediaMetadata, def models.FilterDefinition) bool {
	if len(def.Rules) == 0 {
		return true
	}
	if strings.EqualFold(string(def.Logic), string(LogicOR)) {
		for _, r := range def.Rules {
			if e.matchRule(row, r) {
				return true
			}
		}
		return false
	}
	for _, r := range def.Rules {
		if !e.matchRule(row, r) {
			return false
		}
	}
	return true
}

func (e *Evaluator) matchRule(row models.MediaMetadata, r Rule) bool {
	switch r.Field {
	case "actors":
		return e.matchActorRefs(row.Actors.Data(), r, 3)
	case "directors":
		return e.matchActorRefs(row.Directors.Data(), r, 1)
	case "genres":
		return matchStringList(row.Genres.Data(), r)
	case "countries":
		return matchStringList(row.Countries.Data(), r)
	case "studios":
		return matchStringList(row.Studios.Data(), r)
	case "tags":
		return matchStringList(row.Tags.Data(), r)
	case "keywords":
		return matchStringList(row.Keywords.Data(), r)
	case "release_date":
		return e.matchDate(row.ReleaseDate, r)
	case "date_added":
		return e.matchDate(&row.DateAdded, r)
	case "unified_rating":
		return matchEnum(row.UnifiedRating, r)
	case "is_in_progress":
		want, _ := r.Value.(bool)
		airing := e.Airing != nil && e.Airing.IsAiring(row.MetadataID)
		return airing == want
	case "runtime":
		return matchNumeric(float64(row.RuntimeMinutes), r)
	case "release_year":
		return matchNumeric(float64(row.ReleaseYear), r)
	case "rating":
		return matchNumeric(row.Rating, r)
	case "title":
		return matchTitle(row.Title, r)
	default:
		return false
	}
}

// matchActorRefs implements the list-of-objects operators for actors
// and directors, spec.md §4.4: "is_primary = first 3 for actors, first
// 1 for directors... Comparison by metadata-provider ID with name
// fallback."
func (e *Evaluator) matchActorRefs(refs []models.ActorRef, r Rule, primaryCount int) bool {
	values := toStringSlice(r.Value)
	switch r.Operator {
	case "is_primary":
		n := primaryCount
		if n > len(refs) {
			n = len(refs)
		}
		return refAmong(refs[:n], values)
	case "is_one_of":
		return refAmong(refs, values)
	case "is_none_of":
		return !refAmong(refs, values)
	case "contains":
		return refAmong(refs, values)
	default:
		return false
	}
}

func refAmong(refs []models.ActorRef, values []string) bool {
	for _, ref := range refs {
		for _, v := range values {
			if v == "" {
				continue
			}
			if asID(ref.MetadataPersonID) == v || strings.EqualFold(ref.Name, v) {
				return true
			}
		}
	}
	return false
}

func matchStringList(have []string, r Rule) bool {
	values := toStringSlice(r.Value)
	switch r.Operator {
	case "is_one_of", "contains":
		return stringAmong(have, values)
	case "is_none_of":
		return !stringAmong(have, values)
	default:
		return false
	}
}

func stringAmong(have []string, values []string) bool {
	for _, h := range have {
		for _, v := range values {
			if strings.EqualFold(h, v) {
				return true
			}
		}
	}
	return false
}

// matchDate implements the "in_last_days"/"not_in_last_days" operators,
// spec.md §4.4: "integer days, inclusive upper bound = today".
func (e *Evaluator) matchDate(value *time.Time, r Rule) bool {
	if value == nil || value.IsZero() {
		return false
	}
	days := toInt(r.Value)
	cutoff := e.Now().AddDate(0, 0, -days)
	within := !value.Before(cutoff) && !value.After(e.Now())
	switch r.Operator {
	case "in_last_days":
		return within
	case "not_in_last_days":
		return !within
	default:
		return false
	}
}

func matchEnum(value string, r Rule) bool {
	switch r.Operator {
	case "eq":
		s, _ := r.Value.(string)
		return strings.EqualFold(value, s)
	case "is_one_of":
		return stringAmong([]string{value}, toStringSlice(r.Value))
	case "is_none_of":
		return !stringAmong([]string{value}, toStringSlice(r.Value))
	default:
		return false
	}
}

func matchNumeric(value float64, r Rule) bool {
	want := toFloat(r.Value)
	switch r.Operator {
	case "gte":
		return value >= want
	case "lte":
		return value <= want
	case "eq":
		return value == want
	default:
		return false
	}
}

func matchTitle(title string, r Rule) bool {
	s, _ := r.Value.(string)
	lt, ls := strings.ToLower(title), strings.ToLower(s)
	switch r.Operator {
	case "contains":
		return strings.Contains(lt, ls)
	case "does_not_contain":
		return !strings.Contains(lt, ls)
	case "starts_with":
		return strings.HasPrefix(lt, ls)
	case "ends_with":
		return strings.HasSuffix(lt, ls)
	default:
		return false
	}
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, asID(int64(toFloat(e))))
			}
		}
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

func toInt(v any) int {
	return int(toFloat(v))
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func asID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
