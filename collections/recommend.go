package collections

import (
	"context"
	"math"
	"strconv"
	"strings"

	"mediabridge/clients/ai"
	"mediabridge/clients/metadata"
	"mediabridge/storage/models"
)

// HistoryEntry is one item of a user's top-rated watch history, the
// input to both recommendation strategies, spec.md §4.4 "AI
// recommendation".
type HistoryEntry struct {
	MetadataID int64
	ItemType   models.ItemType
	Title      string
	Year       int
}

// Recommender implements spec.md §4.4's two-strategy AI recommendation
// engine: an LLM suggestion pass (Strategy A) merged with vector
// similarity over overview embeddings (Strategy B).
type Recommender struct {
	AI       *ai.Client
	Provider metadata.Provider
}

// Recommend returns up to limit metadata rows, Strategy A results
// first, deduplicated against each other and against history.
func (r *Recommender) Recommend(ctx context.Context, history []HistoryEntry, candidates []models.MediaMetadata, limit int) ([]models.MediaMetadata, error) {
	historyKeys := historyKeySet(history)

	a, err := r.strategyA(ctx, history, limit)
	if err != nil {
		a = nil // Strategy A is best-effort; Strategy B still runs.
	}

	b := r.strategyB(history, candidates, historyKeys)

	seen := map[string]bool{}
	out := make([]models.MediaMetadata, 0, limit)
	add := func(row models.MediaMetadata) {
		key := entryKey(row.MetadataID, row.ItemType)
		if seen[key] || historyKeys[key] {
			return
		}
		seen[key] = true
		out = append(out, row)
	}
	for _, row := range a {
		if len(out) >= limit {
			break
		}
		add(row)
	}
	for _, row := range b {
		if len(out) >= limit {
			break
		}
		add(row)
	}
	return out, nil
}

// strategyA: LLM prompt then four-attempt search-matrix resolution,
// spec.md §4.4 "resolve each to a metadata ID using a four-attempt
// search matrix (primary type × primary query, secondary type ×
// primary query, primary type × Chinese title, secondary type ×
// Chinese title)".
func (r *Recommender) strategyA(ctx context.Context, history []HistoryEntry, limit int) ([]models.MediaMetadata, error) {
	hist := make([]ai.HistoryItem, 0, len(history))
	for _, h := range history {
		hist = append(hist, ai.HistoryItem{Title: h.Title, Year: h.Year, MetadataID: h.MetadataID})
	}
	suggestions, err := r.AI.Suggest(ctx, hist, limit)
	if err != nil {
		return nil, err
	}

	var out []models.MediaMetadata
	for _, s := range suggestions {
		row, ok := r.resolveSuggestion(ctx, s)
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *Recommender) resolveSuggestion(ctx context.Context, s ai.Suggestion) (models.MediaMetadata, bool) {
	primaryIsMovie := !strings.EqualFold(s.Type, "tv") && !strings.EqualFold(s.Type, "series")

	attempts := []func() (models.MediaMetadata, bool){
		func() (models.MediaMetadata, bool) { return r.searchOne(ctx, s.Title, primaryIsMovie) },
		func() (models.MediaMetadata, bool) { return r.searchOne(ctx, s.Title, !primaryIsMovie) },
	}
	if s.OriginalTitle != "" && s.OriginalTitle != s.Title {
		attempts = append(attempts,
			func() (models.MediaMetadata, bool) { return r.searchOne(ctx, s.OriginalTitle, primaryIsMovie) },
			func() (models.MediaMetadata, bool) { return r.searchOne(ctx, s.OriginalTitle, !primaryIsMovie) },
		)
	}
	for _, attempt := range attempts {
		if row, ok := attempt(); ok {
			return row, true
		}
	}
	return models.MediaMetadata{}, false
}

func (r *Recommender) searchOne(ctx context.Context, query string, isMovie bool) (models.MediaMetadata, bool) {
	if isMovie {
		movies, err := r.Provider.SearchMovies(ctx, query, 0)
		if err != nil || len(movies) == 0 {
			return models.MediaMetadata{}, false
		}
		id, _ := strconv.ParseInt(movies[0].ID, 10, 64)
		return models.MediaMetadata{MetadataID: id, ItemType: models.ItemTypeMovie, Title: movies[0].Title}, true
	}
	shows, err := r.Provider.SearchTVShows(ctx, query)
	if err != nil || len(shows) == 0 {
		return models.MediaMetadata{}, false
	}
	id, _ := strconv.ParseInt(shows[0].ID, 10, 64)
	return models.MediaMetadata{MetadataID: id, ItemType: models.ItemTypeSeries, Title: shows[0].Name}, true
}

// strategyB implements spec.md §4.4's vector-similarity pass: profile
// = mean of history embeddings, score all candidates by cosine
// similarity, keep [0.45, 0.999) excluding history.
func (r *Recommender) strategyB(history []HistoryEntry, candidates []models.MediaMetadata, historyKeys map[string]bool) []models.MediaMetadata {
	byKey := map[string]models.MediaMetadata{}
	for _, c := range candidates {
		byKey[entryKey(c.MetadataID, c.ItemType)] = c
	}

	var profileVectors [][]float32
	for _, h := range history {
		if row, ok := byKey[entryKey(h.MetadataID, h.ItemType)]; ok {
			if v := row.OverviewEmbedding.Data(); len(v) > 0 {
				profileVectors = append(profileVectors, normalize(v))
				continue
			}
		}
		for _, row := range candidates {
			if strings.EqualFold(row.Title, h.Title) {
				if v := row.OverviewEmbedding.Data(); len(v) > 0 {
					profileVectors = append(profileVectors, normalize(v))
				}
				break
			}
		}
	}
	if len(profileVectors) == 0 {
		return nil
	}
	profile := meanVector(profileVectors)

	type scored struct {
		row   models.MediaMetadata
		score float32
	}
	var results []scored
	for _, c := range candidates {
		key := entryKey(c.MetadataID, c.ItemType)
		if historyKeys[key] {
			continue
		}
		v := c.OverviewEmbedding.Data()
		if len(v) == 0 {
			continue
		}
		score := cosineSimilarity(profile, normalize(v))
		if score >= 0.45 && score < 0.999 {
			results = append(results, scored{row: c, score: score})
		}
	}
	// Stable sort, highest similarity first.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].score > results[j-1].score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	out := make([]models.MediaMetadata, 0, len(results))
	for _, r := range results {
		out = append(out, r.row)
	}
	return out
}

func historyKeySet(history []HistoryEntry) map[string]bool {
	set := map[string]bool{}
	for _, h := range history {
		set[entryKey(h.MetadataID, h.ItemType)] = true
	}
	return set
}

func entryKey(metadataID int64, itemType models.ItemType) string {
	return string(itemType) + ":" + strconv.FormatInt(metadataID, 10)
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			if i < len(out) {
				out[i] += float64(x)
			}
		}
	}
	result := make([]float32, len(out))
	for i, x := range out {
		result[i] = float32(x / float64(len(vectors)))
	}
	return normalize(result)
}

func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot)
}
