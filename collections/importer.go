package collections

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediabridge/apperrors"
	"mediabridge/clients/ai"
	"mediabridge/clients/metadata"
	"mediabridge/identity"
	"mediabridge/logging"
	"mediabridge/storage/models"
)

// ImportedEntry is one resolved source item prior to dedup/limit/LLM
// filtering, spec.md §4.4 "List importer".
type ImportedEntry struct {
	MetadataID    int64
	ItemType      models.ItemType
	SeasonNumber  *int
	Title         string
	OriginalTitle string
	Year          int
	ReleaseDate   time.Time
}

// Importer runs the multi-source list-collection pipeline.
type Importer struct {
	Provider       metadata.Provider
	AI             *ai.Client
	PlatformFetch  func(ctx context.Context, sourceURL string) ([]byte, error)
	CulturalScrape func(ctx context.Context, sourceURL string) ([][2]string, error) // (title, link) pairs
}

// Import runs every source in def, aggregates, dedups, resolves titles
// without IDs, applies the LLM secondary filter, and caps at def.Limit.
func (imp *Importer) Import(ctx context.Context, def models.ListDefinition) ([]ImportedEntry, error) {
	log := logging.FromContext(ctx)

	var all []ImportedEntry
	var unresolved []rawTitle

	for _, src := range def.Sources {
		switch src.Kind {
		case "rss":
			entries, err := imp.importRSS(ctx, src.URL)
			if err != nil {
				log.Warn().Err(err).Str("url", src.URL).Msg("rss source failed, skipping")
				continue
			}
			all = append(all, entries...)
		case "metadata_list":
			entries, err := imp.importMetadataList(ctx, src.URL)
			if err != nil {
				log.Warn().Err(err).Str("listId", src.URL).Msg("metadata list source failed, skipping")
				continue
			}
			all = append(all, entries...)
		case "discover":
			entries, err := imp.importDiscover(ctx, src.Query)
			if err != nil {
				log.Warn().Err(err).Str("query", src.Query).Msg("discover source failed, skipping")
				continue
			}
			all = append(all, entries...)
		case "cultural_list":
			titles, err := imp.importCulturalList(ctx, src.URL)
			if err != nil {
				log.Warn().Err(err).Str("url", src.URL).Msg("cultural list source failed, skipping")
				continue
			}
			unresolved = append(unresolved, titles...)
		case "platform":
			titles, err := imp.importPlatform(ctx, src.URL)
			if err != nil {
				log.Warn().Err(err).Str("url", src.URL).Msg("platform source failed, skipping")
				continue
			}
			unresolved = append(unresolved, titles...)
		}
	}

	for _, rt := range unresolved {
		entry, ok, err := imp.resolveTitle(ctx, rt)
		if err != nil {
			log.Warn().Err(err).Str("title", rt.Title).Msg("title resolution failed, skipping")
			continue
		}
		if ok {
			all = append(all, entry)
		}
	}

	deduped := dedupEntries(all)

	if def.LLMFilterPrompt != "" && imp.AI != nil {
		filtered, err := imp.llmFilter(ctx, deduped, def.LLMFilterPrompt)
		if err != nil {
			log.Warn().Err(err).Msg("LLM secondary filter failed, keeping pre-filter list")
		} else {
			deduped = filtered
		}
	}

	if def.Limit > 0 && len(deduped) > def.Limit {
		deduped = deduped[:def.Limit]
	}
	return deduped, nil
}

// rawTitle is an item surfaced by a source with no resolvable ID yet.
type rawTitle struct {
	Title string
	Year  int
	Kind  models.ItemType
}

// --- RSS ---

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	GUID string `xml:"guid"`
	Link string `xml:"link"`
}

// importRSS parses an RSS-style feed whose guid/link carries an IMDb
// id, spec.md §4.4 "RSS-style XML with guid/link carrying IMDb IDs".
func (imp *Importer) importRSS(ctx context.Context, url string) ([]ImportedEntry, error) {
	if imp.PlatformFetch == nil {
		return nil, apperrors.New(apperrors.KindInternal, "collections: no fetcher configured for rss sources")
	}
	body, err := imp.PlatformFetch(ctx, url)
	if err != nil {
		return nil, err
	}
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "collections: parsing rss feed", err)
	}
	var out []ImportedEntry
	for _, item := range feed.Channel.Items {
		imdbID := extractIMDbID(item.GUID)
		if imdbID == "" {
			imdbID = extractIMDbID(item.Link)
		}
		if imdbID == "" {
			continue
		}
		movie, err := imp.Provider.SearchMovies(ctx, imdbID, 0)
		if err != nil || len(movie) == 0 {
			continue
		}
		id, _ := strconv.ParseInt(movie[0].ID, 10, 64)
		out = append(out, ImportedEntry{MetadataID: id, ItemType: models.ItemTypeMovie, Title: movie[0].Title})
	}
	return out, nil
}

func extractIMDbID(s string) string {
	idx := strings.Index(s, "tt")
	if idx < 0 {
		return ""
	}
	end := idx + 2
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == idx+2 {
		return ""
	}
	return s[idx:end]
}

// --- Metadata-provider list (paged) ---

func (imp *Importer) importMetadataList(ctx context.Context, listID string) ([]ImportedEntry, error) {
	var out []ImportedEntry
	page := 1
	for {
		result, err := imp.Provider.GetList(ctx, listID, page)
		if err != nil {
			return out, err
		}
		for _, m := range result.Movies {
			id, _ := strconv.ParseInt(m.ID, 10, 64)
			out = append(out, ImportedEntry{MetadataID: id, ItemType: models.ItemTypeMovie, Title: m.Title})
		}
		for _, t := range result.TVShows {
			id, _ := strconv.ParseInt(t.ID, 10, 64)
			out = append(out, ImportedEntry{MetadataID: id, ItemType: models.ItemTypeSeries, Title: t.Name})
		}
		if page >= result.TotalPages {
			break
		}
		page++
	}
	return out, nil
}

// --- Discover query with {today±N} date macros ---

// expandDateMacros resolves `{today}`, `{today+N}`, `{today-N}` tokens
// in a discover query value to YYYY-MM-DD, spec.md §4.4 "a discover-
// style query (paged, with {today±N} date macros)".
func expandDateMacros(value string, now time.Time) string {
	for {
		start := strings.Index(value, "{today")
		if start < 0 {
			return value
		}
		end := strings.Index(value[start:], "}")
		if end < 0 {
			return value
		}
		end += start
		token := value[start+1 : end] // "today", "today+7", "today-30"
		offset := 0
		if len(token) > 5 {
			n, err := strconv.Atoi(token[5:])
			if err == nil {
				offset = n
			}
		}
		resolved := now.AddDate(0, 0, offset).Format("2006-01-02")
		value = value[:start] + resolved + value[end+1:]
	}
}

func (imp *Importer) importDiscover(ctx context.Context, query string) ([]ImportedEntry, error) {
	params := parseQueryParams(expandDateMacros(query, time.Now()))
	isTV := params["media_type"] == "tv"
	delete(params, "media_type")

	var out []ImportedEntry
	page := 1
	for {
		var result metadata.ListPage
		var err error
		if isTV {
			result, err = imp.Provider.DiscoverTVShows(ctx, params, page)
		} else {
			result, err = imp.Provider.DiscoverMovies(ctx, params, page)
		}
		if err != nil {
			return out, err
		}
		for _, m := range result.Movies {
			id, _ := strconv.ParseInt(m.ID, 10, 64)
			out = append(out, ImportedEntry{MetadataID: id, ItemType: models.ItemTypeMovie, Title: m.Title})
		}
		for _, t := range result.TVShows {
			id, _ := strconv.ParseInt(t.ID, 10, 64)
			out = append(out, ImportedEntry{MetadataID: id, ItemType: models.ItemTypeSeries, Title: t.Name})
		}
		if page >= result.TotalPages || page >= 20 {
			break
		}
		page++
	}
	return out, nil
}

func parseQueryParams(query string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(query, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}

// --- Remote cultural list (scraped) ---

func (imp *Importer) importCulturalList(ctx context.Context, url string) ([]rawTitle, error) {
	if imp.CulturalScrape == nil {
		return nil, apperrors.New(apperrors.KindInternal, "collections: no cultural scraper configured")
	}
	pairs, err := imp.CulturalScrape(ctx, url)
	if err != nil {
		return nil, err
	}
	out := make([]rawTitle, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, rawTitle{Title: p[0], Kind: models.ItemTypeMovie})
	}
	return out, nil
}

// --- Platform-specific source (maoyan://...) ---

// importPlatform spawns an out-of-process fetcher for a platform URI
// scheme, spec.md §4.4 "a platform-specific source (maoyan://…) handled
// by spawning an out-of-process fetcher with a 10-minute timeout and a
// sanitized argv." The argv carries exactly the parsed URI as a single
// argument — no shell, no string concatenation into a command line.
func (imp *Importer) importPlatform(ctx context.Context, uri string) ([]rawTitle, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, apperrors.New(apperrors.KindValidation, "collections: malformed platform source uri: "+uri)
	}
	fetcherPath := "./fetchers/" + sanitizeArg(scheme)

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(runCtx, fetcherPath, sanitizeArg(rest))
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, fmt.Sprintf("collections: running platform fetcher %q", scheme), err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	out := make([]rawTitle, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, rawTitle{Title: line, Kind: models.ItemTypeMovie})
		}
	}
	return out, nil
}

// sanitizeArg strips shell metacharacters from a value that will be
// passed as a single argv element (never interpolated into a shell
// string, so this is defense in depth against a fetcher that itself
// mishandles its argument).
func sanitizeArg(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ';', '|', '&', '$', '`', '\n', '\r', '<', '>':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// --- Title -> metadata-ID matching ---

var chineseSeasonNumerals = map[rune]int{
	'〇': 0, '零': 0, '一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9, '十': 10,
}

// parseSeasonMarker extracts a trailing Chinese-numeral season marker
// ("第二季", "二季", ...) from a series title, spec.md §4.4 "parse the
// title for a trailing season marker (Chinese numerals 一..二十, with
// or without 第 prefix)". Returns the base title and season number, or
// season 0 (no marker) when none is found.
func parseSeasonMarker(title string) (base string, season int) {
	t := strings.TrimSpace(title)
	if !strings.HasSuffix(t, "季") {
		return t, 0
	}
	runes := []rune(strings.TrimSuffix(t, "季"))
	i := len(runes)
	for i > 0 && i > len(runes)-2 {
		if _, ok := chineseSeasonNumerals[runes[i-1]]; !ok {
			break
		}
		i--
	}
	n := parseChineseNumeral(string(runes[i:]))
	if n == 0 {
		return t, 0
	}
	if i > 0 && runes[i-1] == '第' {
		i--
	}
	return strings.TrimSpace(string(runes[:i])), n
}

// parseChineseNumeral parses a one-or-two-rune numeral in [一..二十].
func parseChineseNumeral(s string) int {
	runes := []rune(s)
	if len(runes) == 1 {
		return chineseSeasonNumerals[runes[0]]
	}
	if len(runes) == 2 && runes[0] == '十' {
		return 10 + chineseSeasonNumerals[runes[1]]
	}
	if len(runes) == 2 && runes[1] == '十' {
		return chineseSeasonNumerals[runes[0]] * 10
	}
	return 0
}

// resolveTitle implements spec.md §4.4's title matching matrix for
// movies and series.
func (imp *Importer) resolveTitle(ctx context.Context, rt rawTitle) (ImportedEntry, bool, error) {
	if rt.Kind == models.ItemTypeSeries {
		return imp.resolveSeriesTitle(ctx, rt)
	}
	return imp.resolveMovieTitle(ctx, rt)
}

func (imp *Importer) resolveMovieTitle(ctx context.Context, rt rawTitle) (ImportedEntry, bool, error) {
	candidates, err := imp.Provider.SearchMovies(ctx, rt.Title, rt.Year)
	if err != nil {
		return ImportedEntry{}, false, err
	}
	if len(candidates) == 0 {
		return ImportedEntry{}, false, nil
	}
	norm := identity.NormalizeName(rt.Title)
	for _, c := range candidates {
		if identity.NormalizeName(c.Title) == norm || identity.NormalizeName(c.OriginalTitle) == norm ||
			strings.Contains(identity.NormalizeName(c.Title), norm) {
			id, _ := strconv.ParseInt(c.ID, 10, 64)
			return ImportedEntry{MetadataID: id, ItemType: models.ItemTypeMovie, Title: c.Title}, true, nil
		}
	}
	// best-effort fallback: top result.
	id, _ := strconv.ParseInt(candidates[0].ID, 10, 64)
	return ImportedEntry{MetadataID: id, ItemType: models.ItemTypeMovie, Title: candidates[0].Title}, true, nil
}

func (imp *Importer) resolveSeriesTitle(ctx context.Context, rt rawTitle) (ImportedEntry, bool, error) {
	base, season := parseSeasonMarker(rt.Title)

	entry, ok, err := imp.trySeriesCandidates(ctx, base, rt.Year, season)
	if err != nil || ok {
		return entry, ok, err
	}
	entry, ok, err = imp.trySeriesCandidates(ctx, base, 0, season)
	if err != nil || ok {
		return entry, ok, err
	}
	if base != rt.Title {
		return imp.trySeriesCandidates(ctx, rt.Title, 0, season)
	}
	return ImportedEntry{}, false, nil
}

func (imp *Importer) trySeriesCandidates(ctx context.Context, query string, year int, season int) (ImportedEntry, bool, error) {
	candidates, err := imp.Provider.SearchTVShows(ctx, query)
	if err != nil {
		return ImportedEntry{}, false, err
	}
	if year > 0 {
		var filtered []metadata.TVShow
		for _, c := range candidates {
			if strings.HasPrefix(c.FirstAirDate, strconv.Itoa(year)) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	limit := len(candidates)
	if limit > 5 {
		limit = 5
	}
	for _, c := range candidates[:limit] {
		if season == 0 {
			id, _ := strconv.ParseInt(c.ID, 10, 64)
			return ImportedEntry{MetadataID: id, ItemType: models.ItemTypeSeries, Title: c.Name}, true, nil
		}
		for _, s := range c.Seasons {
			if s.SeasonNumber == season {
				id, _ := strconv.ParseInt(c.ID, 10, 64)
				sn := season
				return ImportedEntry{MetadataID: id, ItemType: models.ItemTypeSeason, SeasonNumber: &sn, Title: c.Name}, true, nil
			}
		}
	}
	return ImportedEntry{}, false, nil
}

// --- Dedup ---

// dedupEntries implements spec.md §4.4 "deduplicate by (type,
// metadata_id, season?) keeping first occurrence; items without
// resolved IDs deduplicate by title."
func dedupEntries(all []ImportedEntry) []ImportedEntry {
	seen := map[string]bool{}
	out := make([]ImportedEntry, 0, len(all))
	for _, e := range all {
		var key string
		if e.MetadataID != 0 {
			season := -1
			if e.SeasonNumber != nil {
				season = *e.SeasonNumber
			}
			key = fmt.Sprintf("%s:%d:%d", e.ItemType, e.MetadataID, season)
		} else {
			key = "title:" + strings.ToLower(e.Title)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// llmFilter implements spec.md §4.4's LLM secondary filter: pass
// {id, title, type, year, release_date} tuples and the collection's
// instruction, keep only the returned IDs.
func (imp *Importer) llmFilter(ctx context.Context, entries []ImportedEntry, instruction string) ([]ImportedEntry, error) {
	candidates := make([]ai.RecommendationCandidate, 0, len(entries))
	byID := map[string]ImportedEntry{}
	for _, e := range entries {
		id := fmt.Sprintf("%d:%s", e.MetadataID, e.ItemType)
		byID[id] = e
		candidates = append(candidates, ai.RecommendationCandidate{
			ID: id, Title: e.Title, Type: string(e.ItemType), Year: e.Year,
			ReleaseDate: e.ReleaseDate.Format("2006-01-02"),
		})
	}
	ids, err := imp.AI.Recommend(ctx, instruction, candidates)
	if err != nil {
		return nil, err
	}
	out := make([]ImportedEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
