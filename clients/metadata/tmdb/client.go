// Package tmdb implements the Metadata Provider client, adapted from
// the teacher's clients/metadata/tmdb/client.go onto this system's own
// metadata.Provider interface and DTOs. Everything the SDK exposes
// goes through it directly; the handful of endpoints it does not
// cover (genre lists, list paging, production countries, keywords) go
// through clients/httpx against the raw v3 API. Discover date macros
// are expanded locally before the SDK's discover call.
package tmdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tmdbClient "github.com/cyruzin/golang-tmdb"

	"mediabridge/clients/httpx"
	"mediabridge/clients/metadata"
	"mediabridge/clients/types"
)

type Client struct {
	sdk    *tmdbClient.Client
	raw    *httpx.Client
	apiKey string
	lang   string
}

func New(cfg types.ClientConfig) (*Client, error) {
	sdk, err := tmdbClient.Init(cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("tmdb: initializing sdk client: %w", err)
	}
	rawCfg := cfg
	if rawCfg.BaseURL == "" {
		rawCfg.BaseURL = "https://api.themoviedb.org/3"
	}
	return &Client{sdk: sdk, raw: httpx.New(rawCfg), apiKey: cfg.APIKey, lang: "en-US"}, nil
}

var _ metadata.Provider = (*Client)(nil)

func (c *Client) GetMovie(ctx context.Context, id string) (*metadata.Movie, error) {
	movieID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("tmdb: invalid movie id %q: %w", id, err)
	}
	movie, err := c.sdk.GetMovieDetails(movieID, map[string]string{
		"append_to_response": "external_ids",
		"language":           c.lang,
	})
	if err != nil {
		return nil, fmt.Errorf("tmdb: getting movie details: %w", err)
	}

	result := &metadata.Movie{
		ID:            fmt.Sprintf("%d", movie.ID),
		Title:         movie.Title,
		OriginalTitle: movie.OriginalTitle,
		Overview:      movie.Overview,
		ReleaseDate:   movie.ReleaseDate,
		Runtime:       movie.Runtime,
		PosterPath:    movie.PosterPath,
		BackdropPath:  movie.BackdropPath,
		VoteAverage:   float64(movie.VoteAverage),
		VoteCount:     int(movie.VoteCount),
		Popularity:    float64(movie.Popularity),
		Adult:         movie.Adult,
	}
	for _, g := range movie.Genres {
		result.Genres = append(result.Genres, metadata.Genre{ID: fmt.Sprintf("%d", g.ID), Name: g.Name})
	}
	if movie.BelongsToCollection.ID != 0 {
		result.CollectionID = fmt.Sprintf("%d", movie.BelongsToCollection.ID)
		result.CollectionName = movie.BelongsToCollection.Name
	}
	if countries, err := c.fetchCountries(ctx, "/movie/"+id); err == nil {
		result.Countries = countries
	}
	if keywords, err := c.fetchKeywords(ctx, "/movie/"+id+"/keywords", "keywords"); err == nil {
		result.Keywords = keywords
	}
	return result, nil
}

func (c *Client) GetTVShow(ctx context.Context, id string) (*metadata.TVShow, error) {
	tvID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("tmdb: invalid tv id %q: %w", id, err)
	}
	show, err := c.sdk.GetTVDetails(tvID, map[string]string{
		"append_to_response": "external_ids",
		"language":           c.lang,
	})
	if err != nil {
		return nil, fmt.Errorf("tmdb: getting tv details: %w", err)
	}

	result := &metadata.TVShow{
		ID:               fmt.Sprintf("%d", show.ID),
		Name:             show.Name,
		OriginalName:     show.OriginalName,
		Overview:         show.Overview,
		FirstAirDate:     show.FirstAirDate,
		LastAirDate:      show.LastAirDate,
		PosterPath:       show.PosterPath,
		BackdropPath:     show.BackdropPath,
		VoteAverage:      float64(show.VoteAverage),
		VoteCount:        int(show.VoteCount),
		Popularity:       float64(show.Popularity),
		Status:           show.Status,
		NumberOfSeasons:  show.NumberOfSeasons,
		NumberOfEpisodes: show.NumberOfEpisodes,
		InProduction:     show.InProduction,
	}
	for _, g := range show.Genres {
		result.Genres = append(result.Genres, metadata.Genre{ID: fmt.Sprintf("%d", g.ID), Name: g.Name})
	}
	for _, s := range show.Seasons {
		result.Seasons = append(result.Seasons, metadata.TVSeason{
			ID:           fmt.Sprintf("%d", s.ID),
			TVShowID:     result.ID,
			Name:         s.Name,
			Overview:     s.Overview,
			SeasonNumber: s.SeasonNumber,
			AirDate:      s.AirDate,
			PosterPath:   s.PosterPath,
			EpisodeCount: s.EpisodeCount,
		})
	}

	externalIDs, err := c.sdk.GetTVExternalIDs(tvID, nil)
	if err == nil && externalIDs != nil {
		result.ExternalIDs = metadata.ExternalIDs{IMDBID: externalIDs.IMDbID, TMDBID: result.ID}
	}
	if countries, err := c.fetchCountries(ctx, "/tv/"+id); err == nil {
		result.Countries = countries
	}
	if keywords, err := c.fetchKeywords(ctx, "/tv/"+id+"/keywords", "results"); err == nil {
		result.Keywords = keywords
	}
	return result, nil
}

func (c *Client) SearchMovies(ctx context.Context, query string, year int) ([]metadata.Movie, error) {
	options := map[string]string{"language": c.lang, "page": "1"}
	if year > 0 {
		options["primary_release_year"] = strconv.Itoa(year)
	}
	result, err := c.sdk.GetSearchMovies(query, options)
	if err != nil {
		return nil, fmt.Errorf("tmdb: searching movies: %w", err)
	}
	out := make([]metadata.Movie, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, metadata.Movie{
			ID:            fmt.Sprintf("%d", r.ID),
			Title:         r.Title,
			OriginalTitle: r.OriginalTitle,
			Overview:      r.Overview,
			ReleaseDate:   r.ReleaseDate,
			PosterPath:    r.PosterPath,
			BackdropPath:  r.BackdropPath,
			VoteAverage:   float64(r.VoteAverage),
			VoteCount:     int(r.VoteCount),
			Popularity:    float64(r.Popularity),
			Adult:         r.Adult,
		})
	}
	return out, nil
}

func (c *Client) SearchTVShows(ctx context.Context, query string) ([]metadata.TVShow, error) {
	result, err := c.sdk.GetSearchTVShow(query, map[string]string{"language": c.lang, "page": "1"})
	if err != nil {
		return nil, fmt.Errorf("tmdb: searching tv shows: %w", err)
	}
	out := make([]metadata.TVShow, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, metadata.TVShow{
			ID:           fmt.Sprintf("%d", r.ID),
			Name:         r.Name,
			OriginalName: r.OriginalName,
			Overview:     r.Overview,
			FirstAirDate: r.FirstAirDate,
			PosterPath:   r.PosterPath,
			BackdropPath: r.BackdropPath,
			VoteAverage:  float64(r.VoteAverage),
			VoteCount:    int(r.VoteCount),
			Popularity:   float64(r.Popularity),
		})
	}
	return out, nil
}

func (c *Client) GetTVSeason(ctx context.Context, tvShowID string, seasonNumber int) (*metadata.TVSeason, error) {
	id, err := strconv.Atoi(tvShowID)
	if err != nil {
		return nil, fmt.Errorf("tmdb: invalid tv id %q: %w", tvShowID, err)
	}
	season, err := c.sdk.GetTVSeasonDetails(id, seasonNumber, map[string]string{"language": c.lang})
	if err != nil {
		return nil, fmt.Errorf("tmdb: getting season details: %w", err)
	}
	episodes := make([]metadata.TVEpisode, 0, len(season.Episodes))
	for _, ep := range season.Episodes {
		episodes = append(episodes, metadata.TVEpisode{
			ID:            fmt.Sprintf("%d", ep.ID),
			TVShowID:      tvShowID,
			SeasonNumber:  ep.SeasonNumber,
			EpisodeNumber: ep.EpisodeNumber,
			Name:          ep.Name,
			Overview:      ep.Overview,
			AirDate:       ep.AirDate,
			StillPath:     ep.StillPath,
			VoteAverage:   float64(ep.VoteAverage),
			VoteCount:     int(ep.VoteCount),
		})
	}
	return &metadata.TVSeason{
		ID:           fmt.Sprintf("%d", season.ID),
		TVShowID:     tvShowID,
		Name:         season.Name,
		Overview:     season.Overview,
		SeasonNumber: season.SeasonNumber,
		AirDate:      season.AirDate,
		PosterPath:   season.PosterPath,
		EpisodeCount: len(season.Episodes),
		Episodes:     episodes,
	}, nil
}

func (c *Client) GetPerson(ctx context.Context, id string) (*metadata.Person, error) {
	personID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("tmdb: invalid person id %q: %w", id, err)
	}
	person, err := c.sdk.GetPersonDetails(personID, map[string]string{
		"append_to_response": "external_ids",
		"language":           c.lang,
	})
	if err != nil {
		return nil, fmt.Errorf("tmdb: getting person details: %w", err)
	}
	result := &metadata.Person{
		ID:                 fmt.Sprintf("%d", person.ID),
		Name:               person.Name,
		ProfilePath:        person.ProfilePath,
		KnownForDepartment: person.KnownForDepartment,
		Biography:          person.Biography,
		Birthday:           person.Birthday,
		Deathday:           person.Deathday,
		PlaceOfBirth:       person.PlaceOfBirth,
		Gender:             person.Gender,
		Popularity:         float64(person.Popularity),
	}
	if person.ExternalIDs != nil {
		result.ExternalIDs = metadata.ExternalIDs{IMDBID: person.ExternalIDs.IMDbID, TMDBID: result.ID}
	}
	return result, nil
}

func (c *Client) GetPersonMovieCredits(ctx context.Context, personID string) ([]metadata.Credit, error) {
	id, err := strconv.Atoi(personID)
	if err != nil {
		return nil, fmt.Errorf("tmdb: invalid person id %q: %w", personID, err)
	}
	credits, err := c.sdk.GetPersonMovieCredits(id, map[string]string{"language": c.lang})
	if err != nil {
		return nil, fmt.Errorf("tmdb: getting person movie credits: %w", err)
	}
	out := make([]metadata.Credit, 0, len(credits.Cast))
	for _, cr := range credits.Cast {
		genreIDs := make([]int, len(cr.GenreIDs))
		copy(genreIDs, cr.GenreIDs)
		out = append(out, metadata.Credit{
			MediaID:     fmt.Sprintf("%d", cr.ID),
			MediaType:   "movie",
			Title:       cr.Title,
			Character:   cr.Character,
			PosterPath:  cr.PosterPath,
			ReleaseDate: cr.ReleaseDate,
			Order:       cr.Order,
			Popularity:  float64(cr.Popularity),
			VoteAverage: float64(cr.VoteAverage),
			VoteCount:   int(cr.VoteCount),
			GenreIDs:    genreIDs,
		})
	}
	return out, nil
}

func (c *Client) GetPersonTVCredits(ctx context.Context, personID string) ([]metadata.Credit, error) {
	id, err := strconv.Atoi(personID)
	if err != nil {
		return nil, fmt.Errorf("tmdb: invalid person id %q: %w", personID, err)
	}
	credits, err := c.sdk.GetPersonTVCredits(id, map[string]string{"language": c.lang})
	if err != nil {
		return nil, fmt.Errorf("tmdb: getting person tv credits: %w", err)
	}
	out := make([]metadata.Credit, 0, len(credits.Cast))
	for _, cr := range credits.Cast {
		genreIDs := make([]int, len(cr.GenreIDs))
		copy(genreIDs, cr.GenreIDs)
		out = append(out, metadata.Credit{
			MediaID:      fmt.Sprintf("%d", cr.ID),
			MediaType:    "tv",
			Title:        cr.Name,
			Character:    cr.Character,
			PosterPath:   cr.PosterPath,
			ReleaseDate:  cr.FirstAirDate,
			EpisodeCount: cr.EpisodeCount,
			Popularity:   float64(cr.Popularity),
			VoteAverage:  float64(cr.VoteAverage),
			VoteCount:    int(cr.VoteCount),
			GenreIDs:     genreIDs,
		})
	}
	return out, nil
}

// GetTVCastOrder fetches a TV title's credits and returns the billing
// order of personID within the cast, or 999 if absent — a title's own
// person-credits entry does not carry order for TV, unlike movies.
func (c *Client) GetTVCastOrder(ctx context.Context, tvShowID string, personID string) (int, error) {
	tvID, err := strconv.Atoi(tvShowID)
	if err != nil {
		return 0, fmt.Errorf("tmdb: invalid tv id %q: %w", tvShowID, err)
	}
	pID, err := strconv.Atoi(personID)
	if err != nil {
		return 0, fmt.Errorf("tmdb: invalid person id %q: %w", personID, err)
	}
	credits, err := c.sdk.GetTVCredits(tvID, map[string]string{"language": c.lang})
	if err != nil {
		return 0, fmt.Errorf("tmdb: getting tv credits: %w", err)
	}
	for _, cast := range credits.Cast {
		if cast.ID == pID {
			return cast.Order, nil
		}
	}
	return 999, nil
}

func (c *Client) SearchPeople(ctx context.Context, query string) ([]metadata.Person, error) {
	results, err := c.sdk.GetSearchPeople(query, map[string]string{"language": c.lang})
	if err != nil {
		return nil, fmt.Errorf("tmdb: searching people: %w", err)
	}
	out := make([]metadata.Person, 0, len(results.Results))
	for _, p := range results.Results {
		out = append(out, metadata.Person{
			ID:                 fmt.Sprintf("%d", p.ID),
			Name:               p.Name,
			ProfilePath:        p.ProfilePath,
			KnownForDepartment: p.KnownForDepartment,
			Popularity:         float64(p.Popularity),
		})
	}
	return out, nil
}

// genreListResponse is the v3 genre-list wire shape; the SDK does not
// expose /genre/movie/list or /genre/tv/list directly.
type genreListResponse struct {
	Genres []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}

func (c *Client) MovieGenres(ctx context.Context) ([]metadata.Genre, error) {
	return c.fetchGenres(ctx, "/genre/movie/list")
}

func (c *Client) TVGenres(ctx context.Context) ([]metadata.Genre, error) {
	return c.fetchGenres(ctx, "/genre/tv/list")
}

func (c *Client) fetchGenres(ctx context.Context, path string) ([]metadata.Genre, error) {
	var resp genreListResponse
	err := c.raw.DoJSON(ctx, httpx.Request{
		Method: "GET",
		Path:   path,
		Query:  map[string]string{"api_key": c.apiKey, "language": c.lang},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("tmdb: fetching genre list: %w", err)
	}
	out := make([]metadata.Genre, 0, len(resp.Genres))
	for _, g := range resp.Genres {
		out = append(out, metadata.Genre{ID: fmt.Sprintf("%d", g.ID), Name: g.Name})
	}
	return out, nil
}

// countriesResponse is the subset of a movie/tv details response this
// client cares about beyond what the SDK's own struct exposes.
type countriesResponse struct {
	ProductionCountries []struct {
		Name string `json:"name"`
	} `json:"production_countries"`
}

func (c *Client) fetchCountries(ctx context.Context, path string) ([]string, error) {
	var resp countriesResponse
	err := c.raw.DoJSON(ctx, httpx.Request{
		Method: "GET",
		Path:   path,
		Query:  map[string]string{"api_key": c.apiKey, "language": c.lang},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("tmdb: fetching production countries: %w", err)
	}
	out := make([]string, 0, len(resp.ProductionCountries))
	for _, pc := range resp.ProductionCountries {
		out = append(out, pc.Name)
	}
	return out, nil
}

// fetchKeywords hits the dedicated /keywords endpoint rather than
// append_to_response, since the movie and tv variants nest their
// keyword list under different field names ("keywords" vs "results").
func (c *Client) fetchKeywords(ctx context.Context, path, field string) ([]string, error) {
	var resp map[string][]struct {
		Name string `json:"name"`
	}
	err := c.raw.DoJSON(ctx, httpx.Request{
		Method: "GET",
		Path:   path,
		Query:  map[string]string{"api_key": c.apiKey},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("tmdb: fetching keywords: %w", err)
	}
	entries := resp[field]
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out, nil
}

// ExpandDateMacros resolves spec.md §4.4's `{today±N}` date macros
// inside discover query params against the current time.
func ExpandDateMacros(params map[string]string, now time.Time) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = expandOne(v, now)
	}
	return out
}

func expandOne(v string, now time.Time) string {
	const prefix, suffix = "{today", "}"
	start := indexOf(v, prefix)
	if start < 0 {
		return v
	}
	end := indexOf(v[start:], suffix)
	if end < 0 {
		return v
	}
	end += start
	offsetStr := v[start+len(prefix) : end]
	days := 0
	if offsetStr != "" {
		n, err := strconv.Atoi(offsetStr)
		if err == nil {
			days = n
		}
	}
	resolved := now.AddDate(0, 0, days).Format("2006-01-02")
	return v[:start] + resolved + v[end+len(suffix):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (c *Client) DiscoverMovies(ctx context.Context, params map[string]string, page int) (metadata.ListPage, error) {
	params = ExpandDateMacros(params, time.Now())
	params["page"] = strconv.Itoa(page)
	params["language"] = c.lang
	result, err := c.sdk.GetDiscoverMovie(params)
	if err != nil {
		return metadata.ListPage{}, fmt.Errorf("tmdb: discovering movies: %w", err)
	}
	out := metadata.ListPage{Page: result.Page, TotalPages: result.TotalPages, TotalResults: int(result.TotalResults)}
	for _, r := range result.Results {
		out.Movies = append(out.Movies, metadata.Movie{
			ID:            fmt.Sprintf("%d", r.ID),
			Title:         r.Title,
			OriginalTitle: r.OriginalTitle,
			Overview:      r.Overview,
			ReleaseDate:   r.ReleaseDate,
			PosterPath:    r.PosterPath,
			BackdropPath:  r.BackdropPath,
			VoteAverage:   float64(r.VoteAverage),
			VoteCount:     int(r.VoteCount),
			Popularity:    float64(r.Popularity),
			Adult:         r.Adult,
		})
	}
	return out, nil
}

func (c *Client) DiscoverTVShows(ctx context.Context, params map[string]string, page int) (metadata.ListPage, error) {
	params = ExpandDateMacros(params, time.Now())
	params["page"] = strconv.Itoa(page)
	params["language"] = c.lang
	result, err := c.sdk.GetDiscoverTV(params)
	if err != nil {
		return metadata.ListPage{}, fmt.Errorf("tmdb: discovering tv shows: %w", err)
	}
	out := metadata.ListPage{Page: result.Page, TotalPages: result.TotalPages, TotalResults: int(result.TotalResults)}
	for _, r := range result.Results {
		out.TVShows = append(out.TVShows, metadata.TVShow{
			ID:           fmt.Sprintf("%d", r.ID),
			Name:         r.Name,
			OriginalName: r.OriginalName,
			Overview:     r.Overview,
			FirstAirDate: r.FirstAirDate,
			PosterPath:   r.PosterPath,
			BackdropPath: r.BackdropPath,
			VoteAverage:  float64(r.VoteAverage),
			VoteCount:    int(r.VoteCount),
			Popularity:   float64(r.Popularity),
		})
	}
	return out, nil
}

// listResponse is the v3 /list/{id} wire shape (paged metadata-list
// source, spec.md §4.4), which the SDK does not cover.
type listResponse struct {
	Page         int `json:"page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Items        []struct {
		ID            int    `json:"id"`
		Title         string `json:"title"`
		Name          string `json:"name"`
		MediaType     string `json:"media_type"`
		ReleaseDate   string `json:"release_date"`
		FirstAirDate  string `json:"first_air_date"`
		PosterPath    string `json:"poster_path"`
		OriginalTitle string `json:"original_title"`
	} `json:"items"`
}

func (c *Client) GetList(ctx context.Context, listID string, page int) (metadata.ListPage, error) {
	var resp listResponse
	err := c.raw.DoJSON(ctx, httpx.Request{
		Method: "GET",
		Path:   "/list/" + listID,
		Query:  map[string]string{"api_key": c.apiKey, "page": strconv.Itoa(page), "language": c.lang},
	}, &resp)
	if err != nil {
		return metadata.ListPage{}, fmt.Errorf("tmdb: fetching list %s: %w", listID, err)
	}
	out := metadata.ListPage{Page: resp.Page, TotalPages: resp.TotalPages, TotalResults: resp.TotalResults}
	for _, it := range resp.Items {
		if it.MediaType == "tv" {
			out.TVShows = append(out.TVShows, metadata.TVShow{
				ID: fmt.Sprintf("%d", it.ID), Name: it.Name, FirstAirDate: it.FirstAirDate, PosterPath: it.PosterPath,
			})
			continue
		}
		out.Movies = append(out.Movies, metadata.Movie{
			ID: fmt.Sprintf("%d", it.ID), Title: it.Title, OriginalTitle: it.OriginalTitle,
			ReleaseDate: it.ReleaseDate, PosterPath: it.PosterPath,
		})
	}
	return out, nil
}
