// Package cultural implements the Chinese Cultural Provider client:
// supplementary cast, aliases, and roles keyed by IMDb id, name+year,
// or the provider's own person id (spec.md §4.1, §9). Adapted from
// the teacher's clients/media provider shape onto this system's own
// httpx transport.
package cultural

import (
	"context"
	"fmt"
	"strconv"

	"mediabridge/clients/httpx"
	"mediabridge/clients/types"
	"mediabridge/identity"
)

type Client struct {
	http *httpx.Client
}

func New(cfg types.ClientConfig) *Client {
	return &Client{http: httpx.New(cfg)}
}

var _ identity.CastSource = (*Client)(nil)

func (c *Client) Source() identity.Source { return identity.SourceCultural }

type castResponse struct {
	Cast []struct {
		Name       string `json:"name"`
		Role       string `json:"role"`
		Order      int    `json:"order"`
		PersonID   string `json:"person_id"`
		PersonURL  string `json:"person_url"`
	} `json:"cast"`
}

// FetchCast implements identity.CastSource for a media item already
// known by IMDb id, per spec.md §4.1's cast-matching pipeline.
func (c *Client) FetchCast(ctx context.Context, mediaID string) ([]identity.RawActor, error) {
	var resp castResponse
	err := c.http.DoJSON(ctx, httpx.Request{
		Method: "GET",
		Path:   "/credits",
		Query:  map[string]string{"imdb_id": mediaID},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("cultural: fetching cast for %s: %w", mediaID, err)
	}

	out := make([]identity.RawActor, 0, len(resp.Cast))
	for _, c := range resp.Cast {
		out = append(out, identity.RawActor{
			Name:        c.Name,
			Role:        c.Role,
			Order:       c.Order,
			CulturalID:  c.PersonID,
			CulturalURL: c.PersonURL,
		})
	}
	return out, nil
}

// FetchCastByNameYear is the fallback path when no IMDb id is
// available: search by title/year, spec.md §4.1 "matching by ...
// normalized name".
func (c *Client) FetchCastByNameYear(ctx context.Context, title string, year int) ([]identity.RawActor, error) {
	var resp castResponse
	err := c.http.DoJSON(ctx, httpx.Request{
		Method: "GET",
		Path:   "/search/credits",
		Query:  map[string]string{"title": title, "year": strconv.Itoa(year)},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("cultural: searching cast for %q (%d): %w", title, year, err)
	}
	out := make([]identity.RawActor, 0, len(resp.Cast))
	for _, c := range resp.Cast {
		out = append(out, identity.RawActor{Name: c.Name, Role: c.Role, Order: c.Order, CulturalID: c.PersonID, CulturalURL: c.PersonURL})
	}
	return out, nil
}

// Person is the provider's per-person profile, fetched by URL.
type Person struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// GetPersonByURL fetches per-person details by the provider's own
// profile URL, spec.md §9 "per-person details by URL".
func (c *Client) GetPersonByURL(ctx context.Context, url string) (*Person, error) {
	var resp Person
	err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/person", Query: map[string]string{"url": url}}, &resp)
	if err != nil {
		return nil, fmt.Errorf("cultural: fetching person by url: %w", err)
	}
	return &resp, nil
}
