// Package library implements the Library Server client: the Emby-like
// catalog/user/policy API spec.md §9 enumerates. Adapted from the
// teacher's clients/media/emby client onto this system's own httpx
// transport and DTOs; the synthetic-library proxy and every processor
// depend only on this client, never on the proxy's own mux.
package library

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mediabridge/clients/httpx"
	"mediabridge/clients/types"
)

type Client struct {
	http        *httpx.Client
	accessToken string
}

func New(cfg types.ClientConfig) *Client {
	return &Client{http: httpx.New(cfg)}
}

type Item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	ParentID          string            `json:"ParentId"`
	SeriesID          string            `json:"SeriesId,omitempty"`
	ProductionYear    int               `json:"ProductionYear,omitempty"`
	ProviderIDs       map[string]string `json:"ProviderIds"`
	IndexNumber       *int              `json:"IndexNumber,omitempty"`
	ParentIndexNumber *int              `json:"ParentIndexNumber,omitempty"`
	People            []Person          `json:"People,omitempty"`
	MediaSources      []MediaSource     `json:"MediaSources,omitempty"`

	// The remaining fields only come back when requested through the
	// Fields query param (see GetItem); they feed the metadata
	// processor's upsert into MediaMetadata and AssetDetail.
	Genres          []string     `json:"Genres,omitempty"`
	Tags            []string     `json:"Tags,omitempty"`
	OfficialRating  string       `json:"OfficialRating,omitempty"`
	Overview        string       `json:"Overview,omitempty"`
	Studios         []NameIdPair `json:"Studios,omitempty"`
	Path            string       `json:"Path,omitempty"`
	AncestorIDs     []string     `json:"AncestorIds,omitempty"`
	PremiereDate    string       `json:"PremiereDate,omitempty"`
	RunTimeTicks    int64        `json:"RunTimeTicks,omitempty"`
	CommunityRating float64      `json:"CommunityRating,omitempty"`
}

// NameIdPair is the Library Server's {Name, Id} shape used for Studios
// and similar reference lists.
type NameIdPair struct {
	Name string `json:"Name"`
	ID   string `json:"Id,omitempty"`
}

// MediaSource is one physical file backing an Item, spec.md §5's
// duplicate-version cleanup scanner reads Path/Size/Bitrate and the
// first video stream's resolution/dynamic-range tag off of this.
type MediaSource struct {
	Path         string        `json:"Path"`
	Container    string        `json:"Container"`
	SizeBytes    int64         `json:"Size"`
	Bitrate      int           `json:"Bitrate"`
	MediaStreams []MediaStream `json:"MediaStreams"`
}

type MediaStream struct {
	Type       string `json:"Type"` // "Video" | "Audio" | "Subtitle"
	Codec      string `json:"Codec,omitempty"`
	Width      int    `json:"Width,omitempty"`
	Height     int    `json:"Height,omitempty"`
	VideoRange string `json:"VideoRange,omitempty"` // "SDR" | "HDR10" | "HDR10+" | "Dolby Vision"
	Profile    string `json:"Profile,omitempty"`
}

// Person is one cast/crew credit as the Library Server reports and
// accepts it, spec.md §4.2 "fetch the original cast ... write the
// cast back to the Library Server".
type Person struct {
	Name            string `json:"Name"`
	Role            string `json:"Role,omitempty"`
	Type            string `json:"Type"` // "Actor" | "Director" | ...
	SortOrder       int    `json:"SortOrder,omitempty"`
	ProviderIDs     map[string]string `json:"ProviderIds,omitempty"`
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// ListItems pages the catalog by parent/search, spec.md §9 "Items
// catalog by ID/parent/search". startIndex/limit follow the Library
// Server's own paging convention, restartable like the metadata
// provider's paginated person iterator.
func (c *Client) ListItems(ctx context.Context, parentID, searchTerm string, startIndex, limit int) ([]Item, int, error) {
	query := map[string]string{
		"StartIndex": fmt.Sprintf("%d", startIndex),
		"Limit":      fmt.Sprintf("%d", limit),
	}
	if parentID != "" {
		query["ParentId"] = parentID
	}
	if searchTerm != "" {
		query["SearchTerm"] = searchTerm
	}
	var resp itemsResponse
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/Items", Query: query, Headers: c.authHeaders()}, &resp); err != nil {
		return nil, 0, fmt.Errorf("library: listing items: %w", err)
	}
	return resp.Items, resp.TotalRecordCount, nil
}

// itemDetailFields are the optional fields the metadata processor needs
// off an item beyond the ones the Library Server returns by default.
const itemDetailFields = "Genres,Tags,Overview,Studios,Path,AncestorIds,ProviderIds"

func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	var item Item
	query := map[string]string{"Fields": itemDetailFields}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/Items/" + id, Query: query, Headers: c.authHeaders()}, &item); err != nil {
		return nil, fmt.Errorf("library: getting item %s: %w", id, err)
	}
	return &item, nil
}

// PosterURL builds the Primary-image URL for an item, the poster tile
// source the collection cover generator composites into a collage.
func (c *Client) PosterURL(itemID string) string {
	return fmt.Sprintf("%s/Items/%s/Images/Primary", c.http.BaseURL(), itemID)
}

// GetItemWithMediaSources fetches an item including its MediaSources,
// the file path/size/bitrate/stream data the cleanup scanner ranks
// duplicate versions on.
func (c *Client) GetItemWithMediaSources(ctx context.Context, id string) (*Item, error) {
	var item Item
	query := map[string]string{"Fields": itemDetailFields + ",MediaSources"}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/Items/" + id, Query: query, Headers: c.authHeaders()}, &item); err != nil {
		return nil, fmt.Errorf("library: getting item %s with media sources: %w", id, err)
	}
	return &item, nil
}

// RefreshItem triggers a metadata refresh on the Library Server,
// spec.md §9 "Items/{id}/Refresh".
func (c *Client) RefreshItem(ctx context.Context, id string) error {
	return c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Items/" + id + "/Refresh", Headers: c.authHeaders()}, nil)
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.http.DoJSON(ctx, httpx.Request{Method: "DELETE", Path: "/Items/" + id, Headers: c.authHeaders()}, nil)
}

// UpdateItemCast replaces an item's People list, spec.md §4.2 step 6
// "write the cast back to the Library Server".
func (c *Client) UpdateItemCast(ctx context.Context, id string, people []Person) error {
	item, err := c.GetItem(ctx, id)
	if err != nil {
		return err
	}
	item.People = people
	return c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Items/" + id, Body: item, Headers: c.authHeaders()}, nil)
}

type Collection struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

func (c *Client) CreateCollection(ctx context.Context, name string, itemIDs []string) (*Collection, error) {
	var result Collection
	body := map[string]any{"Name": name, "Ids": itemIDs}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Collections", Body: body, Headers: c.authHeaders()}, &result); err != nil {
		return nil, fmt.Errorf("library: creating collection %q: %w", name, err)
	}
	return &result, nil
}

func (c *Client) AddToCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	body := map[string]any{"Ids": itemIDs}
	return c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Collections/" + collectionID + "/Items", Body: body, Headers: c.authHeaders()}, nil)
}

func (c *Client) RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	body := map[string]any{"Ids": itemIDs}
	return c.http.DoJSON(ctx, httpx.Request{Method: "DELETE", Path: "/Collections/" + collectionID + "/Items", Body: body, Headers: c.authHeaders()}, nil)
}

func (c *Client) DeleteCollection(ctx context.Context, collectionID string) error {
	return c.http.DoJSON(ctx, httpx.Request{Method: "DELETE", Path: "/Items/" + collectionID, Headers: c.authHeaders()}, nil)
}

type View struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// GetUserViews returns the user's native library views, spec.md §9
// "Users/{id}/Views" — the proxy interleaves synthetic views into
// this same response shape.
func (c *Client) GetUserViews(ctx context.Context, userID string) ([]View, error) {
	var resp struct {
		Items []View `json:"Items"`
	}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/Users/" + userID + "/Views", Headers: c.authHeaders()}, &resp); err != nil {
		return nil, fmt.Errorf("library: getting views for user %s: %w", userID, err)
	}
	return resp.Items, nil
}

// AuthenticateByName performs an admin login, spec.md §9
// "Users/AuthenticateByName" — the resulting access token is cached
// on the client for subsequent admin-only calls.
func (c *Client) AuthenticateByName(ctx context.Context, username, password string) error {
	var resp struct {
		AccessToken string `json:"AccessToken"`
		User        struct {
			ID string `json:"Id"`
		} `json:"User"`
	}
	body := map[string]string{"Username": username, "Pw": password}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Users/AuthenticateByName", Body: body}, &resp); err != nil {
		return fmt.Errorf("library: authenticating as %s: %w", username, err)
	}
	c.accessToken = resp.AccessToken
	return nil
}

// GetUserPolicy fetches a user's current policy, the source a template
// snapshot is taken from, spec.md §4.7 "Sync-template replays the
// current source user's policy".
func (c *Client) GetUserPolicy(ctx context.Context, userID string) (map[string]any, error) {
	var user struct {
		Policy map[string]any `json:"Policy"`
	}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/Users/" + userID, Headers: c.authHeaders()}, &user); err != nil {
		return nil, fmt.Errorf("library: getting policy for user %s: %w", userID, err)
	}
	return user.Policy, nil
}

// GetUserConfiguration fetches a user's current configuration.
func (c *Client) GetUserConfiguration(ctx context.Context, userID string) (map[string]any, error) {
	var user struct {
		Configuration map[string]any `json:"Configuration"`
	}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/Users/" + userID, Headers: c.authHeaders()}, &user); err != nil {
		return nil, fmt.Errorf("library: getting configuration for user %s: %w", userID, err)
	}
	return user.Configuration, nil
}

// SetUserPolicy force-sets a user's policy, spec.md §9 "per-user
// policy/configuration force-set" and §4.7's template replay.
func (c *Client) SetUserPolicy(ctx context.Context, userID string, policy any) error {
	return c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Users/" + userID + "/Policy", Body: policy, Headers: c.authHeaders()}, nil)
}

func (c *Client) SetUserConfiguration(ctx context.Context, userID string, configuration any) error {
	return c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Users/" + userID + "/Configuration", Body: configuration, Headers: c.authHeaders()}, nil)
}

// NewUser is a freshly provisioned user, spec.md §4.7 step (a) "create
// a library user with a name-collision check".
type NewUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// ErrNameTaken is returned by CreateUser when the requested name
// already exists, so callers can surface a validation error instead of
// retrying.
var ErrNameTaken = fmt.Errorf("library: user name already exists")

// CreateUser provisions a new library user after checking for a name
// collision against the existing user list, spec.md §4.7 invitation
// redemption step (a).
func (c *Client) CreateUser(ctx context.Context, name string) (*NewUser, error) {
	var existing []NewUser
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: "/Users", Headers: c.authHeaders()}, &existing); err != nil {
		return nil, fmt.Errorf("library: listing users: %w", err)
	}
	for _, u := range existing {
		if u.Name == name {
			return nil, ErrNameTaken
		}
	}
	var created NewUser
	body := map[string]string{"Name": name}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/Users/New", Body: body, Headers: c.authHeaders()}, &created); err != nil {
		return nil, fmt.Errorf("library: creating user %s: %w", name, err)
	}
	return &created, nil
}

// FetchItemsRaw fetches full item details for a batch of ids as raw
// maps (rather than the typed Item), so the reverse proxy's synthetic
// pages pass through every field the Library Server returns instead of
// whatever subset Item declares, spec.md §4.8 "fetch full item details
// from the Library Server in batches ... preserving the order returned
// by the rule engine".
func (c *Client) FetchItemsRaw(ctx context.Context, userID string, ids []string, fields, sortBy, sortOrder string, startIndex, limit int) ([]map[string]any, int, error) {
	query := map[string]string{
		"Ids":        strings.Join(ids, ","),
		"Fields":     fields,
		"StartIndex": strconv.Itoa(startIndex),
	}
	if sortBy != "" {
		query["SortBy"] = sortBy
	}
	if sortOrder != "" {
		query["SortOrder"] = sortOrder
	}
	if limit > 0 {
		query["Limit"] = strconv.Itoa(limit)
	}
	var resp struct {
		Items            []map[string]any `json:"Items"`
		TotalRecordCount int               `json:"TotalRecordCount"`
	}
	path := "/Users/" + userID + "/Items"
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "GET", Path: path, Query: query, Headers: c.authHeaders()}, &resp); err != nil {
		return nil, 0, fmt.Errorf("library: fetching items for user %s: %w", userID, err)
	}
	return resp.Items, resp.TotalRecordCount, nil
}

func (c *Client) authHeaders() map[string]string {
	if c.accessToken == "" {
		return nil
	}
	return map[string]string{"X-Emby-Token": c.accessToken}
}
