// Package downloader implements the Downloader/Subscription Service
// client, spec.md §9: an access-token login followed by subscribe
// requests that may carry a quality-upgrade flag.
package downloader

import (
	"context"
	"fmt"

	"mediabridge/apperrors"
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

// Login performs spec.md §9 "POST /api/v1/login/access-token",
// caching the bearer token for subsequent subscribe calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.http.DoJSON(ctx, httpx.Request{Method: "POST", Path: "/api/v1/login/access-token", Body: body}, &resp); err != nil {
		return fmt.Errorf("downloader: logging in: %w", err)
	}
	c.accessToken = resp.AccessToken
	return nil
}

// SubscribeRequest is the body of spec.md §9 "POST
// /api/v1/subscribe/ with {name, tmdbid, type, season?, best_version?}".
type SubscribeRequest struct {
	Name        string `json:"name"`
	TMDBID      int64  `json:"tmdbid"`
	Type        string `json:"type"`
	Season      *int   `json:"season,omitempty"`
	BestVersion bool   `json:"best_version,omitempty"`
}

// Subscribe submits a subscription request. Callers must check the
// daily quota (storage/repo.QuotaRepository) before calling; a 429
// here surfaces as apperrors.KindRateLimited regardless.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) error {
	if c.accessToken == "" {
		return apperrors.New(apperrors.KindFatal, "downloader: not authenticated, call Login first")
	}
	err := c.http.DoJSON(ctx, httpx.Request{
		Method:  "POST",
		Path:    "/api/v1/subscribe/",
		Body:    req,
		Headers: map[string]string{"Authorization": "Bearer " + c.accessToken},
	}, nil)
	if err != nil {
		return fmt.Errorf("downloader: subscribing to %q: %w", req.Name, err)
	}
	return nil
}
