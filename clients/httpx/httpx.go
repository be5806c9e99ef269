// Package httpx is the shared HTTP transport for every external
// client: a retrying, logging JSON round-tripper. Grounded on the
// teacher's client-per-collaborator shape in clients/, generalized
// into one helper every provider client calls instead of repeating
// its own request/retry boilerplate.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"mediabridge/apperrors"
	"mediabridge/clients/types"
	"mediabridge/logging"
)

// Client wraps an *http.Client with the config every external
// collaborator shares (base URL, timeout, user-agent) plus retry and a
// per-collaborator outbound rate limit.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	attempts  uint
	limiter   *rate.Limiter
}

func New(cfg types.ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Limit(cfg.RateLimitPerSecond)
	burst := cfg.RateLimitBurst
	if cfg.RateLimitPerSecond <= 0 {
		limit = rate.Inf
		burst = 0
	} else if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		attempts:  3,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// BaseURL returns the collaborator's configured root, for callers that
// need to build a non-JSON URL (e.g. an image endpoint) rather than an
// API call routed through DoJSON.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request is one JSON-in/JSON-out HTTP call; body may be nil.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    any
}

// DoJSON executes req with retry, decoding a JSON response into out
// (which may be nil for calls that discard the body). A non-2xx
// status maps to the apperrors taxonomy shared by every client:
// 401/403/404 are not retried, 429 is KindRateLimited, >=500 is
// KindTransient and retried, everything else is KindInternal.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	url := c.baseURL + req.Path
	if len(req.Query) > 0 {
		q := make([]byte, 0, 64)
		sep := byte('?')
		for k, v := range req.Query {
			q = append(q, sep)
			q = append(q, []byte(k+"="+v)...)
			sep = '&'
		}
		url += string(q)
	}

	var bodyBytes []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return apperrors.Wrap(apperrors.KindValidation, "encoding request body", err)
		}
		bodyBytes = b
	}

	log := logging.FromContext(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "waiting for rate limiter", err)
	}

	return retry.Do(
		func() error {
			httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(bodyBytes))
			if err != nil {
				return retry.Unrecoverable(apperrors.Wrap(apperrors.KindFatal, "building request", err))
			}
			if bodyBytes != nil {
				httpReq.Header.Set("Content-Type", "application/json")
			}
			if c.userAgent != "" {
				httpReq.Header.Set("User-Agent", c.userAgent)
			}
			for k, v := range req.Headers {
				httpReq.Header.Set(k, v)
			}

			resp, err := c.http.Do(httpReq)
			if err != nil {
				return apperrors.Wrap(apperrors.KindTransient, "executing request", err)
			}
			defer resp.Body.Close()

			respBytes, err := io.ReadAll(resp.Body)
			if err != nil {
				return apperrors.Wrap(apperrors.KindTransient, "reading response body", err)
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				return apperrors.New(apperrors.KindRateLimited, "rate limited by collaborator")
			}
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(apperrors.New(apperrors.KindAuthoritativeNotFound,
					fmt.Sprintf("collaborator returned %d", resp.StatusCode)))
			}
			if resp.StatusCode >= 500 {
				return apperrors.New(apperrors.KindTransient, fmt.Sprintf("collaborator returned %d", resp.StatusCode))
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(apperrors.New(apperrors.KindInternal, fmt.Sprintf("collaborator returned %d", resp.StatusCode)))
			}

			if out == nil || len(respBytes) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBytes, out); err != nil {
				return retry.Unrecoverable(apperrors.Wrap(apperrors.KindInternal, "decoding response body", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Uint("attempt", n+1).Err(err).Str("url", url).Msg("retrying external request")
		}),
	)
}
