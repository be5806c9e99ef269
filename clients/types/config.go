// Package types holds the configuration and error shapes shared by
// every external client under clients/, grounded on the teacher's own
// clients/types package (one ClientConfig shape reused per collaborator).
package types

import "time"

// ClientConfig is the shape every external collaborator
// (Library Server, Metadata Provider, Cultural Provider, Downloader,
// AI Provider) configures itself with, spec.md §1 "External clients":
// a base URL, credentials, timeout, and user-agent, all carried the
// same way regardless of which collaborator it addresses.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Username  string
	Password  string
	Timeout   time.Duration
	UserAgent string
	// RateLimitPerSecond caps outbound requests to this collaborator;
	// zero means unlimited.
	RateLimitPerSecond float64
	RateLimitBurst     int
}
