// Package reputation provides IP geolocation and abuse-reputation lookups.
// Both are cache-aside over external providers: results are served from
// Redis when fresh, fetched and cached for 24 hours otherwise. Provider
// failures degrade to conservative defaults and never abort ingestion.
package reputation

import (
	"net"
	"net/http"
	"time"
)

const (
	// DefaultLookupTimeout bounds one provider call. Reputation is an
	// enrichment, not a gate; slow providers fall back to degraded
	// defaults instead of stalling the pipeline.
	DefaultLookupTimeout = 3 * time.Second

	// DialTimeout is the connection timeout.
	DialTimeout = 2 * time.Second
)

// NewHTTPClient creates an HTTP client configured for provider lookups.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: DialTimeout,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
