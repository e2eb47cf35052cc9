package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sentra/sentra/internal/cache"
	"github.com/sentra/sentra/internal/metrics"
	"github.com/sentra/sentra/internal/model"
)

const (
	abuseBaseURL = "https://api.abuseipdb.com/api/v2/check"

	// abuseMaxAgeDays limits reports considered by the provider.
	abuseMaxAgeDays = 30

	// abuseConfidenceThreshold is the provider confidence score at or
	// above which an IP counts as blocklisted.
	abuseConfidenceThreshold = 50
)

// AbuseClient checks IPs against an abuse reputation feed.
type AbuseClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *cache.Cache
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewAbuseClient creates an AbuseClient. An empty API key disables the
// provider; checks then report not-blocklisted.
func NewAbuseClient(httpClient *http.Client, apiKey string, c *cache.Cache, recorder metrics.Recorder, logger *slog.Logger) *AbuseClient {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AbuseClient{
		httpClient: httpClient,
		baseURL:    abuseBaseURL,
		apiKey:     apiKey,
		cache:      c,
		metrics:    recorder,
		logger:     logger.With("component", "reputation.abuse"),
	}
}

type abuseResponse struct {
	Data struct {
		AbuseConfidenceScore int `json:"abuseConfidenceScore"`
	} `json:"data"`
}

// Check reports whether the IP is listed in the abuse feed, cache-aside
// with a 24h TTL. Any failure fails open to blocklisted=false.
func (c *AbuseClient) Check(ctx context.Context, ip string) model.AbuseResult {
	if c.apiKey == "" {
		return model.AbuseResult{Blocklisted: false}
	}

	if cached, err := c.cache.GetAbuse(ctx, ip); err == nil {
		c.metrics.IncReputationCacheHit("abuse")
		return *cached
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("abuse cache read failed", "error", err)
	}
	c.metrics.IncReputationCacheMiss("abuse")

	result, err := c.fetch(ctx, ip)
	if err != nil {
		c.metrics.IncReputationProviderError("abuse")
		c.logger.Warn("abuse check failed, failing open", "error", err)
		return model.AbuseResult{Blocklisted: false}
	}

	if err := c.cache.SetAbuse(ctx, ip, result); err != nil {
		c.logger.Warn("abuse cache write failed", "error", err)
	}

	return result
}

func (c *AbuseClient) fetch(ctx context.Context, ip string) (model.AbuseResult, error) {
	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", fmt.Sprintf("%d", abuseMaxAgeDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.AbuseResult{}, fmt.Errorf("build abuse request: %w", err)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.AbuseResult{}, fmt.Errorf("abuse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.AbuseResult{}, fmt.Errorf("abuse provider responded %d", resp.StatusCode)
	}

	var body abuseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.AbuseResult{}, fmt.Errorf("decode abuse response: %w", err)
	}

	return model.AbuseResult{
		Blocklisted: body.Data.AbuseConfidenceScore >= abuseConfidenceThreshold,
	}, nil
}
