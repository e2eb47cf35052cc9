package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sentra/sentra/internal/cache"
	"github.com/sentra/sentra/internal/metrics"
	"github.com/sentra/sentra/internal/model"
)

// ErrNoProvider is returned when a lookup runs without a configured token.
var ErrNoProvider = errors.New("no provider configured")

const ipInfoBaseURL = "https://ipinfo.io"

// IPInfoClient looks up geolocation/ASN data for client IPs.
type IPInfoClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	cache      *cache.Cache
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewIPInfoClient creates an IPInfoClient. An empty token disables the
// provider; lookups then return ErrNoProvider and the pipeline treats the
// IP as having no geolocation data.
func NewIPInfoClient(httpClient *http.Client, token string, c *cache.Cache, recorder metrics.Recorder, logger *slog.Logger) *IPInfoClient {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &IPInfoClient{
		httpClient: httpClient,
		baseURL:    ipInfoBaseURL,
		token:      token,
		cache:      c,
		metrics:    recorder,
		logger:     logger.With("component", "reputation.ipinfo"),
	}
}

// ipInfoResponse is the provider's wire format.
type ipInfoResponse struct {
	Org      string `json:"org"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Timezone string `json:"timezone"`
	Loc      string `json:"loc"` // "lat,lon"
	Privacy  struct {
		VPN     bool `json:"vpn"`
		Hosting bool `json:"hosting"`
		Proxy   bool `json:"proxy"`
		Tor     bool `json:"tor"`
		Relay   bool `json:"relay"`
	} `json:"privacy"`
	ASN struct {
		ASN string `json:"asn"`
	} `json:"asn"`
}

// Lookup returns geolocation data for an IP, cache-aside with a 24h TTL.
// Callers must treat any error as "no data" and degrade per policy.
func (c *IPInfoClient) Lookup(ctx context.Context, ip string) (*model.IPInfo, error) {
	if c.token == "" {
		return nil, ErrNoProvider
	}

	if cached, err := c.cache.GetIPInfo(ctx, ip); err == nil {
		c.metrics.IncReputationCacheHit("ipinfo")
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		// Cache trouble is not fatal; fall through to the provider.
		c.logger.Warn("ipinfo cache read failed", "error", err)
	}
	c.metrics.IncReputationCacheMiss("ipinfo")

	info, err := c.fetch(ctx, ip)
	if err != nil {
		c.metrics.IncReputationProviderError("ipinfo")
		return nil, err
	}

	if err := c.cache.SetIPInfo(ctx, ip, info); err != nil {
		c.logger.Warn("ipinfo cache write failed", "error", err)
	}

	return info, nil
}

func (c *IPInfoClient) fetch(ctx context.Context, ip string) (*model.IPInfo, error) {
	u := fmt.Sprintf("%s/%s/json?token=%s", c.baseURL, url.PathEscape(ip), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build ipinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipinfo responded %d", resp.StatusCode)
	}

	var body ipInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ipinfo response: %w", err)
	}

	info := &model.IPInfo{
		Org:      body.Org,
		City:     body.City,
		Region:   body.Region,
		Country:  body.Country,
		Timezone: body.Timezone,
		ASN:      body.ASN.ASN,
	}
	info.Privacy = model.IPPrivacy{
		VPN:     body.Privacy.VPN,
		Hosting: body.Privacy.Hosting,
		Proxy:   body.Privacy.Proxy,
		Tor:     body.Privacy.Tor,
		Relay:   body.Privacy.Relay,
	}
	if lat, lon, ok := parseLoc(body.Loc); ok {
		info.Lat, info.Lon, info.HasLoc = lat, lon, true
	}

	return info, nil
}

// parseLoc splits the provider's "lat,lon" field.
func parseLoc(loc string) (float64, float64, bool) {
	latStr, lonStr, found := strings.Cut(loc, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
