package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentra/sentra/internal/model"
)

const (
	ipInfoKeyPrefix = "ipinfo:"
	abuseKeyPrefix  = "abuse:"

	// ReputationTTL is how long provider responses stay cached.
	ReputationTTL = 24 * time.Hour
)

// GetIPInfo retrieves a cached geolocation result for an IP.
// Returns ErrCacheMiss if not present.
func (c *Cache) GetIPInfo(ctx context.Context, ip string) (*model.IPInfo, error) {
	raw, err := c.client.Get(ctx, ipInfoKeyPrefix+ip).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get ipinfo: %w", err)
	}

	var info model.IPInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("decode cached ipinfo: %w", err)
	}
	return &info, nil
}

// SetIPInfo caches a geolocation result with the reputation TTL.
func (c *Cache) SetIPInfo(ctx context.Context, ip string, info *model.IPInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode ipinfo: %w", err)
	}
	if err := c.client.Set(ctx, ipInfoKeyPrefix+ip, data, ReputationTTL).Err(); err != nil {
		return fmt.Errorf("redis set ipinfo: %w", err)
	}
	return nil
}

// GetAbuse retrieves a cached abuse-reputation result for an IP.
// Returns ErrCacheMiss if not present.
func (c *Cache) GetAbuse(ctx context.Context, ip string) (*model.AbuseResult, error) {
	raw, err := c.client.Get(ctx, abuseKeyPrefix+ip).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get abuse: %w", err)
	}

	var result model.AbuseResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode cached abuse result: %w", err)
	}
	return &result, nil
}

// SetAbuse caches an abuse-reputation result with the reputation TTL.
func (c *Cache) SetAbuse(ctx context.Context, ip string, result model.AbuseResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode abuse result: %w", err)
	}
	if err := c.client.Set(ctx, abuseKeyPrefix+ip, data, ReputationTTL).Err(); err != nil {
		return fmt.Errorf("redis set abuse: %w", err)
	}
	return nil
}
