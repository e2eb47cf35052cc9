package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitPrefix is the Redis key prefix for per-IP ingestion buckets.
	rateLimitPrefix = "rl:ip:"

	// IngestBucketCapacity is the max tokens per client IP.
	IngestBucketCapacity = 60

	// IngestRefillPerSecond is the bucket refill rate.
	IngestRefillPerSecond = 1

	// rateLimitTTL expires bucket state after an hour of inactivity.
	rateLimitTTL = time.Hour
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript implements the token bucket atomically: refill and
// consumption happen in a single round trip, so concurrent requests for
// the same key cannot double-spend. A rejected request consumes nothing.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local rate = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last')
	local tokens = tonumber(data[1]) or capacity
	local last = tonumber(data[2]) or now

	tokens = math.min(capacity, tokens + (now - last) * rate)

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckIngestRateLimit checks and updates the ingestion rate limit for a
// client IP. The IP is hashed before use as a key to avoid storing raw
// addresses.
func (c *Cache) CheckIngestRateLimit(ctx context.Context, ip string) (*RateLimitResult, error) {
	key := rateLimitPrefix + hashIP(ip)
	now := time.Now().Unix()

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		now, IngestBucketCapacity, IngestRefillPerSecond, int(rateLimitTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("token bucket script: %w", err)
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Second,
		Remaining:  result[2],
	}, nil
}

// hashIP creates a truncated SHA256 hash of an IP address.
// This provides privacy while maintaining uniqueness.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
