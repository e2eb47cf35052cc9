package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sentra/sentra/internal/cache"
	"github.com/sentra/sentra/internal/metrics"
)

// RateLimitConfig holds configuration for the ingestion rate limiter.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Cache   *cache.Cache
	Metrics metrics.Recorder
	Enabled bool
}

// RateLimitIngest returns middleware that rate limits ingestion requests
// per client IP using the Redis token bucket. A rejected request consumes
// no token, so a saturated bucket refills on schedule regardless of how
// hard the client hammers.
func RateLimitIngest(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := GetClientIP(r)

			result, err := cfg.Cache.CheckIngestRateLimit(r.Context(), ip)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("ip", ip),
				)
				// Fail open - allow request
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cache.IngestBucketCapacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				cfg.Metrics.IncRateLimited()

				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				writeRateLimitError(w, int(result.RetryAfter.Seconds()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	msg := fmt.Sprintf(`{"error":{"code":"rate_limited","message":"Rate limit exceeded. Retry after %d seconds."}}`,
		retryAfterSeconds)
	_, _ = w.Write([]byte(msg))
}

// GetClientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers for proxied requests,
// then falls back to RemoteAddr with the port stripped.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For may contain a chain; the first hop is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
