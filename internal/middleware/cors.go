package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins is a list of origins allowed to make cross-origin
	// requests. The collect endpoint is called from customer pages, so an
	// empty list denies all cross-origin traffic.
	AllowedOrigins []string

	// AllowedMethods specifies the allowed HTTP methods.
	AllowedMethods []string

	// AllowedHeaders specifies the allowed request headers.
	AllowedHeaders []string

	// ExposedHeaders specifies which headers the browser can access.
	ExposedHeaders []string

	// MaxAge is the value for Access-Control-Max-Age header (in seconds).
	MaxAge int
}

// DefaultCORSConfig returns production-safe CORS defaults. X-Usage-Track is
// allowed because the client script sends it on block-list polls.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-Request-ID",
			"X-Usage-Track",
			"Accept",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
		},
		MaxAge: 86400, // 24 hours
	}
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing.
// Preflight OPTIONS requests are answered here and never reach handlers.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methodsStr := strings.Join(cfg.AllowedMethods, ", ")
	headersStr := strings.Join(cfg.AllowedHeaders, ", ")
	exposedStr := strings.Join(cfg.ExposedHeaders, ", ")

	originMap := make(map[string]bool, len(cfg.AllowedOrigins))
	wildcard := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		originMap[strings.ToLower(origin)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// No Origin header = same-origin request, skip CORS
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !wildcard && !originMap[strings.ToLower(origin)] {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				// Browser blocks the response without CORS headers.
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			if exposedStr != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposedStr)
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", methodsStr)
				w.Header().Set("Access-Control-Allow-Headers", headersStr)
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
