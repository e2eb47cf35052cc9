package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of both probe endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	postgres HealthChecker
	redis    HealthChecker
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(postgres, redis HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{postgres: postgres, redis: redis, logger: logger}
}

// Healthz is the liveness probe. It always returns 200 while the
// process is serving.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz is the readiness probe. It checks Postgres and Redis and
// returns 503 when either is unreachable.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"postgres": "ok",
		"redis":    "ok",
	}
	healthy := true

	if err := h.postgres.Ping(ctx); err != nil {
		h.logger.Error("readiness check failed", slog.String("dependency", "postgres"), slog.String("error", err.Error()))
		checks["postgres"] = "unreachable"
		healthy = false
	}
	if err := h.redis.Ping(ctx); err != nil {
		h.logger.Error("readiness check failed", slog.String("dependency", "redis"), slog.String("error", err.Error()))
		checks["redis"] = "unreachable"
		healthy = false
	}

	status, overall := http.StatusOK, "ok"
	if !healthy {
		status, overall = http.StatusServiceUnavailable, "unhealthy"
	}
	writeJSON(w, status, HealthResponse{Status: overall, Checks: checks})
}
