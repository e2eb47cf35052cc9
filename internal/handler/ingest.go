package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sentra/sentra/internal/handler/dto"
	"github.com/sentra/sentra/internal/middleware"
	"github.com/sentra/sentra/internal/service"
)

// Collector runs the ingestion pipeline for one event.
type Collector interface {
	Collect(ctx context.Context, in service.CollectInput) (*service.CollectResult, error)
}

// IngestHandler handles signal ingestion requests.
type IngestHandler struct {
	svc      Collector
	validate *validator.Validate
	logger   *slog.Logger
}

// NewIngestHandler creates an IngestHandler.
func NewIngestHandler(svc Collector, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Collect handles POST /v1/collect.
func (h *IngestHandler) Collect(w http.ResponseWriter, r *http.Request) {
	var req dto.CollectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "missing or malformed fields")
		return
	}

	ip := middleware.GetClientIP(r)
	if ip == "" {
		writeError(w, http.StatusBadRequest, "ip_not_found", "client IP could not be determined")
		return
	}

	result, err := h.svc.Collect(r.Context(), req.ToCollectInput(ip))
	if err != nil {
		h.handleCollectError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *IngestHandler) handleCollectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSiteKey):
		writeError(w, http.StatusForbidden, "invalid_site_key", "unknown site key")
	case errors.Is(err, service.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", "monthly event quota exhausted")
	case errors.Is(err, service.ErrEventWrite):
		h.logger.Error("event write failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "db_insert_failed", "failed to record event")
	default:
		h.logger.Error("collect pipeline failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}
