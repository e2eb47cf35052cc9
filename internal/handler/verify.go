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

// TrialVerifier decides whether a signup may start a trial.
type TrialVerifier interface {
	VerifyTrial(ctx context.Context, in service.VerifyInput) (*service.VerifyResult, error)
}

// VerifyHandler handles trial verification requests.
type VerifyHandler struct {
	svc      TrialVerifier
	validate *validator.Validate
	logger   *slog.Logger
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(svc TrialVerifier, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// VerifyTrial handles POST /v1/verify-trial.
func (h *VerifyHandler) VerifyTrial(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyTrialRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "missing or malformed fields")
		return
	}

	result, err := h.svc.VerifyTrial(r.Context(), service.VerifyInput{
		SiteKey:         req.SiteKey,
		FingerprintHash: req.FingerprintHash,
		Email:           req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSiteKey):
			writeError(w, http.StatusForbidden, "invalid_site_key", "unknown site key")
		case errors.Is(err, service.ErrNoRecentEvent):
			writeError(w, http.StatusNotFound, "no_recent_event", "no recent event for this visitor")
		default:
			h.logger.Error("trial verification failed",
				slog.String("request_id", middleware.GetRequestID(r.Context())),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
