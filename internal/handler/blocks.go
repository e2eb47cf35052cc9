package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra/sentra/internal/handler/dto"
	"github.com/sentra/sentra/internal/middleware"
	"github.com/sentra/sentra/internal/model"
	"github.com/sentra/sentra/internal/service"
)

// BlockManager manages a tenant's manual block list.
type BlockManager interface {
	List(ctx context.Context, siteKey string, trackUsage bool) ([]*model.ManualBlock, error)
	Create(ctx context.Context, in service.CreateBlockInput) (*model.ManualBlock, error)
	Delete(ctx context.Context, siteKey, secret, blockID string) error
}

// BlockHandler handles manual block list requests.
type BlockHandler struct {
	svc      BlockManager
	validate *validator.Validate
	logger   *slog.Logger
}

// NewBlockHandler creates a BlockHandler.
func NewBlockHandler(svc BlockManager, logger *slog.Logger) *BlockHandler {
	return &BlockHandler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// List handles GET /v1/blocks. The endpoint is public so edge workers
// can enforce blocks without the management secret; the X-Usage-Track
// header opts the call into quota accounting.
func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
	siteKey := r.URL.Query().Get("siteKey")
	if siteKey == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "siteKey query parameter is required")
		return
	}

	trackUsage := r.Header.Get("X-Usage-Track") != ""

	blocks, err := h.svc.List(r.Context(), siteKey, trackUsage)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToBlockListResponse(blocks))
}

// Create handles POST /v1/blocks.
func (h *BlockHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBlockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "missing or malformed fields")
		return
	}

	block, err := h.svc.Create(r.Context(), service.CreateBlockInput{
		SiteKey:   req.SiteKey,
		Secret:    bearerSecret(r),
		Type:      model.BlockType(req.Type),
		Value:     req.Value,
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToBlockResponse(block))
}

// Delete handles DELETE /v1/blocks/{id}.
func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	siteKey := r.URL.Query().Get("siteKey")
	if siteKey == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "siteKey query parameter is required")
		return
	}

	err := h.svc.Delete(r.Context(), siteKey, bearerSecret(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BlockHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSiteKey):
		writeError(w, http.StatusForbidden, "invalid_site_key", "unknown site key")
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid management secret")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "block belongs to another site")
	case errors.Is(err, service.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "not_found", "block not found")
	case errors.Is(err, service.ErrInvalidBlockType),
		errors.Is(err, service.ErrMissingValue),
		errors.Is(err, service.ErrExpiresInPast):
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
	default:
		h.logger.Error("block operation failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// bearerSecret extracts the management secret from the Authorization
// header. Missing or malformed headers yield an empty secret, which the
// service rejects as unauthorized.
func bearerSecret(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}
