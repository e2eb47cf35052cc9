// Package handler contains HTTP handlers for the API endpoints.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sentra/sentra/internal/handler/dto"
)

// maxBodyBytes caps ingest payloads; fingerprint blobs stay well under this.
const maxBodyBytes = 1 << 20

// Handler holds shared endpoints that don't belong to a resource.
type Handler struct {
	logger *slog.Logger
}

// New creates a Handler.
func New(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Root responds with basic service information.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "sentra",
		"status":  "ok",
	})
}

// NotFound handles unmatched routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "resource not found")
}

// MethodNotAllowed handles unsupported methods on matched routes.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: dto.ErrorDetail{Code: code, Message: message},
	})
}

// decodeBody decodes a size-capped JSON request body into v. On failure
// it writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return false
	}
	return true
}
