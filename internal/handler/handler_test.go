package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentra/sentra/internal/handler/dto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()

	var resp dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestHandler_Root(t *testing.T) {
	h := New(testLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.Root(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["service"] != "sentra" {
		t.Errorf("unexpected service name: %s", response["service"])
	}
}

func TestHandler_NotFound(t *testing.T) {
	h := New(testLogger())

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()

	h.NotFound(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "not_found" {
		t.Errorf("unexpected error code: %s", resp.Error.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := New(testLogger())

	req := httptest.NewRequest(http.MethodPatch, "/v1/collect", nil)
	rec := httptest.NewRecorder()

	h.MethodNotAllowed(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "method_not_allowed" {
		t.Errorf("unexpected error code: %s", resp.Error.Code)
	}
}
