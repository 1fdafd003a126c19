// Package api provides HTTP handlers and standardized error responses for
// the wavecrate catalog API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wavecrate/wavecrate/internal/middleware"
)

// Common error codes, attached to the request context so the logging
// middleware can record them on 4xx/5xx responses.
const (
	// ErrCodeValidation indicates field-level validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeMissingIdempotencyKey indicates a mutation without the
	// Idempotency-Key header.
	ErrCodeMissingIdempotencyKey = "missing_idempotency_key"

	// ErrCodeNoFieldsToUpdate indicates an update with no effective fields.
	ErrCodeNoFieldsToUpdate = "no_fields_to_update"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse is the standard error body: {"error": "...", "details": {...}}.
// Details is present only for validation failures.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteError writes a standardized JSON error response and records the
// error code on the context for the logging middleware.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	writeErrorResponse(w, ctx, status, code, ErrorResponse{Error: message})
}

// WriteValidationError writes a 422 response carrying the per-field detail
// map for form re-rendering.
func WriteValidationError(w http.ResponseWriter, ctx context.Context, details map[string]string) {
	writeErrorResponse(w, ctx, http.StatusUnprocessableEntity, ErrCodeValidation, ErrorResponse{
		Error:   "Validation failed",
		Details: details,
	})
}

func writeErrorResponse(w http.ResponseWriter, ctx context.Context, status int, code string, body ErrorResponse) {
	ctx = middleware.SetErrorCode(ctx, code)
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}
