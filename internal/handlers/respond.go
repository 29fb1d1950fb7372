package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"druginfo-rag/internal/contextutil"
	"druginfo-rag/internal/service"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a service error kind to an HTTP status code.
func statusFor(err error) (int, string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, service.ErrInvalidFilter), errors.Is(err, service.ErrMalformedRecord), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Store unavailable"
	case errors.Is(err, service.ErrEmbeddingService), errors.Is(err, service.ErrExternalService):
		return http.StatusBadGateway, "External service error"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// handleServiceError logs err and writes the mapped status.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := contextutil.LoggerFromContext(ctx)
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "error", err, "status", status)
	} else {
		logger.WarnContext(ctx, "request rejected", "error", err, "status", status)
	}
	writeError(w, status, msg)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// decodeBody decodes a JSON request body, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		contextutil.LoggerFromContext(r.Context()).WarnContext(r.Context(), "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
