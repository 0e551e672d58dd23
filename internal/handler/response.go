// Package handler contains the HTTP handlers of the sandbox server.
//
// Handlers only translate between HTTP and the layers below: they decode the
// request, call the executor or a service, and map the outcome to a status
// code and JSON body. Business rules live in internal/service and
// internal/executor.
package handler

// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "snippet not found with id abc123"}
//
// so clients can parse failures without looking at the status code first.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/code-sandbox/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending request field, if any
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must go out before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and sends it. Errors that
// are not *apperror.AppError, and infrastructure failures, become a generic
// 500 so internal details never reach the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || errors.Is(err, apperror.ErrInfrastructure) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest // 400
		errorType = "validation_error"
	case errors.Is(err, apperror.ErrUnsupportedLanguage):
		status = http.StatusBadRequest // 400
		errorType = "unsupported_language"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound // 404
		errorType = "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized // 401
		errorType = "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden // 403
		errorType = "forbidden"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a single JSON value from the request body into dst. On
// failure it writes the error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "request_too_large",
			Message: "request body is too large",
		})
	case errors.Is(err, io.EOF):
		writeError(w, apperror.ValidationFailed("body", "request body is required"))
	default:
		writeError(w, apperror.ValidationFailed("body", "request body is not valid JSON"))
	}
	return false
}
