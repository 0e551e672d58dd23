// Package apperror defines the error taxonomy shared by the sandbox core and
// the surfaces built on top of it (HTTP, CLI, MCP).
//
// Callers classify errors with errors.Is against the sentinels below; the
// *AppError wrapper carries the human-readable message that is safe to show
// to a client.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInfrastructure      = errors.New("infrastructure failure")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
)

type AppError struct {
	Err     error  // sentinel from the list above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause so errors.Is works for
// either (e.g. ErrInfrastructure and fs.ErrPermission).
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// UnsupportedLanguage reports a language id that is not in the registry.
func UnsupportedLanguage(language string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedLanguage,
		Message: fmt.Sprintf("unsupported language: %s", language),
		Field:   "language",
	}
}

// Infrastructure wraps a host-side failure (filesystem, toolchain launch,
// container engine). The message is generic; the cause is kept for logs.
func Infrastructure(operation string, cause error) *AppError {
	return &AppError{
		Err:     ErrInfrastructure,
		Message: fmt.Sprintf("infrastructure failure: %s", operation),
		Cause:   cause,
	}
}

// Unauthorized returns an AppError for a missing or invalid API token.
// HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Forbidden is returned when an authenticated client touches a resource that
// belongs to another client.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}
