package api

import (
	"errors"
	"net/http"

	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/queue"
	"github.com/hearthdocs/vault-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for an error.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Document not found"

	case errors.Is(err, store.ErrDuplicate):
		return "Document already exists"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, queue.ErrQueueFull):
		return "Too many requests, slow down"

	default:
		return "An unexpected error occurred"
	}
}
