package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/files"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/service/auth"
	"github.com/phrazzld/kbase-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrInactiveCustomer):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, queue.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, files.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType

	// Bad request errors
	case errors.Is(err, queue.ErrInvalidQueue),
		errors.Is(err, queue.ErrPayloadMismatch),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrEmptyFilename):
		return http.StatusBadRequest

	case errors.Is(err, queue.ErrStoreUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, domain.ErrInactiveCustomer):
		return "Customer is inactive"

	case errors.Is(err, queue.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrCustomerNotFound):
		return "Customer not found"
	case errors.Is(err, store.ErrKnowledgeFileNotFound):
		return "Knowledge file not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"

	case errors.Is(err, files.ErrTooLarge):
		return "File too large"
	case errors.Is(err, files.ErrUnsupportedType):
		return "Unsupported file type"

	case errors.Is(err, queue.ErrInvalidQueue):
		return "Unknown queue"
	case errors.Is(err, domain.ErrInvalidURL):
		return "Invalid URL"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, domain.ErrEmptyFilename):
		return "Filename is required"
	case errors.Is(err, queue.ErrPayloadMismatch),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation):
		return "Invalid request data"

	case errors.Is(err, queue.ErrStoreUnavailable):
		return "Service temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError maps err to a status code and safe message, logs the
// redacted error and writes the response. A non-empty fallback replaces
// the generic message of unmapped (500) errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string, opts ...shared.ResponseOption) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'ChatRequest.Message' Error:Field validation for 'Message' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url", "http_url":
		return "invalid URL"
	case "uuid":
		return "invalid ID format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "dive":
		return "invalid entry"
	default:
		return "validation failed"
	}
}
