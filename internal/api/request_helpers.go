package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
)

// requireCustomer extracts the authenticated customer placed in the context
// by the auth middleware. It writes a 401 and returns false when absent.
func requireCustomer(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	customerID, ok := shared.CustomerIDFromContext(r.Context())
	if !ok {
		logger.FromContextOrDefault(r.Context(), slog.Default()).
			Warn("customer ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Customer ID not found or invalid")
		return uuid.Nil, false
	}
	return customerID, true
}

// queueFromPath parses the {queue} path parameter. It writes a 400 and
// returns false for unknown queues.
func queueFromPath(w http.ResponseWriter, r *http.Request) (queue.Name, bool) {
	name, err := queue.ParseName(chi.URLParam(r, "queue"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return "", false
	}
	return name, true
}

// decodeAndValidate reads a JSON body into v and validates it. It writes a
// 400 (or 413) and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
