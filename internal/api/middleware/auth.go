package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/service/auth"
)

var tokenErrorsAs401 = []error{auth.ErrInvalidToken, auth.ErrWrongTokenType, auth.ErrTokenNotYetValid, auth.ErrMissingToken}

// AuthMiddleware resolves the calling customer from a bearer token.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate rejects requests without a valid access token with 401 and
// otherwise puts the token's customer into the request context and logger.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, problem := bearerToken(r)
		if problem != "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, problem)
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			respondTokenError(w, r, err)
			return
		}

		ctx := shared.WithCustomerID(r.Context(), claims.CustomerID)
		log := logger.FromContextOrDefault(ctx, slog.Default()).With("customer_id", claims.CustomerID)
		next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
	})
}

// bearerToken accepts "Bearer <token>" with a case-insensitive scheme. A
// non-empty problem is the message to send with the 401.
func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "Invalid authorization format"
	}
	return token, ""
}

func respondTokenError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrExpiredToken) {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
		return
	}
	for _, target := range tokenErrorsAs401 {
		if errors.Is(err, target) {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			return
		}
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
}

// GetCustomerID returns the customer set by Authenticate.
func GetCustomerID(r *http.Request) (uuid.UUID, bool) {
	return shared.CustomerIDFromContext(r.Context())
}
