// Package auth issues and validates the bearer tokens that identify the
// calling customer.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService mints and checks customer access tokens.
type JWTService interface {
	GenerateToken(ctx context.Context, customerID uuid.UUID) (string, error)

	// GenerateTokenWithLifetime overrides the configured lifetime. kbasectl
	// uses it to mint long-lived integration tokens.
	GenerateTokenWithLifetime(ctx context.Context, customerID uuid.UUID, lifetime time.Duration) (string, error)

	// ValidateToken returns the token's claims, or one of ErrExpiredToken,
	// ErrTokenNotYetValid, ErrWrongTokenType, ErrMissingToken or ErrInvalidToken.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the validated content of an access token. Subject mirrors
// CustomerID as a string.
type Claims struct {
	CustomerID uuid.UUID
	TokenType  string
	Subject    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ID         string
}
