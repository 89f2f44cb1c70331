package auth

import "errors"

// Token validation failures. The HTTP layer maps all of them to 401 and
// tells the client only whether the token expired.
var (
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("authentication token has expired")
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")
	ErrMissingToken     = errors.New("authentication token is missing")

	// ErrWrongTokenType rejects tokens whose "type" claim is not "access".
	ErrWrongTokenType = errors.New("wrong authentication token type")
)
