package domain

import "errors"

var (
	// ErrValidation is wrapped by every entity validation failure, so callers
	// can treat them as bad input without listing each one.
	ErrValidation = errors.New("validation failed")

	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidStatus = errors.New("invalid processing status")

	// ErrInvalidURL rejects anything but absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid URL")

	ErrInactiveCustomer = errors.New("customer is inactive")
)
