package store

import (
	"errors"
	"fmt"
)

// Errors returned by every store implementation.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a write would violate a unique constraint.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity wraps constraint violations; the wrapped error names
	// the constraint or column.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a commit fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrCustomerNotFound is returned for an unknown customer id.
	ErrCustomerNotFound = fmt.Errorf("%w: customer", ErrNotFound)

	// ErrKnowledgeFileNotFound is returned for an unknown knowledge file id.
	ErrKnowledgeFileNotFound = fmt.Errorf("%w: knowledge file", ErrNotFound)

	// ErrScrapedContentNotFound is returned for an unknown scraped page id.
	ErrScrapedContentNotFound = fmt.Errorf("%w: scraped content", ErrNotFound)

	// ErrConversationNotFound is returned when a session has no conversation.
	ErrConversationNotFound = fmt.Errorf("%w: conversation", ErrNotFound)
)

// StoreError annotates a failed store call with the entity and operation,
// e.g. "get operation on customer failed: query failed: <cause>".
type StoreError struct {
	Entity    string // entity type, e.g. "customer"
	Operation string // failed operation, e.g. "get"
	Message   string // what went wrong
	Err       error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError builds a StoreError wrapping err.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
