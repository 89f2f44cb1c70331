package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key does not exist or has expired.
	ErrMiss = errors.New("kv: key not found")

	// ErrUnavailable wraps every failure to reach or talk to the store.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the shared key-value store contract.
type Store interface {
	// Get returns the value at key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value at key. A non-positive ttl stores the key without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes every key matching the glob and reports how many were deleted.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// IncrWindow atomically increments the counter at key and, when the
	// increment created the counter, starts its expiry window.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
