package queue

import "errors"

var (
	// ErrInvalidQueue is returned when a queue name is not one of the known queues.
	ErrInvalidQueue = errors.New("invalid queue")

	// ErrOwnershipViolation is returned when a progress or terminal update
	// comes from a caller that no longer holds the job's lease.
	ErrOwnershipViolation = errors.New("job not owned by caller")

	// ErrStoreUnavailable is returned when the shared store could not be
	// reached after the configured retries.
	ErrStoreUnavailable = errors.New("queue store unavailable")

	// ErrJobNotFound is returned by the status API for unknown or pruned jobs.
	ErrJobNotFound = errors.New("job not found")

	// ErrThrottled is returned by ClaimNext when admission control defers a
	// ready job. It signals backpressure, not failure.
	ErrThrottled = errors.New("queue admission throttled")

	// ErrPayloadMismatch is returned when a payload or result belongs to another queue.
	ErrPayloadMismatch = errors.New("payload does not match queue")
)
