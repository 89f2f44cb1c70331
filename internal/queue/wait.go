package queue

import (
	"context"
	"errors"
	"time"
)

// ErrStillPending is returned by Waiter.Wait when the deadline passed before
// the job reached a terminal state. The latest snapshot is returned with it.
var ErrStillPending = errors.New("job still pending")

// StatusReader is the read side of the queue used by Waiter.
type StatusReader interface {
	GetJob(ctx context.Context, name Name, id string) (*Snapshot, error)
}

// Waiter bridges a synchronous request onto an asynchronous job by polling
// its status at a fixed interval for a bounded time.
type Waiter struct {
	reader   StatusReader
	interval time.Duration
	maxWait  time.Duration
}

// NewWaiter creates a Waiter. Non-positive durations fall back to 500ms and 30s.
func NewWaiter(reader StatusReader, interval, maxWait time.Duration) *Waiter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &Waiter{reader: reader, interval: interval, maxWait: maxWait}
}

// Wait polls until the job is completed or failed and returns its snapshot.
// When maxWait elapses first it returns the latest snapshot and
// ErrStillPending. Cancelling ctx stops the wait early with ctx's error.
func (w *Waiter) Wait(ctx context.Context, name Name, id string) (*Snapshot, error) {
	deadline := time.NewTimer(w.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		snap, err := w.reader.GetJob(ctx, name, id)
		if err != nil {
			return nil, err
		}
		if snap.State.Terminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-deadline.C:
			return snap, ErrStillPending
		case <-ticker.C:
		}
	}
}
