package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/queue"
)

// statusTimeout bounds the store write that marks a source failed after
// the job context may already be gone.
const statusTimeout = 5 * time.Second

// decodePayload decodes a job's payload into the concrete type its handler expects.
func decodePayload[T queue.Payload](job *queue.Job) (T, error) {
	var zero T
	p, err := job.DecodePayload()
	if err != nil {
		return zero, err
	}
	v, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T on %s", queue.ErrPayloadMismatch, p, job.Queue)
	}
	return v, nil
}

func parseIDs(named ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(named)/2)
	for i := 0; i+1 < len(named); i += 2 {
		id, err := uuid.Parse(named[i+1])
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", named[i], named[i+1], err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// detached returns a short-lived context that survives cancellation of ctx.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
}
