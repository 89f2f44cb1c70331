package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/queue"
)

// JobEvent reports that a job left the active state.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Queue         queue.Name      `json:"queue"`
	JobID         string          `json:"job_id"`
	State         queue.State     `json:"state"`
	AttemptsMade  int             `json:"attempts_made"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`

	// OccurredAt is when the transition was recorded
	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent creates a JobEvent for the given job and resulting state.
func NewJobEvent(job *queue.Job, state queue.State, reason string, result queue.Result) (*JobEvent, error) {
	ev := &JobEvent{
		ID:            uuid.New(),
		Queue:         job.Queue,
		JobID:         job.ID,
		State:         state,
		AttemptsMade:  job.Attempts,
		FailureReason: reason,
		Payload:       job.Payload,
		OccurredAt:    time.Now().UTC(),
	}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		ev.Result = b
	}
	return ev, nil
}

// Terminal reports whether the job can no longer change.
func (e *JobEvent) Terminal() bool {
	return e.State.Terminal()
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows producers to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
