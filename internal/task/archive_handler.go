package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/events"
	"github.com/phrazzld/kbase-api/internal/store"
)

// JobArchiveHandler copies terminal job outcomes into the durable archive.
type JobArchiveHandler struct {
	archive store.JobArchiveStore
	logger  *slog.Logger
}

// NewJobArchiveHandler creates a JobArchiveHandler.
func NewJobArchiveHandler(archive store.JobArchiveStore, logger *slog.Logger) *JobArchiveHandler {
	return &JobArchiveHandler{
		archive: archive,
		logger:  logger.With("component", "job_archive_handler"),
	}
}

// HandleEvent implements events.EventHandler. Non-terminal events are ignored.
func (h *JobArchiveHandler) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	if !event.Terminal() {
		return nil
	}
	rec := &domain.JobRecord{
		Queue:         event.Queue.String(),
		JobID:         event.JobID,
		State:         string(event.State),
		AttemptsMade:  event.AttemptsMade,
		FailureReason: event.FailureReason,
		Payload:       event.Payload,
		Result:        event.Result,
		FinishedAt:    event.OccurredAt,
	}
	if err := h.archive.Record(ctx, rec); err != nil {
		return err
	}
	h.logger.DebugContext(ctx, "job archived", "queue", event.Queue, "job_id", event.JobID, "state", event.State)
	return nil
}

var _ events.EventHandler = (*JobArchiveHandler)(nil)
