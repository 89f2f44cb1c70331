package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
)

// JobQueue is the part of the job queue the HTTP surface uses.
// *queue.Service satisfies it.
type JobQueue interface {
	Enqueue(ctx context.Context, name queue.Name, payload queue.Payload, priority int, opts queue.EnqueueOptions) (string, error)
	GetJob(ctx context.Context, name queue.Name, id string) (*queue.Snapshot, error)
	Stats(ctx context.Context, name queue.Name) (queue.Counts, error)
	Policy(name queue.Name) (queue.Policy, error)
}

var _ JobQueue = (*queue.Service)(nil)

// enqueue submits payload at its queue's default priority.
func enqueue(ctx context.Context, q JobQueue, payload queue.Payload) (string, error) {
	pol, err := q.Policy(payload.QueueName())
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, payload.QueueName(), payload, pol.DefaultPriority, queue.EnqueueOptions{})
}

// payloadCustomer returns the customer a job was submitted for.
func payloadCustomer(p queue.Payload) string {
	switch v := p.(type) {
	case queue.FilePayload:
		return v.CustomerID
	case queue.ScrapePayload:
		return v.CustomerID
	case queue.ChatPayload:
		return v.CustomerID
	}
	return ""
}

// JobHandler serves the job status API.
type JobHandler struct {
	queue  JobQueue
	logger *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(q JobQueue, logger *slog.Logger) *JobHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}
	return &JobHandler{
		queue:  q,
		logger: logger.With(slog.String("component", "job_handler")),
	}
}

// GetJob handles GET /api/jobs/{queue}/{id}. Jobs of other customers are
// reported as not found.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	name, ok := queueFromPath(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	snap, err := h.queue.GetJob(r.Context(), name, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job status")
		return
	}

	payload, err := snap.DecodePayload()
	if err != nil || payloadCustomer(payload) != customerID.String() {
		log.Warn("job requested by another customer",
			slog.String("queue", string(name)),
			slog.String("job_id", id))
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, snap)
}

// GetQueueStats handles GET /api/queues/{queue}/stats.
func (h *JobHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	name, ok := queueFromPath(w, r)
	if !ok {
		return
	}
	counts, err := h.queue.Stats(r.Context(), name)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get queue statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, QueueStatsResponse{
		Queue:  string(name),
		Counts: counts,
		Total:  counts.Total(),
	})
}
