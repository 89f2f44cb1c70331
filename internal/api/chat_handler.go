package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
)

// ErrChatJobFailed is logged when a chat job ended in the failed state.
var ErrChatJobFailed = errors.New("chat job failed")

// JobWaiter blocks until a job is terminal or a bounded wait elapses.
// *queue.Waiter satisfies it.
type JobWaiter interface {
	Wait(ctx context.Context, name queue.Name, id string) (*queue.Snapshot, error)
}

// ChatHandler turns chat requests into chat jobs and waits a bounded time
// for the reply.
type ChatHandler struct {
	queue     JobQueue
	waiter    JobWaiter
	customers store.CustomerStore
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(
	q JobQueue,
	waiter JobWaiter,
	customers store.CustomerStore,
	c *cache.Cache,
	logger *slog.Logger,
) *ChatHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ChatHandler")
	}
	return &ChatHandler{
		queue:     q,
		waiter:    waiter,
		customers: customers,
		cache:     c,
		logger:    logger.With(slog.String("component", "chat_handler")),
	}
}

// Chat handles POST /api/chat for the authenticated customer.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.submit(w, r, queue.ChatPayload{
		CustomerID: customerID.String(),
		SessionID:  sessionOrNew(req.SessionID),
		Message:    req.Message,
		Context:    req.Context,
	})
}

// Webhook handles POST /api/chat/webhook. The route is unauthenticated, so
// the customer named in the body must exist and be active.
func (h *ChatHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: customer_id", domain.ErrInvalidID), "")
		return
	}

	customer, err := cache.Fetch(r.Context(), h.cache, cache.CustomerKey(customerID.String()), h.cache.TTLs().Customer,
		func(ctx context.Context) (domain.Customer, error) {
			c, err := h.customers.GetByID(ctx, customerID)
			if err != nil {
				return domain.Customer{}, err
			}
			return *c, nil
		})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to verify customer", shared.WithElevatedLogLevel())
		return
	}
	if !customer.IsActive {
		HandleAPIError(w, r, domain.ErrInactiveCustomer, "", shared.WithElevatedLogLevel())
		return
	}

	ctx := logger.WithLogger(r.Context(),
		logger.FromContextOrDefault(r.Context(), h.logger).With(slog.String("customer_id", customerID.String())))
	h.submit(w, r.WithContext(ctx), queue.ChatPayload{
		CustomerID: customerID.String(),
		SessionID:  sessionOrNew(req.UserID),
		Message:    req.Message,
	})
}

// submit enqueues the chat job and answers with its reply, a 502 when the
// job failed, or a 202 carrying the job id when the wait ran out.
func (h *ChatHandler) submit(w http.ResponseWriter, r *http.Request, payload queue.ChatPayload) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	jobID, err := enqueue(r.Context(), h.queue, payload)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to queue chat message")
		return
	}
	log = log.With(slog.String("job_id", jobID), slog.String("session_id", payload.SessionID))
	log.Debug("chat job queued")

	pending := ChatPendingResponse{
		JobID:     jobID,
		SessionID: payload.SessionID,
		Status:    "processing",
	}

	snap, err := h.waiter.Wait(r.Context(), queue.OpenAIChat, jobID)
	switch {
	case errors.Is(err, queue.ErrStillPending),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		log.Info("chat reply not ready, answering with job id")
		shared.RespondWithJSON(w, r, http.StatusAccepted, pending)
		return
	case err != nil:
		HandleAPIError(w, r, err, "Failed to get chat reply", shared.WithJobID(jobID))
		return
	}

	if snap.State == queue.StateFailed {
		cause := fmt.Errorf("%w: %s", ErrChatJobFailed, snap.FailureReason)
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "Failed to generate a reply", cause, shared.WithJobID(jobID))
		return
	}

	result, err := snap.DecodeResult()
	reply, ok := result.(queue.ChatResult)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("%w: completed without a chat result", queue.ErrPayloadMismatch)
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "Failed to generate a reply", err, shared.WithJobID(jobID))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, chatResultToResponse(jobID, reply))
}

func sessionOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
