package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
)

// ErrSessionOwnership is returned when a chat session belongs to another customer.
var ErrSessionOwnership = errors.New("chat session belongs to another customer")

// chatNamespace seeds the deterministic ids of conversations and messages.
var chatNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kbase:chat"))

// Responder produces the assistant's reply. *gemini.ChatModel satisfies it.
type Responder interface {
	Reply(ctx context.Context, message string, passages []domain.KnowledgeChunk, extra string) (string, error)
}

// ChatHandler answers chat messages from the customer's knowledge base.
type ChatHandler struct {
	conversations store.ConversationStore
	messages      store.MessageStore
	chunks        store.ChunkStore
	responder     Responder
	cache         *cache.Cache
	contextChunks int
	now           func() time.Time
	logger        *slog.Logger
}

// NewChatHandler creates a ChatHandler that retrieves up to contextChunks
// passages per question.
func NewChatHandler(
	conversations store.ConversationStore,
	messages store.MessageStore,
	chunks store.ChunkStore,
	responder Responder,
	c *cache.Cache,
	contextChunks int,
	logger *slog.Logger,
) *ChatHandler {
	if contextChunks <= 0 {
		contextChunks = 5
	}
	return &ChatHandler{
		conversations: conversations,
		messages:      messages,
		chunks:        chunks,
		responder:     responder,
		cache:         c,
		contextChunks: contextChunks,
		now:           time.Now,
		logger:        logger.With("component", "chat_handler"),
	}
}

// Handle implements Handler.
func (h *ChatHandler) Handle(ctx context.Context, job *queue.Job, progress ProgressFunc) (queue.Result, error) {
	p, err := decodePayload[queue.ChatPayload](job)
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs("customer id", p.CustomerID)
	if err != nil {
		return nil, err
	}
	customerID := ids[0]

	result, err := h.answer(ctx, job, customerID, p, progress)
	if err != nil {
		sctx, cancel := detached(ctx)
		defer cancel()
		h.cache.Invalidate(sctx, cache.ConversationKey(p.SessionID))
		return nil, err
	}
	return result, nil
}

func (h *ChatHandler) answer(
	ctx context.Context,
	job *queue.Job,
	customerID uuid.UUID,
	p queue.ChatPayload,
	progress ProgressFunc,
) (queue.ChatResult, error) {
	log := logger.FromContextOrDefault(ctx, h.logger).With("session_id", p.SessionID)
	progress(ctx, 10)

	conv, err := h.conversation(ctx, p.SessionID)
	if err != nil {
		return queue.ChatResult{}, err
	}
	if conv != nil && conv.CustomerID != customerID {
		return queue.ChatResult{}, fmt.Errorf("%w: %s", ErrSessionOwnership, p.SessionID)
	}
	progress(ctx, 30)

	passages, err := h.chunks.Search(ctx, customerID, p.Message, h.contextChunks)
	if err != nil {
		return queue.ChatResult{}, fmt.Errorf("failed to retrieve context: %w", err)
	}
	reply, err := h.responder.Reply(ctx, p.Message, passages, strings.Join(p.Context, "\n"))
	if err != nil {
		return queue.ChatResult{}, fmt.Errorf("failed to generate reply: %w", err)
	}
	progress(ctx, 70)

	now := h.now().UTC()
	if conv == nil {
		conv = &domain.Conversation{
			ID:         uuid.NewSHA1(chatNamespace, []byte(customerID.String()+"/"+p.SessionID)),
			CustomerID: customerID,
			SessionID:  p.SessionID,
			CreatedAt:  now,
		}
	}
	conv.UpdatedAt = now
	conv, err = h.conversations.Upsert(ctx, conv)
	if err != nil {
		return queue.ChatResult{}, fmt.Errorf("failed to save conversation: %w", err)
	}
	cache.SetJSON(ctx, h.cache, cache.ConversationKey(p.SessionID), conv, h.cache.TTLs().Conversation)
	progress(ctx, 80)

	turns := []*domain.Message{
		{
			ID:             messageID(job.ID, domain.SenderUser),
			ConversationID: conv.ID,
			Sender:         domain.SenderUser,
			Content:        p.Message,
			CreatedAt:      job.CreatedAt.UTC(),
		},
		{
			ID:             messageID(job.ID, domain.SenderBot),
			ConversationID: conv.ID,
			Sender:         domain.SenderBot,
			Content:        reply,
			CreatedAt:      now,
		},
	}
	for _, m := range turns {
		if err := h.messages.Upsert(ctx, m); err != nil {
			return queue.ChatResult{}, fmt.Errorf("failed to save %s message: %w", m.Sender, err)
		}
	}
	progress(ctx, 95)

	h.cache.Invalidate(ctx, cache.StatsKey(p.CustomerID))
	progress(ctx, 100)

	log.Info("chat answered", "passages", len(passages))
	return queue.ChatResult{
		Response:  reply,
		Sources:   sources(passages),
		SessionID: p.SessionID,
	}, nil
}

// conversation looks the session up in the cache, then the database. A
// session without a conversation yields nil.
func (h *ChatHandler) conversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	key := cache.ConversationKey(sessionID)
	if conv, ok := cache.GetJSON[domain.Conversation](ctx, h.cache, key); ok {
		return &conv, nil
	}

	conv, err := h.conversations.FindBySession(ctx, sessionID)
	if errors.Is(err, store.ErrConversationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	cache.SetJSON(ctx, h.cache, key, conv, h.cache.TTLs().Conversation)
	return conv, nil
}

// messageID derives the id of one side of a chat turn from the job, so a
// retried job rewrites the same two messages.
func messageID(jobID string, sender domain.Sender) uuid.UUID {
	return uuid.NewSHA1(chatNamespace, []byte(jobID+"/"+string(sender)))
}

// sources lists the distinct labels of the passages in rank order.
func sources(passages []domain.KnowledgeChunk) []string {
	seen := make(map[string]bool, len(passages))
	var out []string
	for _, c := range passages {
		if c.Label == "" || seen[c.Label] {
			continue
		}
		seen[c.Label] = true
		out = append(out, c.Label)
	}
	return out
}
