package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/domain"
)

// CustomerStore reads tenants.
type CustomerStore interface {
	// GetByID returns ErrCustomerNotFound if the customer does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

// KnowledgeFileStore persists uploaded knowledge files.
type KnowledgeFileStore interface {
	Create(ctx context.Context, f *domain.KnowledgeFile) error

	// SetJobID links a file to the job ingesting it.
	SetJobID(ctx context.Context, id uuid.UUID, jobID string) error

	// UpdateStatus sets the status and, when preview is non-empty, the
	// content preview. Returns ErrKnowledgeFileNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, preview string) error

	// ListByCustomer returns a customer's files, newest first.
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.KnowledgeFile, error)
}

// ScrapedContentStore persists scraped web pages.
type ScrapedContentStore interface {
	Create(ctx context.Context, c *domain.ScrapedContent) error
	SetJobID(ctx context.Context, id uuid.UUID, jobID string) error

	// UpdateStatus sets the status and, when non-empty, the title and
	// content preview. Returns ErrScrapedContentNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, title, preview string) error
}

// ConversationStore persists chat sessions.
type ConversationStore interface {
	// FindBySession returns ErrConversationNotFound when the session has no conversation.
	FindBySession(ctx context.Context, sessionID string) (*domain.Conversation, error)

	// Upsert creates the conversation for c.SessionID or returns the
	// existing one. The stored conversation is returned.
	Upsert(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	// Upsert writes a message keyed by its id; writing the same id twice is a no-op.
	Upsert(ctx context.Context, m *domain.Message) error
}

// ChunkStore is the knowledge index.
type ChunkStore interface {
	// ReplaceChunks atomically replaces every chunk of a source.
	ReplaceChunks(ctx context.Context, sourceID uuid.UUID, chunks []domain.KnowledgeChunk) error

	// Search returns up to limit of a customer's chunks most relevant to query.
	Search(ctx context.Context, customerID uuid.UUID, query string, limit int) ([]domain.KnowledgeChunk, error)
}

// StatsStore computes dashboard counters.
type StatsStore interface {
	GetCustomerStats(ctx context.Context, customerID uuid.UUID) (*domain.CustomerStats, error)
}

// JobArchiveStore keeps job outcomes beyond the queue's retention window.
type JobArchiveStore interface {
	// Record inserts or replaces the archived outcome of a job.
	Record(ctx context.Context, r *domain.JobRecord) error
}
