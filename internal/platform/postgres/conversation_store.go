package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/store"
)

// PostgresConversationStore implements store.ConversationStore.
type PostgresConversationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresConversationStore creates a conversation store on db.
func NewPostgresConversationStore(db store.DBTX, logger *slog.Logger) *PostgresConversationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresConversationStore{
		db:     db,
		logger: logger.With(slog.String("component", "conversation_store")),
	}
}

var _ store.ConversationStore = (*PostgresConversationStore)(nil)

// FindBySession implements store.ConversationStore.FindBySession.
func (s *PostgresConversationStore) FindBySession(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	query := `
		SELECT id, customer_id, session_id, created_at, updated_at
		FROM conversations
		WHERE session_id = $1
	`
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&c.ID,
		&c.CustomerID,
		&c.SessionID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConversationNotFound
		}
		return nil, MapError(err)
	}
	return &c, nil
}

// Upsert implements store.ConversationStore.Upsert. The conversation id of
// an existing session is kept; only updated_at moves.
func (s *PostgresConversationStore) Upsert(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO conversations (id, customer_id, session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, customer_id, session_id, created_at, updated_at
	`
	var out domain.Conversation
	err := s.db.QueryRowContext(ctx, query,
		c.ID,
		c.CustomerID,
		c.SessionID,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(
		&out.ID,
		&out.CustomerID,
		&out.SessionID,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to upsert conversation",
			slog.String("error", err.Error()),
			slog.String("session_id", c.SessionID))
		return nil, MapError(err)
	}
	return &out, nil
}
