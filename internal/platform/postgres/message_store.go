package postgres

import (
	"context"
	"log/slog"

	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/store"
)

// PostgresMessageStore implements store.MessageStore.
type PostgresMessageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMessageStore creates a message store on db.
func NewPostgresMessageStore(db store.DBTX, logger *slog.Logger) *PostgresMessageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMessageStore{
		db:     db,
		logger: logger.With(slog.String("component", "message_store")),
	}
}

var _ store.MessageStore = (*PostgresMessageStore)(nil)

// Upsert implements store.MessageStore.Upsert.
func (s *PostgresMessageStore) Upsert(ctx context.Context, m *domain.Message) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO messages (id, conversation_id, sender, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, m.ID, m.ConversationID, m.Sender, m.Content, m.CreatedAt)
	if err != nil {
		log.Error("failed to upsert message",
			slog.String("error", err.Error()),
			slog.String("message_id", m.ID.String()),
			slog.String("conversation_id", m.ConversationID.String()))
		return MapError(err)
	}
	return nil
}
