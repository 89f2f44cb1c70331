package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/store"
)

// PostgresStatsStore implements store.StatsStore.
type PostgresStatsStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresStatsStore creates a stats store on db.
func NewPostgresStatsStore(db store.DBTX, logger *slog.Logger) *PostgresStatsStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStatsStore{
		db:     db,
		logger: logger.With(slog.String("component", "stats_store")),
	}
}

var _ store.StatsStore = (*PostgresStatsStore)(nil)

// GetCustomerStats implements store.StatsStore.GetCustomerStats.
func (s *PostgresStatsStore) GetCustomerStats(ctx context.Context, customerID uuid.UUID) (*domain.CustomerStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM knowledge_files WHERE customer_id = $1),
			(SELECT COUNT(*) FROM scraped_contents WHERE customer_id = $1),
			(SELECT COUNT(*) FROM conversations WHERE customer_id = $1),
			(SELECT COUNT(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id WHERE c.customer_id = $1),
			(SELECT COUNT(*) FROM knowledge_chunks WHERE customer_id = $1)
	`
	stats := domain.CustomerStats{CustomerID: customerID}
	err := s.db.QueryRowContext(ctx, query, customerID).Scan(
		&stats.KnowledgeFiles,
		&stats.ScrapedPages,
		&stats.Conversations,
		&stats.Messages,
		&stats.IndexedChunks,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to compute customer stats",
			slog.String("error", err.Error()),
			slog.String("customer_id", customerID.String()))
		return nil, store.NewStoreError("customer_stats", "get", "query failed", MapError(err))
	}
	return &stats, nil
}
