package postgres

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/store"
)

// DefaultSearchLimit caps Search when the caller passes a non-positive limit.
const DefaultSearchLimit = 5

// PostgresChunkStore implements store.ChunkStore on the knowledge_chunks
// table, ranking matches with PostgreSQL full-text search.
type PostgresChunkStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresChunkStore creates a chunk store on db. When db is a *sql.DB,
// ReplaceChunks runs in its own transaction; when it is already a *sql.Tx
// the caller's transaction is used.
func NewPostgresChunkStore(db store.DBTX, logger *slog.Logger) *PostgresChunkStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresChunkStore{
		db:     db,
		logger: logger.With(slog.String("component", "chunk_store")),
	}
}

var _ store.ChunkStore = (*PostgresChunkStore)(nil)

// ReplaceChunks implements store.ChunkStore.ReplaceChunks.
func (s *PostgresChunkStore) ReplaceChunks(ctx context.Context, sourceID uuid.UUID, chunks []domain.KnowledgeChunk) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	replace := func(ctx context.Context, db store.DBTX) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE source_id = $1`, sourceID); err != nil {
			return MapError(err)
		}
		query := `
			INSERT INTO knowledge_chunks (id, customer_id, source_type, source_id, ordinal, label, content)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		for _, c := range chunks {
			if _, err := db.ExecContext(ctx, query,
				c.ID, c.CustomerID, c.SourceType, c.SourceID, c.Ordinal, c.Label, c.Content,
			); err != nil {
				return MapError(err)
			}
		}
		return nil
	}

	err := store.Atomically(ctx, s.db, replace)
	if err != nil {
		log.Error("failed to replace chunks",
			slog.String("error", err.Error()),
			slog.String("source_id", sourceID.String()))
		return err
	}

	log.Debug("chunks replaced",
		slog.String("source_id", sourceID.String()),
		slog.Int("count", len(chunks)))
	return nil
}

// Search implements store.ChunkStore.Search. An empty query returns the
// customer's first chunks in source order.
func (s *PostgresChunkStore) Search(ctx context.Context, customerID uuid.UUID, query string, limit int) ([]domain.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query = strings.TrimSpace(query)

	sqlQuery := `
		SELECT id, customer_id, source_type, source_id, ordinal, label, content
		FROM knowledge_chunks
		WHERE customer_id = $1
		  AND ($2::text = '' OR search @@ plainto_tsquery('english', $2::text))
		ORDER BY ts_rank(search, plainto_tsquery('english', $2::text)) DESC, source_id, ordinal
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, customerID, query, limit)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to search chunks",
			slog.String("error", err.Error()),
			slog.String("customer_id", customerID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []domain.KnowledgeChunk
	for rows.Next() {
		var c domain.KnowledgeChunk
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.SourceType, &c.SourceID, &c.Ordinal, &c.Label, &c.Content); err != nil {
			return nil, MapError(err)
		}
		chunks = append(chunks, c)
	}
	return chunks, MapError(rows.Err())
}
