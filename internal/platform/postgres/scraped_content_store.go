package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/store"
)

// PostgresScrapedContentStore implements store.ScrapedContentStore.
type PostgresScrapedContentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresScrapedContentStore creates a scraped content store on db.
func NewPostgresScrapedContentStore(db store.DBTX, logger *slog.Logger) *PostgresScrapedContentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresScrapedContentStore{
		db:     db,
		logger: logger.With(slog.String("component", "scraped_content_store")),
	}
}

var _ store.ScrapedContentStore = (*PostgresScrapedContentStore)(nil)

func (s *PostgresScrapedContentStore) Create(ctx context.Context, c *domain.ScrapedContent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO scraped_contents
			(id, customer_id, url, title, status, content_preview, job_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.CustomerID,
		c.URL,
		c.Title,
		c.Status,
		c.ContentPreview,
		c.JobID,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create scraped content",
			slog.String("error", err.Error()),
			slog.String("url_id", c.ID.String()))
		return MapError(err)
	}
	return nil
}

func (s *PostgresScrapedContentStore) SetJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE scraped_contents SET job_id = $2, updated_at = $3 WHERE id = $1`,
		id, jobID, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrScrapedContentNotFound)
}

func (s *PostgresScrapedContentStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.ProcessingStatus,
	title, preview string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	query := `
		UPDATE scraped_contents
		SET status = $2,
		    title = CASE WHEN $3::text = '' THEN title ELSE $3 END,
		    content_preview = CASE WHEN $4::text = '' THEN content_preview ELSE $4 END,
		    updated_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, status, title, preview, time.Now().UTC())
	if err != nil {
		log.Error("failed to update scraped content status",
			slog.String("error", err.Error()),
			slog.String("url_id", id.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrScrapedContentNotFound)
}
