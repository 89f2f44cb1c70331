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

// PostgresKnowledgeFileStore implements store.KnowledgeFileStore.
type PostgresKnowledgeFileStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresKnowledgeFileStore creates a knowledge file store on db.
func NewPostgresKnowledgeFileStore(db store.DBTX, logger *slog.Logger) *PostgresKnowledgeFileStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresKnowledgeFileStore{
		db:     db,
		logger: logger.With(slog.String("component", "knowledge_file_store")),
	}
}

var _ store.KnowledgeFileStore = (*PostgresKnowledgeFileStore)(nil)

// Create implements store.KnowledgeFileStore.Create.
// Returns store.ErrInvalidEntity if the customer does not exist.
func (s *PostgresKnowledgeFileStore) Create(ctx context.Context, f *domain.KnowledgeFile) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := f.Validate(); err != nil {
		log.Warn("knowledge file validation failed during create",
			slog.String("error", err.Error()),
			slog.String("file_id", f.ID.String()))
		return err
	}

	query := `
		INSERT INTO knowledge_files
			(id, customer_id, filename, file_path, mime_type, size, status, content_preview, job_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		f.ID,
		f.CustomerID,
		f.Filename,
		f.FilePath,
		f.MimeType,
		f.Size,
		f.Status,
		f.ContentPreview,
		f.JobID,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create knowledge file",
			slog.String("error", err.Error()),
			slog.String("file_id", f.ID.String()),
			slog.String("customer_id", f.CustomerID.String()))
		return MapError(err)
	}

	log.Info("knowledge file created",
		slog.String("file_id", f.ID.String()),
		slog.String("customer_id", f.CustomerID.String()))
	return nil
}

// SetJobID implements store.KnowledgeFileStore.SetJobID.
func (s *PostgresKnowledgeFileStore) SetJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_files SET job_id = $2, updated_at = $3 WHERE id = $1`,
		id, jobID, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrKnowledgeFileNotFound)
}

// UpdateStatus implements store.KnowledgeFileStore.UpdateStatus.
func (s *PostgresKnowledgeFileStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.ProcessingStatus,
	preview string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	query := `
		UPDATE knowledge_files
		SET status = $2,
		    content_preview = CASE WHEN $3::text = '' THEN content_preview ELSE $3 END,
		    updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, status, preview, time.Now().UTC())
	if err != nil {
		log.Error("failed to update knowledge file status",
			slog.String("error", err.Error()),
			slog.String("file_id", id.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrKnowledgeFileNotFound); err != nil {
		return err
	}

	log.Debug("knowledge file status updated",
		slog.String("file_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// ListByCustomer implements store.KnowledgeFileStore.ListByCustomer.
func (s *PostgresKnowledgeFileStore) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.KnowledgeFile, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, customer_id, filename, file_path, mime_type, size, status, content_preview, job_id, created_at, updated_at
		FROM knowledge_files
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, customerID)
	if err != nil {
		log.Error("failed to list knowledge files",
			slog.String("error", err.Error()),
			slog.String("customer_id", customerID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	files := []domain.KnowledgeFile{}
	for rows.Next() {
		var f domain.KnowledgeFile
		if err := rows.Scan(
			&f.ID,
			&f.CustomerID,
			&f.Filename,
			&f.FilePath,
			&f.MimeType,
			&f.Size,
			&f.Status,
			&f.ContentPreview,
			&f.JobID,
			&f.CreatedAt,
			&f.UpdatedAt,
		); err != nil {
			return nil, MapError(err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return files, nil
}
