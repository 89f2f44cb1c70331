package postgres

import (
	"context"
	"log/slog"

	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/store"
)

// PostgresJobArchiveStore implements store.JobArchiveStore.
type PostgresJobArchiveStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobArchiveStore creates a job archive store on db.
func NewPostgresJobArchiveStore(db store.DBTX, logger *slog.Logger) *PostgresJobArchiveStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobArchiveStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_archive_store")),
	}
}

var _ store.JobArchiveStore = (*PostgresJobArchiveStore)(nil)

// Record implements store.JobArchiveStore.Record.
func (s *PostgresJobArchiveStore) Record(ctx context.Context, r *domain.JobRecord) error {
	query := `
		INSERT INTO job_archive (queue, job_id, state, attempts_made, failure_reason, payload, result, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (queue, job_id) DO UPDATE SET
			state = EXCLUDED.state,
			attempts_made = EXCLUDED.attempts_made,
			failure_reason = EXCLUDED.failure_reason,
			payload = EXCLUDED.payload,
			result = EXCLUDED.result,
			finished_at = EXCLUDED.finished_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.Queue,
		r.JobID,
		r.State,
		r.AttemptsMade,
		r.FailureReason,
		jsonOrNull(r.Payload),
		jsonOrNull(r.Result),
		r.FinishedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to archive job",
			slog.String("error", err.Error()),
			slog.String("queue", r.Queue),
			slog.String("job_id", r.JobID))
		return MapError(err)
	}
	return nil
}

// jsonOrNull maps empty raw JSON to SQL NULL.
func jsonOrNull(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
