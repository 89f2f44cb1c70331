package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/store"
)

// PostgresCustomerStore implements store.CustomerStore.
type PostgresCustomerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCustomerStore creates a customer store on db. A nil logger
// falls back to slog.Default.
func NewPostgresCustomerStore(db store.DBTX, logger *slog.Logger) *PostgresCustomerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCustomerStore{
		db:     db,
		logger: logger.With(slog.String("component", "customer_store")),
	}
}

var _ store.CustomerStore = (*PostgresCustomerStore)(nil)

// GetByID implements store.CustomerStore.GetByID.
func (s *PostgresCustomerStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, name, email, is_active, created_at, updated_at
		FROM customers
		WHERE id = $1
	`

	var c domain.Customer
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("customer not found", slog.String("customer_id", id.String()))
			return nil, store.ErrCustomerNotFound
		}
		log.Error("failed to get customer",
			slog.String("error", err.Error()),
			slog.String("customer_id", id.String()))
		return nil, store.NewStoreError("customer", "get", "query failed", MapError(err))
	}

	return &c, nil
}
