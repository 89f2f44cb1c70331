package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/store"
)

// StatsHandler serves the customer dashboard counters.
type StatsHandler struct {
	stats  store.StatsStore
	cache  *cache.Cache
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats store.StatsStore, c *cache.Cache, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for StatsHandler")
	}
	return &StatsHandler{
		stats:  stats,
		cache:  c,
		logger: logger.With(slog.String("component", "stats_handler")),
	}
}

// GetStats handles GET /api/stats.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	stats, err := cache.Fetch(r.Context(), h.cache, cache.StatsKey(customerID.String()), h.cache.TTLs().Stats,
		func(ctx context.Context) (domain.CustomerStats, error) {
			s, err := h.stats.GetCustomerStats(ctx, customerID)
			if err != nil {
				return domain.CustomerStats{}, err
			}
			return *s, nil
		})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}
