package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
)

// ScrapingHandler queues web pages for indexing.
type ScrapingHandler struct {
	contents store.ScrapedContentStore
	queue    JobQueue
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewScrapingHandler creates a new ScrapingHandler.
func NewScrapingHandler(contents store.ScrapedContentStore, q JobQueue, c *cache.Cache, logger *slog.Logger) *ScrapingHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ScrapingHandler")
	}
	return &ScrapingHandler{
		contents: contents,
		queue:    q,
		cache:    c,
		logger:   logger.With(slog.String("component", "scraping_handler")),
	}
}

// Scrape handles POST /api/scraping/urls. Every URL is validated before
// any is recorded; each accepted URL becomes its own job.
func (h *ScrapingHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}

	var req ScrapeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pages := make([]*domain.ScrapedContent, 0, len(req.URLs))
	for _, u := range req.URLs {
		page, err := domain.NewScrapedContent(customerID, u)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		pages = append(pages, page)
	}

	resp := ScrapeResponse{
		Queue:  string(queue.WebScraping),
		Status: string(queue.StateWaiting),
		Jobs:   make([]ScrapeJob, 0, len(pages)),
	}
	for _, page := range pages {
		if err := h.contents.Create(r.Context(), page); err != nil {
			HandleAPIError(w, r, err, "Failed to record URL")
			return
		}
		jobID, err := enqueue(r.Context(), h.queue, queue.ScrapePayload{
			ContentID:  page.ID.String(),
			CustomerID: customerID.String(),
			URL:        page.URL,
		})
		if err != nil {
			if uerr := h.contents.UpdateStatus(r.Context(), page.ID, domain.StatusFailed, "", ""); uerr != nil {
				log.Error("failed to mark unqueued page as failed",
					slog.String("url_id", page.ID.String()),
					slog.Any("error", uerr))
			}
			HandleAPIError(w, r, err, "Failed to queue URL for scraping")
			return
		}
		if err := h.contents.SetJobID(r.Context(), page.ID, jobID); err != nil {
			log.Warn("failed to link page to job",
				slog.String("url_id", page.ID.String()),
				slog.String("job_id", jobID),
				slog.Any("error", err))
		}
		resp.Jobs = append(resp.Jobs, ScrapeJob{URLID: page.ID.String(), URL: page.URL, JobID: jobID})
	}

	h.cache.Invalidate(r.Context(), cache.StatsKey(customerID.String()))
	log.Info("pages queued for scraping", slog.Int("count", len(resp.Jobs)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, resp)
}
