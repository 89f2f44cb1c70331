package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/platform/scraper"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
)

// PageFetcher retrieves a web page. *scraper.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*scraper.Page, error)
}

// WebScrapingHandler fetches and indexes customer web pages.
type WebScrapingHandler struct {
	contents store.ScrapedContentStore
	chunks   store.ChunkStore
	fetcher  PageFetcher
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewWebScrapingHandler creates a WebScrapingHandler.
func NewWebScrapingHandler(
	contents store.ScrapedContentStore,
	chunks store.ChunkStore,
	fetcher PageFetcher,
	c *cache.Cache,
	logger *slog.Logger,
) *WebScrapingHandler {
	return &WebScrapingHandler{
		contents: contents,
		chunks:   chunks,
		fetcher:  fetcher,
		cache:    c,
		logger:   logger.With("component", "web_scraping_handler"),
	}
}

// Handle implements Handler.
func (h *WebScrapingHandler) Handle(ctx context.Context, job *queue.Job, progress ProgressFunc) (queue.Result, error) {
	p, err := decodePayload[queue.ScrapePayload](job)
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs("url id", p.ContentID, "customer id", p.CustomerID)
	if err != nil {
		return nil, err
	}
	contentID, customerID := ids[0], ids[1]
	log := logger.FromContextOrDefault(ctx, h.logger).With("url_id", contentID, "customer_id", customerID)

	if err := h.contents.UpdateStatus(ctx, contentID, domain.StatusProcessing, "", ""); err != nil {
		return nil, fmt.Errorf("failed to mark page processing: %w", err)
	}
	progress(ctx, 20)

	result, err := h.scrape(ctx, contentID, customerID, p, progress)
	if err != nil {
		sctx, cancel := detached(ctx)
		defer cancel()
		if serr := h.contents.UpdateStatus(sctx, contentID, domain.StatusFailed, "", ""); serr != nil {
			log.Error("failed to mark page failed", "error", serr)
		}
		return nil, err
	}

	h.cache.InvalidateCustomer(ctx, p.CustomerID)
	log.Info("page scraped", "url", p.URL, "chunks", result.Chunks)
	return result, nil
}

func (h *WebScrapingHandler) scrape(
	ctx context.Context,
	contentID, customerID uuid.UUID,
	p queue.ScrapePayload,
	progress ProgressFunc,
) (queue.ScrapeResult, error) {
	page, err := h.fetcher.Fetch(ctx, p.URL)
	if err != nil {
		return queue.ScrapeResult{}, err
	}
	progress(ctx, 50)

	label := page.Title
	if label == "" {
		label = p.URL
	}
	chunks := domain.NewChunks(customerID, domain.SourceURL, contentID, label, page.Text)
	if len(chunks) == 0 {
		return queue.ScrapeResult{}, fmt.Errorf("%w: %s", scraper.ErrEmptyPage, p.URL)
	}
	progress(ctx, 70)

	if err := h.chunks.ReplaceChunks(ctx, contentID, chunks); err != nil {
		return queue.ScrapeResult{}, fmt.Errorf("failed to index page: %w", err)
	}
	progress(ctx, 90)

	if err := h.contents.UpdateStatus(ctx, contentID, domain.StatusCompleted, page.Title, domain.Preview(page.Text)); err != nil {
		return queue.ScrapeResult{}, fmt.Errorf("failed to mark page completed: %w", err)
	}
	progress(ctx, 100)

	return queue.ScrapeResult{
		Status:    string(domain.StatusCompleted),
		ContentID: p.ContentID,
		Chunks:    len(chunks),
	}, nil
}
