// Package scraper fetches web pages for ingestion and reduces them to
// readable text.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/kbase-api/internal/config"
	"golang.org/x/time/rate"
)

var (
	// ErrFetchFailed is returned when the page could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrEmptyPage is returned when a page has no readable text.
	ErrEmptyPage = errors.New("page has no readable text")
)

// Page is a fetched and extracted web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher retrieves pages politely: all fetches share one token bucket.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher creates a Fetcher from cfg.
func NewFetcher(cfg config.ScraperConfig, logger *slog.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	burst := max(cfg.Burst, 1)
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
		logger:    logger.With("component", "scraper"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and extracts its title and text. HTML is reduced
// to visible text; plain text bodies are returned as they are.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	f.logger.DebugContext(ctx, "fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetchFailed, rawURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBody > 0 {
		body = io.LimitReader(resp.Body, f.maxBody)
	}

	page := &Page{URL: rawURL}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
		}
		page.Text = cleanLines(string(raw))
	} else {
		page.Title, page.Text, err = ExtractText(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
	}

	if page.Text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPage, rawURL)
	}
	return page, nil
}

// cleanLines trims every line and drops the blank ones.
func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
