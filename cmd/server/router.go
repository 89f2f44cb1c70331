package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/kbase-api/internal/api"
	apiMiddleware "github.com/phrazzld/kbase-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	limits := apiMiddleware.NewRateLimiter(app.limiter, app.config.RateLimit)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	knowledgeHandler := api.NewKnowledgeHandler(app.knowledgeFileStore, app.uploads, app.queue, app.cache, 0, app.logger)
	scrapingHandler := api.NewScrapingHandler(app.scrapedContentStore, app.queue, app.cache, app.logger)
	chatHandler := api.NewChatHandler(app.queue, app.waiter, app.customerStore, app.cache, app.logger)
	jobHandler := api.NewJobHandler(app.queue, app.logger)
	statsHandler := api.NewStatsHandler(app.statsStore, app.cache, app.logger)
	healthHandler := api.NewHealthHandler(map[string]api.HealthCheck{
		"redis":    app.kv.Ping,
		"postgres": func(ctx context.Context) error { return app.db.PingContext(ctx) },
	}, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Inbound integrations authenticate by customer id in the body.
		r.With(limits.Webhook).Post("/chat/webhook", chatHandler.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(limits.PerCustomer)

			r.Post("/knowledge/files", knowledgeHandler.Upload)
			r.Get("/knowledge/files", knowledgeHandler.List)
			r.Post("/scraping/urls", scrapingHandler.Scrape)
			r.Post("/chat", chatHandler.Chat)

			r.Get("/jobs/{queue}/{id}", jobHandler.GetJob)
			r.Get("/queues/{queue}/stats", jobHandler.GetQueueStats)
			r.Get("/stats", statsHandler.GetStats)
		})
	})

	r.With(limits.PerIP).Get("/health", healthHandler.Health)

	return r
}
