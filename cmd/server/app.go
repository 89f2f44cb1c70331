package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/events"
	"github.com/phrazzld/kbase-api/internal/platform/files"
	"github.com/phrazzld/kbase-api/internal/platform/gemini"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/phrazzld/kbase-api/internal/platform/postgres"
	"github.com/phrazzld/kbase-api/internal/platform/scraper"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/ratelimit"
	"github.com/phrazzld/kbase-api/internal/service/auth"
	"github.com/phrazzld/kbase-api/internal/store"
	"github.com/phrazzld/kbase-api/internal/task"
	"github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  redis.UniversalClient

	kv      *kv.RedisStore
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	queue   *queue.Service
	waiter  *queue.Waiter
	uploads *files.Storage

	jwtService auth.JWTService

	customerStore       store.CustomerStore
	knowledgeFileStore  store.KnowledgeFileStore
	scrapedContentStore store.ScrapedContentStore
	conversationStore   store.ConversationStore
	messageStore        store.MessageStore
	chunkStore          store.ChunkStore
	statsStore          store.StatsStore
	jobArchiveStore     store.JobArchiveStore

	// chatModel is nil when no LLM key is configured.
	chatModel *gemini.ChatModel

	emitter *events.AsyncEmitter
	runner  *task.Runner
}

// newApplication creates a new application instance with all dependencies initialized.
// The database and Redis connections must be established by the caller and
// are closed by cleanup.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
	rdb redis.UniversalClient,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  rdb,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.kv = kv.NewRedisStore(rdb)
	app.cache = cache.New(app.kv, cache.TTLsFromConfig(cfg.Cache), logger)
	app.limiter = ratelimit.New(app.kv, logger)
	app.queue = queue.New(rdb, queue.PoliciesFromConfig(cfg.Queue), logger,
		queue.WithLease(time.Duration(cfg.Queue.LeaseMS)*time.Millisecond),
		queue.WithStoreRetry(cfg.Queue.StoreRetryAttempts, time.Duration(cfg.Queue.StoreRetryDelayMS)*time.Millisecond),
		queue.WithAdmitter(app.limiter),
	)
	app.waiter = queue.NewWaiter(app.queue,
		time.Duration(cfg.Chat.PollIntervalMS)*time.Millisecond,
		time.Duration(cfg.Chat.WaitTimeoutSec)*time.Second)

	app.uploads, err = files.NewStorage(cfg.Uploads.Dir, logger)
	if err != nil {
		return nil, err
	}

	app.customerStore = postgres.NewPostgresCustomerStore(db, logger)
	app.knowledgeFileStore = postgres.NewPostgresKnowledgeFileStore(db, logger)
	app.scrapedContentStore = postgres.NewPostgresScrapedContentStore(db, logger)
	app.conversationStore = postgres.NewPostgresConversationStore(db, logger)
	app.messageStore = postgres.NewPostgresMessageStore(db, logger)
	app.chunkStore = postgres.NewPostgresChunkStore(db, logger)
	app.statsStore = postgres.NewPostgresStatsStore(db, logger)
	app.jobArchiveStore = postgres.NewPostgresJobArchiveStore(db, logger)

	if cfg.LLM.GeminiAPIKey != "" {
		app.chatModel, err = gemini.NewChatModel(ctx, logger.With("component", "chat_model"), cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chat model: %w", err)
		}
		logger.Info("chat model initialized", "model", cfg.LLM.ModelName)
	} else {
		logger.Warn("no gemini API key configured, chat jobs will not be processed by this instance")
	}

	app.emitter = events.NewAsyncEmitter(logger)
	app.emitter.RegisterHandler(task.NewJobArchiveHandler(app.jobArchiveStore, logger))

	registry, err := app.handlerRegistry()
	if err != nil {
		return nil, err
	}
	app.runner = task.NewRunner(app.queue, registry, task.RunnerConfigFromConfig(cfg.Queue), app.emitter, logger)

	logger.Info("application initialized successfully")
	return app, nil
}

// handlerRegistry binds every queue this instance can serve to its handler.
func (app *application) handlerRegistry() (*task.Registry, error) {
	registry := task.NewRegistry()
	fetcher := scraper.NewFetcher(app.config.Scraper, app.logger)

	if err := registry.Register(queue.FileProcessing, task.NewFileProcessingHandler(
		app.knowledgeFileStore, app.chunkStore, app.uploads, app.cache, app.logger,
	)); err != nil {
		return nil, err
	}
	if err := registry.Register(queue.WebScraping, task.NewWebScrapingHandler(
		app.scrapedContentStore, app.chunkStore, fetcher, app.cache, app.logger,
	)); err != nil {
		return nil, err
	}
	if app.chatModel != nil {
		if err := registry.Register(queue.OpenAIChat, task.NewChatHandler(
			app.conversationStore, app.messageStore, app.chunkStore, app.chatModel,
			app.cache, app.config.LLM.ContextChunks, app.logger,
		)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// cleanup stops the workers, drains the event side channel and closes
// connections. In-flight jobs get until ctx expires to finish.
func (app *application) cleanup(ctx context.Context) error {
	var errs []error
	if app.runner != nil {
		if err := app.runner.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if app.emitter != nil {
		if err := app.emitter.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain events: %w", err))
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		app.logger.Error("application shutdown completed with errors", "error", err)
		return err
	}
	app.logger.Info("application shutdown completed")
	return nil
}
