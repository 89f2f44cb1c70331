package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
)

// TextExtractor reads the text of a stored upload. *files.Storage satisfies it.
type TextExtractor interface {
	ExtractText(path, filename string) (string, error)
}

// FileProcessingHandler ingests uploaded knowledge files.
type FileProcessingHandler struct {
	files     store.KnowledgeFileStore
	chunks    store.ChunkStore
	extractor TextExtractor
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewFileProcessingHandler creates a FileProcessingHandler.
func NewFileProcessingHandler(
	files store.KnowledgeFileStore,
	chunks store.ChunkStore,
	extractor TextExtractor,
	c *cache.Cache,
	logger *slog.Logger,
) *FileProcessingHandler {
	return &FileProcessingHandler{
		files:     files,
		chunks:    chunks,
		extractor: extractor,
		cache:     c,
		logger:    logger.With("component", "file_processing_handler"),
	}
}

// Handle implements Handler.
func (h *FileProcessingHandler) Handle(ctx context.Context, job *queue.Job, progress ProgressFunc) (queue.Result, error) {
	p, err := decodePayload[queue.FilePayload](job)
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs("file id", p.FileID, "customer id", p.CustomerID)
	if err != nil {
		return nil, err
	}
	fileID, customerID := ids[0], ids[1]
	log := logger.FromContextOrDefault(ctx, h.logger).With("file_id", fileID, "customer_id", customerID)

	if err := h.files.UpdateStatus(ctx, fileID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("failed to mark file processing: %w", err)
	}
	progress(ctx, 10)

	result, err := h.ingest(ctx, fileID, customerID, p, progress)
	if err != nil {
		sctx, cancel := detached(ctx)
		defer cancel()
		if serr := h.files.UpdateStatus(sctx, fileID, domain.StatusFailed, ""); serr != nil {
			log.Error("failed to mark file failed", "error", serr)
		}
		h.cache.Invalidate(sctx, cache.StatsKey(p.CustomerID))
		return nil, err
	}

	h.cache.Invalidate(ctx, cache.KnowledgeKey(p.CustomerID), cache.StatsKey(p.CustomerID))
	log.Info("file ingested", "chunks", result.Chunks)
	return result, nil
}

func (h *FileProcessingHandler) ingest(
	ctx context.Context,
	fileID, customerID uuid.UUID,
	p queue.FilePayload,
	progress ProgressFunc,
) (queue.FileResult, error) {
	text, err := h.extractor.ExtractText(p.FilePath, p.Filename)
	if err != nil {
		return queue.FileResult{}, fmt.Errorf("failed to extract text: %w", err)
	}
	progress(ctx, 30)

	chunks := domain.NewChunks(customerID, domain.SourceFile, fileID, p.Filename, text)
	if err := h.chunks.ReplaceChunks(ctx, fileID, chunks); err != nil {
		return queue.FileResult{}, fmt.Errorf("failed to index file: %w", err)
	}
	progress(ctx, 80)

	if err := h.files.UpdateStatus(ctx, fileID, domain.StatusCompleted, domain.Preview(text)); err != nil {
		return queue.FileResult{}, fmt.Errorf("failed to mark file completed: %w", err)
	}
	progress(ctx, 100)

	return queue.FileResult{
		Status: string(domain.StatusCompleted),
		FileID: p.FileID,
		Chunks: len(chunks),
	}, nil
}
