package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/files"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
)

// DefaultMaxUploadBytes caps a single knowledge file upload.
const DefaultMaxUploadBytes = 10 << 20

// Uploads stores uploaded files until their ingestion job reads them.
// *files.Storage satisfies it.
type Uploads interface {
	Save(ctx context.Context, customerID uuid.UUID, filename string, r io.Reader, maxBytes int64) (*files.Saved, error)
	Remove(path string) error
}

// KnowledgeHandler accepts knowledge file uploads and lists them.
type KnowledgeHandler struct {
	files    store.KnowledgeFileStore
	uploads  Uploads
	queue    JobQueue
	cache    *cache.Cache
	maxBytes int64
	logger   *slog.Logger
}

// NewKnowledgeHandler creates a new KnowledgeHandler. A non-positive
// maxBytes uses DefaultMaxUploadBytes.
func NewKnowledgeHandler(
	fileStore store.KnowledgeFileStore,
	uploads Uploads,
	q JobQueue,
	c *cache.Cache,
	maxBytes int64,
	logger *slog.Logger,
) *KnowledgeHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for KnowledgeHandler")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &KnowledgeHandler{
		files:    fileStore,
		uploads:  uploads,
		queue:    q,
		cache:    c,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "knowledge_handler")),
	}
}

// Upload handles POST /api/knowledge/files. The multipart field "file" is
// stored, recorded as pending and queued for ingestion.
func (h *KnowledgeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	part, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "No file provided", err)
		return
	}
	defer func() { _ = part.Close() }()

	saved, err := h.uploads.Save(r.Context(), customerID, header.Filename, part, h.maxBytes)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to store file")
		return
	}

	file, err := domain.NewKnowledgeFile(customerID, header.Filename, saved.Path, saved.MimeType, saved.Size)
	if err != nil {
		h.discard(log, saved.Path)
		HandleAPIError(w, r, err, "")
		return
	}
	if err := h.files.Create(r.Context(), file); err != nil {
		h.discard(log, saved.Path)
		HandleAPIError(w, r, err, "Failed to record file")
		return
	}

	jobID, err := enqueue(r.Context(), h.queue, queue.FilePayload{
		FileID:     file.ID.String(),
		CustomerID: customerID.String(),
		FilePath:   saved.Path,
		Filename:   file.Filename,
	})
	if err != nil {
		if uerr := h.files.UpdateStatus(r.Context(), file.ID, domain.StatusFailed, ""); uerr != nil {
			log.Error("failed to mark unqueued file as failed",
				slog.String("file_id", file.ID.String()),
				slog.Any("error", uerr))
		}
		HandleAPIError(w, r, err, "Failed to queue file for processing")
		return
	}

	if err := h.files.SetJobID(r.Context(), file.ID, jobID); err != nil {
		log.Warn("failed to link file to job",
			slog.String("file_id", file.ID.String()),
			slog.String("job_id", jobID),
			slog.Any("error", err))
	} else {
		file.JobID = jobID
	}
	h.cache.Invalidate(r.Context(),
		cache.KnowledgeKey(customerID.String()),
		cache.StatsKey(customerID.String()))

	log.Info("knowledge file queued",
		slog.String("file_id", file.ID.String()),
		slog.String("job_id", jobID),
		slog.Int64("size", file.Size))

	shared.RespondWithJSON(w, r, http.StatusAccepted, UploadResponse{
		File: knowledgeFileToResponse(*file),
		JobAcceptedResponse: JobAcceptedResponse{
			JobID:  jobID,
			Queue:  string(queue.FileProcessing),
			Status: string(queue.StateWaiting),
		},
	})
}

// List handles GET /api/knowledge/files.
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}

	out, err := cache.Fetch(r.Context(), h.cache, cache.KnowledgeKey(customerID.String()), h.cache.TTLs().Knowledge,
		func(ctx context.Context) ([]KnowledgeFileResponse, error) {
			list, err := h.files.ListByCustomer(ctx, customerID)
			if err != nil {
				return nil, err
			}
			out := make([]KnowledgeFileResponse, 0, len(list))
			for _, f := range list {
				out = append(out, knowledgeFileToResponse(f))
			}
			return out, nil
		})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list knowledge files")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

func (h *KnowledgeHandler) discard(log *slog.Logger, path string) {
	if err := h.uploads.Remove(path); err != nil {
		log.Warn("failed to remove orphaned upload", slog.Any("error", err))
	}
}
