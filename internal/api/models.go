package api

import (
	"time"

	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/queue"
)

// JobAcceptedResponse is returned with 202 when work has been queued.
type JobAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Queue  string `json:"queue"`
	Status string `json:"status"`
}

// KnowledgeFileResponse describes an uploaded knowledge file.
type KnowledgeFileResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	Status    string    `json:"status"`
	JobID     string    `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResponse is the body of an accepted upload.
type UploadResponse struct {
	File KnowledgeFileResponse `json:"file"`
	JobAcceptedResponse
}

// ScrapeRequest asks for one or more pages to be indexed.
type ScrapeRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=20,dive,required,url"`
}

// ScrapeJob pairs a queued page with its job.
type ScrapeJob struct {
	URLID string `json:"url_id"`
	URL   string `json:"url"`
	JobID string `json:"job_id"`
}

// ScrapeResponse is the body of an accepted scrape request.
type ScrapeResponse struct {
	Queue  string      `json:"queue"`
	Status string      `json:"status"`
	Jobs   []ScrapeJob `json:"jobs"`
}

// ChatRequest is a customer's chat message.
type ChatRequest struct {
	Message   string   `json:"message"    validate:"required,max=4000"`
	SessionID string   `json:"session_id" validate:"omitempty,max=128"`
	Context   []string `json:"context"    validate:"max=10"`
}

// WebhookChatRequest is a chat message delivered by a customer's integration.
// UserID doubles as the session.
type WebhookChatRequest struct {
	CustomerID string `json:"customer_id" validate:"required,uuid"`
	Message    string `json:"message"     validate:"required,max=4000"`
	UserID     string `json:"user_id"     validate:"omitempty,max=128"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Response  string   `json:"response"`
	SessionID string   `json:"session_id"`
	Sources   []string `json:"sources"`
	JobID     string   `json:"job_id"`
}

// ChatPendingResponse is returned with 202 when the reply was not ready in time.
type ChatPendingResponse struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// QueueStatsResponse reports job counts for one queue.
type QueueStatsResponse struct {
	Queue string `json:"queue"`
	queue.Counts
	Total int64 `json:"total"`
}

func knowledgeFileToResponse(f domain.KnowledgeFile) KnowledgeFileResponse {
	return KnowledgeFileResponse{
		ID:        f.ID.String(),
		Filename:  f.Filename,
		MimeType:  f.MimeType,
		Size:      f.Size,
		Status:    string(f.Status),
		JobID:     f.JobID,
		CreatedAt: f.CreatedAt,
	}
}

func chatResultToResponse(jobID string, r queue.ChatResult) ChatResponse {
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	return ChatResponse{
		Response:  r.Response,
		SessionID: r.SessionID,
		Sources:   sources,
		JobID:     jobID,
	}
}
