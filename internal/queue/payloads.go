package queue

import (
	"encoding/json"
	"fmt"
)

// Payload is the input of a job. Each queue accepts exactly one payload type.
type Payload interface {
	QueueName() Name
}

// Result is the output recorded when a job completes.
type Result interface {
	QueueName() Name
}

// FilePayload asks for an uploaded knowledge file to be ingested.
type FilePayload struct {
	FileID     string `json:"file_id"     validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
	FilePath   string `json:"file_path,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// QueueName implements Payload.
func (FilePayload) QueueName() Name { return FileProcessing }

// ScrapePayload asks for a URL to be fetched and indexed.
type ScrapePayload struct {
	ContentID  string `json:"url_id"      validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
	URL        string `json:"url"         validate:"required,url"`
}

// QueueName implements Payload.
func (ScrapePayload) QueueName() Name { return WebScraping }

// ChatPayload asks for an assistant reply to one user message.
type ChatPayload struct {
	CustomerID string   `json:"customer_id" validate:"required"`
	SessionID  string   `json:"session_id"  validate:"required"`
	Message    string   `json:"message"     validate:"required"`
	Context    []string `json:"context,omitempty"`
}

// QueueName implements Payload.
func (ChatPayload) QueueName() Name { return OpenAIChat }

// FileResult is recorded for completed file-processing jobs.
type FileResult struct {
	Status string `json:"status"`
	FileID string `json:"file_id,omitempty"`
	Chunks int    `json:"chunks,omitempty"`
}

// QueueName implements Result.
func (FileResult) QueueName() Name { return FileProcessing }

// ScrapeResult is recorded for completed web-scraping jobs.
type ScrapeResult struct {
	Status    string `json:"status"`
	ContentID string `json:"url_id,omitempty"`
	Chunks    int    `json:"chunks,omitempty"`
}

// QueueName implements Result.
func (ScrapeResult) QueueName() Name { return WebScraping }

// ChatResult is recorded for completed chat jobs.
type ChatResult struct {
	Response  string   `json:"response"`
	Sources   []string `json:"sources,omitempty"`
	SessionID string   `json:"session_id"`
}

// QueueName implements Result.
func (ChatResult) QueueName() Name { return OpenAIChat }

func decodePayload(name Name, raw json.RawMessage) (Payload, error) {
	switch name {
	case FileProcessing:
		return decodeInto[FilePayload](raw)
	case WebScraping:
		return decodeInto[ScrapePayload](raw)
	case OpenAIChat:
		return decodeInto[ChatPayload](raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidQueue, name)
}

func decodeResult(name Name, raw json.RawMessage) (Result, error) {
	switch name {
	case FileProcessing:
		return decodeInto[FileResult](raw)
	case WebScraping:
		return decodeInto[ScrapeResult](raw)
	case OpenAIChat:
		return decodeInto[ChatResult](raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidQueue, name)
}

func decodeInto[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return v, nil
}

// checkPayload rejects payloads that belong to another queue.
func checkPayload(name Name, p Payload) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload for %s", ErrPayloadMismatch, name)
	}
	if p.QueueName() != name {
		return fmt.Errorf("%w: %T cannot be enqueued on %s", ErrPayloadMismatch, p, name)
	}
	return nil
}

// checkResult rejects results that belong to another queue. A nil result is allowed.
func checkResult(name Name, r Result) error {
	if r == nil {
		return nil
	}
	if r.QueueName() != name {
		return fmt.Errorf("%w: %T cannot complete a %s job", ErrPayloadMismatch, r, name)
	}
	return nil
}
