package domain

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyFilename = fmt.Errorf("%w: filename cannot be empty", ErrValidation)
	ErrEmptyFilePath = fmt.Errorf("%w: file path cannot be empty", ErrValidation)
)

// KnowledgeFile is an uploaded document queued for ingestion.
type KnowledgeFile struct {
	ID             uuid.UUID        `json:"id"`
	CustomerID     uuid.UUID        `json:"customer_id"`
	Filename       string           `json:"filename"`
	FilePath       string           `json:"-"`
	MimeType       string           `json:"mime_type"`
	Size           int64            `json:"size"`
	Status         ProcessingStatus `json:"status"`
	ContentPreview string           `json:"content_preview,omitempty"`
	JobID          string           `json:"job_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewKnowledgeFile creates a pending KnowledgeFile.
func NewKnowledgeFile(customerID uuid.UUID, filename, path, mimeType string, size int64) (*KnowledgeFile, error) {
	now := time.Now().UTC()
	f := &KnowledgeFile{
		ID:         uuid.New(),
		CustomerID: customerID,
		Filename:   filename,
		FilePath:   path,
		MimeType:   mimeType,
		Size:       size,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks if the KnowledgeFile has valid data.
func (f *KnowledgeFile) Validate() error {
	if f.ID == uuid.Nil || f.CustomerID == uuid.Nil {
		return ErrInvalidID
	}
	if f.Filename == "" {
		return ErrEmptyFilename
	}
	if f.FilePath == "" {
		return ErrEmptyFilePath
	}
	if !f.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// ScrapedContent is a web page queued for scraping.
type ScrapedContent struct {
	ID             uuid.UUID        `json:"id"`
	CustomerID     uuid.UUID        `json:"customer_id"`
	URL            string           `json:"url"`
	Title          string           `json:"title,omitempty"`
	Status         ProcessingStatus `json:"status"`
	ContentPreview string           `json:"content_preview,omitempty"`
	JobID          string           `json:"job_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewScrapedContent creates a pending ScrapedContent for an absolute http(s) URL.
func NewScrapedContent(customerID uuid.UUID, rawURL string) (*ScrapedContent, error) {
	now := time.Now().UTC()
	c := &ScrapedContent{
		ID:         uuid.New(),
		CustomerID: customerID,
		URL:        rawURL,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks if the ScrapedContent has valid data.
func (c *ScrapedContent) Validate() error {
	if c.ID == uuid.Nil || c.CustomerID == uuid.Nil {
		return ErrInvalidID
	}
	if err := ValidateURL(c.URL); err != nil {
		return err
	}
	if !c.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
