package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyCustomerID   = fmt.Errorf("%w: customer ID cannot be empty", ErrValidation)
	ErrEmptyCustomerName = fmt.Errorf("%w: customer name cannot be empty", ErrValidation)
)

// Customer is a tenant of the knowledge base.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Customer has valid data.
func (c *Customer) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyCustomerID
	}
	if c.Name == "" {
		return ErrEmptyCustomerName
	}
	return nil
}

// CustomerStats are the dashboard counters of one customer.
type CustomerStats struct {
	CustomerID     uuid.UUID `json:"customer_id"`
	KnowledgeFiles int64     `json:"knowledge_files"`
	ScrapedPages   int64     `json:"scraped_pages"`
	Conversations  int64     `json:"conversations"`
	Messages       int64     `json:"messages"`
	IndexedChunks  int64     `json:"indexed_chunks"`
}
