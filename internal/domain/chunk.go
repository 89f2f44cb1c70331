package domain

import (
	"strings"

	"github.com/google/uuid"
)

// SourceType is the kind of knowledge source a chunk was cut from.
type SourceType string

// Knowledge source types.
const (
	SourceFile SourceType = "file"
	SourceURL  SourceType = "url"
)

// KnowledgeChunk is an indexed slice of a knowledge source's text.
type KnowledgeChunk struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID uuid.UUID  `json:"customer_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   uuid.UUID  `json:"source_id"`
	Ordinal    int        `json:"ordinal"`
	Label      string     `json:"label"`
	Content    string     `json:"content"`
}

// Chunk sizing, in characters.
const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

// ChunkText splits text into overlapping windows of at most size runes.
// Whitespace runs are collapsed first. Empty text yields no chunks.
func ChunkText(text string, size, overlap int) []string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// NewChunks cuts a source's text into chunks with ids that are stable for
// the same source and position, so re-ingesting a source overwrites rather
// than duplicates its chunks.
func NewChunks(customerID uuid.UUID, sourceType SourceType, sourceID uuid.UUID, label, text string) []KnowledgeChunk {
	parts := ChunkText(text, ChunkSize, ChunkOverlap)
	chunks := make([]KnowledgeChunk, len(parts))
	for i, p := range parts {
		chunks[i] = KnowledgeChunk{
			ID:         ChunkID(sourceID, i),
			CustomerID: customerID,
			SourceType: sourceType,
			SourceID:   sourceID,
			Ordinal:    i,
			Label:      label,
			Content:    p,
		}
	}
	return chunks
}

// ChunkID derives the id of the i-th chunk of a source.
func ChunkID(sourceID uuid.UUID, i int) uuid.UUID {
	return uuid.NewSHA1(sourceID, []byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)})
}
