package domain

// ProcessingStatus tracks ingestion of a knowledge source.
type ProcessingStatus string

// Possible processing status values
const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is a known status.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// PreviewLimit is the number of characters of extracted text kept on the
// source record.
const PreviewLimit = 10000

// Preview truncates text to PreviewLimit characters without splitting a rune.
func Preview(text string) string {
	n := 0
	for i := range text {
		if n == PreviewLimit {
			return text[:i]
		}
		n++
	}
	return text
}
