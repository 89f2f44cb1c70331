package domain

import (
	"encoding/json"
	"time"
)

// JobRecord is the archived outcome of a job, kept after the queue has
// pruned it.
type JobRecord struct {
	Queue         string          `json:"queue"`
	JobID         string          `json:"job_id"`
	State         string          `json:"state"`
	AttemptsMade  int             `json:"attempts_made"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	FinishedAt    time.Time       `json:"finished_at"`
}
