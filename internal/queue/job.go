package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Name identifies one of the fixed logical queues.
type Name string

// The logical queues.
const (
	FileProcessing Name = "file-processing"
	WebScraping    Name = "web-scraping"
	OpenAIChat     Name = "openai-chat"
)

// Names lists every known queue in a stable order.
func Names() []Name {
	return []Name{FileProcessing, WebScraping, OpenAIChat}
}

// ParseName validates a queue name received from outside the process.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidQueue, s)
	}
	return n, nil
}

// Valid reports whether n is a known queue.
func (n Name) Valid() bool {
	switch n {
	case FileProcessing, WebScraping, OpenAIChat:
		return true
	}
	return false
}

func (n Name) String() string { return string(n) }

// State is the lifecycle position of a job.
type State string

// Job states. Completed and failed are terminal.
const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is a claimed unit of work as handed to a worker. LeaseToken proves
// ownership on every subsequent call.
type Job struct {
	ID          string
	Queue       Name
	Payload     json.RawMessage
	Priority    int
	Attempts    int
	MaxAttempts int
	LeaseToken  string
	WorkerID    string
	CreatedAt   time.Time
	StartedAt   time.Time
}

// DecodePayload decodes the payload into the queue's payload type.
func (j *Job) DecodePayload() (Payload, error) {
	return decodePayload(j.Queue, j.Payload)
}

// Snapshot is the read-only view returned by the status API.
type Snapshot struct {
	ID            string          `json:"id"`
	Queue         Name            `json:"queue"`
	State         State           `json:"state"`
	Priority      int             `json:"priority"`
	Progress      int             `json:"progress"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	AttemptsMade  int             `json:"attempts_made"`
	MaxAttempts   int             `json:"max_attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// DecodePayload decodes the payload into the queue's payload type.
func (s *Snapshot) DecodePayload() (Payload, error) {
	return decodePayload(s.Queue, s.Payload)
}

// DecodeResult decodes the result into the queue's result type. It returns
// nil without error while the job has no result.
func (s *Snapshot) DecodeResult() (Result, error) {
	if len(s.Result) == 0 {
		return nil, nil
	}
	return decodeResult(s.Queue, s.Result)
}

// Counts is the number of jobs per state in one queue.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Total is the number of retained jobs across all states.
func (c Counts) Total() int64 {
	return c.Waiting + c.Active + c.Delayed + c.Completed + c.Failed
}

// hash field names of the stored job.
const (
	fieldID            = "id"
	fieldQueue         = "queue"
	fieldPayload       = "payload"
	fieldPriority      = "priority"
	fieldState         = "state"
	fieldAttempts      = "attempts"
	fieldMaxAttempts   = "max_attempts"
	fieldBackoffType   = "backoff_type"
	fieldBackoffDelay  = "backoff_delay"
	fieldProgress      = "progress"
	fieldResult        = "result"
	fieldFailureReason = "failure_reason"
	fieldLastError     = "last_error"
	fieldCreatedAt     = "created_at"
	fieldStartedAt     = "started_at"
	fieldFinishedAt    = "finished_at"
	fieldLeaseToken    = "lease_token"
	fieldWorker        = "worker"
	fieldMember        = "member"
)

// record is the decoded job hash.
type record map[string]string

// recordFromReply converts a flat HGETALL reply returned by a script.
func recordFromReply(v any) (record, error) {
	items, ok := v.([]any)
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("unexpected script reply %T", v)
	}
	r := make(record, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, _ := items[i].(string)
		val, _ := items[i+1].(string)
		r[k] = val
	}
	return r, nil
}

func (r record) intField(field string) int {
	if n, err := strconv.Atoi(r[field]); err == nil {
		return n
	}
	f, _ := strconv.ParseFloat(r[field], 64)
	return int(f)
}

func (r record) timeField(field string) time.Time {
	ms, err := strconv.ParseInt(r[field], 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(r[field], 64)
		if ferr != nil {
			return time.Time{}
		}
		ms = int64(f)
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (r record) timePtrField(field string) *time.Time {
	t := r.timeField(field)
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r record) raw(field string) json.RawMessage {
	if r[field] == "" {
		return nil
	}
	return json.RawMessage(r[field])
}

func (r record) job() *Job {
	return &Job{
		ID:          r[fieldID],
		Queue:       Name(r[fieldQueue]),
		Payload:     r.raw(fieldPayload),
		Priority:    r.intField(fieldPriority),
		Attempts:    r.intField(fieldAttempts),
		MaxAttempts: r.intField(fieldMaxAttempts),
		LeaseToken:  r[fieldLeaseToken],
		WorkerID:    r[fieldWorker],
		CreatedAt:   r.timeField(fieldCreatedAt),
		StartedAt:   r.timeField(fieldStartedAt),
	}
}

func (r record) snapshot() *Snapshot {
	return &Snapshot{
		ID:            r[fieldID],
		Queue:         Name(r[fieldQueue]),
		State:         State(r[fieldState]),
		Priority:      r.intField(fieldPriority),
		Progress:      r.intField(fieldProgress),
		Payload:       r.raw(fieldPayload),
		Result:        r.raw(fieldResult),
		FailureReason: r[fieldFailureReason],
		LastError:     r[fieldLastError],
		AttemptsMade:  r.intField(fieldAttempts),
		MaxAttempts:   r.intField(fieldMaxAttempts),
		CreatedAt:     r.timeField(fieldCreatedAt),
		StartedAt:     r.timePtrField(fieldStartedAt),
		FinishedAt:    r.timePtrField(fieldFinishedAt),
	}
}
