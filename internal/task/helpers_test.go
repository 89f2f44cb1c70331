package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/events"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPolicies retries immediately so tests do not wait on backoff.
func testPolicies() queue.Policies {
	p := queue.DefaultPolicies()
	for name, pol := range p {
		pol.Workers = 1
		pol.MaxAttempts = 2
		pol.Backoff = queue.Backoff{Type: queue.BackoffFixed}
		pol.Timeout = 0
		pol.RateLimit = queue.RateLimit{}
		p[name] = pol
	}
	return p
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newTestQueue(t *testing.T, policies queue.Policies) *queue.Service {
	t.Helper()
	client, _ := newRedis(t)
	return queue.New(client, policies, testLogger(),
		queue.WithLease(30*time.Second),
		queue.WithStoreRetry(1, time.Millisecond))
}

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	client, mr := newRedis(t)
	return cache.New(kv.NewRedisStore(client), cache.DefaultTTLs(), testLogger()), mr
}

func enqueueFile(t *testing.T, svc *queue.Service, fileID string) string {
	t.Helper()
	id, err := svc.Enqueue(context.Background(), queue.FileProcessing,
		queue.FilePayload{FileID: fileID, CustomerID: uuid.NewString()}, 1, queue.EnqueueOptions{})
	require.NoError(t, err)
	return id
}

func waitTerminal(t *testing.T, svc *queue.Service, name queue.Name, id string) *queue.Snapshot {
	t.Helper()
	var snap *queue.Snapshot
	require.Eventually(t, func() bool {
		s, err := svc.GetJob(context.Background(), name, id)
		if err != nil {
			return false
		}
		snap = s
		return s.State.Terminal()
	}, 3*time.Second, 10*time.Millisecond)
	return snap
}

func noProgress(context.Context, int) {}

type recordingProgress struct {
	mu     sync.Mutex
	values []int
}

func (r *recordingProgress) report(_ context.Context, pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, pct)
}

func (r *recordingProgress) Values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.JobEvent
}

func (e *recordingEmitter) EmitEvent(_ context.Context, ev *events.JobEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) Events() []*events.JobEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*events.JobEvent(nil), e.events...)
}

// fakeQueue is a JobQueue whose behaviour is set per test.
type fakeQueue struct {
	mu sync.Mutex

	ClaimNextFn   func(ctx context.Context, name queue.Name, workerID string) (*queue.Job, error)
	ExtendFn      func(ctx context.Context, job *queue.Job) error
	ReapExpiredFn func(ctx context.Context, name queue.Name) ([]queue.Reaped, error)

	policies  queue.Policies
	lease     time.Duration
	completed []queue.Result
	failures  []error
	extends   int
}

func (q *fakeQueue) ClaimNext(ctx context.Context, name queue.Name, workerID string) (*queue.Job, error) {
	if q.ClaimNextFn != nil {
		return q.ClaimNextFn(ctx, name, workerID)
	}
	return nil, nil
}

func (q *fakeQueue) ReportProgress(context.Context, *queue.Job, int) error { return nil }

func (q *fakeQueue) Extend(ctx context.Context, job *queue.Job) error {
	q.mu.Lock()
	q.extends++
	q.mu.Unlock()
	if q.ExtendFn != nil {
		return q.ExtendFn(ctx, job)
	}
	return nil
}

func (q *fakeQueue) Complete(_ context.Context, _ *queue.Job, result queue.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, result)
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, _ *queue.Job, cause error) (queue.State, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = append(q.failures, cause)
	return queue.StateFailed, nil
}

func (q *fakeQueue) ReapExpired(ctx context.Context, name queue.Name) ([]queue.Reaped, error) {
	if q.ReapExpiredFn != nil {
		return q.ReapExpiredFn(ctx, name)
	}
	return nil, nil
}

func (q *fakeQueue) Policy(name queue.Name) (queue.Policy, error) {
	return q.policies.Get(name)
}

func (q *fakeQueue) Lease() time.Duration { return q.lease }

func (q *fakeQueue) Failures() []error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]error(nil), q.failures...)
}

// memStores is an in-memory implementation of the durable stores the
// handlers use.
type memStores struct {
	mu            sync.Mutex
	files         map[uuid.UUID]*domain.KnowledgeFile
	contents      map[uuid.UUID]*domain.ScrapedContent
	chunks        map[uuid.UUID][]domain.KnowledgeChunk
	conversations map[string]*domain.Conversation
	messages      map[uuid.UUID]*domain.Message
	archive       map[string]*domain.JobRecord
	statuses      []domain.ProcessingStatus
	findCalls     int
	failReplace   error
	failSearch    error
}

func newMemStores() *memStores {
	return &memStores{
		files:         make(map[uuid.UUID]*domain.KnowledgeFile),
		contents:      make(map[uuid.UUID]*domain.ScrapedContent),
		chunks:        make(map[uuid.UUID][]domain.KnowledgeChunk),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[uuid.UUID]*domain.Message),
		archive:       make(map[string]*domain.JobRecord),
	}
}

type memFileStore struct{ *memStores }

func (s memFileStore) Create(_ context.Context, f *domain.KnowledgeFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.files[f.ID] = &cp
	return nil
}

func (s memFileStore) SetJobID(_ context.Context, id uuid.UUID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return store.ErrKnowledgeFileNotFound
	}
	f.JobID = jobID
	return nil
}

func (s memFileStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ProcessingStatus, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return store.ErrKnowledgeFileNotFound
	}
	f.Status = status
	if preview != "" {
		f.ContentPreview = preview
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s memFileStore) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]domain.KnowledgeFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.KnowledgeFile{}
	for _, f := range s.files {
		if f.CustomerID == customerID {
			out = append(out, *f)
		}
	}
	return out, nil
}

type memContentStore struct{ *memStores }

func (s memContentStore) Create(_ context.Context, c *domain.ScrapedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contents[c.ID] = &cp
	return nil
}

func (s memContentStore) SetJobID(_ context.Context, id uuid.UUID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return store.ErrScrapedContentNotFound
	}
	c.JobID = jobID
	return nil
}

func (s memContentStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ProcessingStatus, title, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return store.ErrScrapedContentNotFound
	}
	c.Status = status
	if title != "" {
		c.Title = title
	}
	if preview != "" {
		c.ContentPreview = preview
	}
	s.statuses = append(s.statuses, status)
	return nil
}

type memChunkStore struct{ *memStores }

func (s memChunkStore) ReplaceChunks(_ context.Context, sourceID uuid.UUID, chunks []domain.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace != nil {
		return s.failReplace
	}
	s.chunks[sourceID] = append([]domain.KnowledgeChunk(nil), chunks...)
	return nil
}

func (s memChunkStore) Search(_ context.Context, customerID uuid.UUID, _ string, limit int) ([]domain.KnowledgeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSearch != nil {
		return nil, s.failSearch
	}
	var out []domain.KnowledgeChunk
	for _, cs := range s.chunks {
		for _, c := range cs {
			if c.CustomerID == customerID && len(out) < limit {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

type memConversationStore struct{ *memStores }

func (s memConversationStore) FindBySession(_ context.Context, sessionID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	c, ok := s.conversations[sessionID]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (s memConversationStore) Upsert(_ context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[c.SessionID]; ok {
		existing.UpdatedAt = c.UpdatedAt
		cp := *existing
		return &cp, nil
	}
	cp := *c
	s.conversations[c.SessionID] = &cp
	out := cp
	return &out, nil
}

type memMessageStore struct{ *memStores }

func (s memMessageStore) Upsert(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return nil
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

type memArchiveStore struct{ *memStores }

func (s memArchiveStore) Record(_ context.Context, r *domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.archive[r.Queue+"/"+r.JobID] = &cp
	return nil
}

var (
	_ store.KnowledgeFileStore  = memFileStore{}
	_ store.ScrapedContentStore = memContentStore{}
	_ store.ChunkStore          = memChunkStore{}
	_ store.ConversationStore   = memConversationStore{}
	_ store.MessageStore        = memMessageStore{}
	_ store.JobArchiveStore     = memArchiveStore{}
)

var errBoom = errors.New("boom")
