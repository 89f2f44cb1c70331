package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/cache"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/phrazzld/kbase-api/internal/platform/files"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/store"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	mr    *miniredis.Miniredis
	queue *queue.Service
	cache *cache.Cache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return &testEnv{
		mr:    mr,
		queue: queue.New(client, queue.DefaultPolicies(), testLogger(), queue.WithStoreRetry(0, 0)),
		cache: cache.New(kv.NewRedisStore(client), cache.DefaultTTLs(), testLogger()),
	}
}

// asCustomer puts id into the request context the way the auth middleware does.
func asCustomer(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(shared.WithCustomerID(r.Context(), id))
}

// withCustomer is the router-level equivalent of asCustomer.
func withCustomer(id uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, asCustomer(r, id))
		})
	}
}

type fakeKnowledgeFileStore struct {
	mu       sync.Mutex
	created  []domain.KnowledgeFile
	jobIDs   map[uuid.UUID]string
	statuses map[uuid.UUID]domain.ProcessingStatus
	lists    int

	CreateFn func(ctx context.Context, f *domain.KnowledgeFile) error
}

func newFakeKnowledgeFileStore() *fakeKnowledgeFileStore {
	return &fakeKnowledgeFileStore{
		jobIDs:   map[uuid.UUID]string{},
		statuses: map[uuid.UUID]domain.ProcessingStatus{},
	}
}

func (s *fakeKnowledgeFileStore) Create(ctx context.Context, f *domain.KnowledgeFile) error {
	if s.CreateFn != nil {
		if err := s.CreateFn(ctx, f); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *f)
	s.statuses[f.ID] = f.Status
	return nil
}

func (s *fakeKnowledgeFileStore) SetJobID(_ context.Context, id uuid.UUID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobIDs[id] = jobID
	return nil
}

func (s *fakeKnowledgeFileStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ProcessingStatus, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[id]; !ok {
		return store.ErrKnowledgeFileNotFound
	}
	s.statuses[id] = status
	return nil
}

func (s *fakeKnowledgeFileStore) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]domain.KnowledgeFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []domain.KnowledgeFile
	for _, f := range s.created {
		if f.CustomerID == customerID {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeScrapedContentStore struct {
	mu      sync.Mutex
	created []domain.ScrapedContent
	jobIDs  map[uuid.UUID]string
}

func newFakeScrapedContentStore() *fakeScrapedContentStore {
	return &fakeScrapedContentStore{jobIDs: map[uuid.UUID]string{}}
}

func (s *fakeScrapedContentStore) Create(_ context.Context, c *domain.ScrapedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *c)
	return nil
}

func (s *fakeScrapedContentStore) SetJobID(_ context.Context, id uuid.UUID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobIDs[id] = jobID
	return nil
}

func (s *fakeScrapedContentStore) UpdateStatus(context.Context, uuid.UUID, domain.ProcessingStatus, string, string) error {
	return nil
}

type fakeUploads struct {
	saved   []string
	removed []string

	SaveFn func(ctx context.Context, customerID uuid.UUID, filename string, r io.Reader, maxBytes int64) (*files.Saved, error)
}

func (u *fakeUploads) Save(ctx context.Context, customerID uuid.UUID, filename string, r io.Reader, maxBytes int64) (*files.Saved, error) {
	if u.SaveFn != nil {
		return u.SaveFn(ctx, customerID, filename, r, maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	path := "/uploads/" + customerID.String() + "/" + filename
	u.saved = append(u.saved, string(data))
	return &files.Saved{Path: path, Size: int64(len(data)), MimeType: "text/plain; charset=utf-8"}, nil
}

func (u *fakeUploads) Remove(path string) error {
	u.removed = append(u.removed, path)
	return nil
}

type fakeCustomerStore struct {
	customers map[uuid.UUID]domain.Customer
	calls     int
}

func (s *fakeCustomerStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Customer, error) {
	s.calls++
	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return &c, nil
}

type fakeStatsStore struct {
	calls int
}

func (s *fakeStatsStore) GetCustomerStats(_ context.Context, customerID uuid.UUID) (*domain.CustomerStats, error) {
	s.calls++
	return &domain.CustomerStats{CustomerID: customerID, KnowledgeFiles: 3, Messages: 12}, nil
}

// waiterFunc adapts a function to JobWaiter.
type waiterFunc func(ctx context.Context, name queue.Name, id string) (*queue.Snapshot, error)

func (f waiterFunc) Wait(ctx context.Context, name queue.Name, id string) (*queue.Snapshot, error) {
	return f(ctx, name, id)
}
