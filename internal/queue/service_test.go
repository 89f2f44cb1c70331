package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/phrazzld/kbase-api/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc    *Service
	mr     *miniredis.Miniredis
	client *redis.Client
	clock  *fakeClock
	logger *slog.Logger
}

func testPolicies() Policies {
	p := DefaultPolicies()
	file := p[FileProcessing]
	file.Backoff.Delay = time.Second
	p[FileProcessing] = file
	return p
}

func newTestEnv(t *testing.T, policies Policies, opts ...Option) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	clock := newFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{
		WithClock(clock.Now),
		WithLease(30 * time.Second),
		WithStoreRetry(1, time.Millisecond),
	}, opts...)
	return &testEnv{
		svc:    New(client, policies, logger, opts...),
		mr:     mr,
		client: client,
		clock:  clock,
		logger: logger,
	}
}

func filePayload(id string) FilePayload {
	return FilePayload{FileID: id, CustomerID: "c1"}
}

func enqueue(t *testing.T, env *testEnv, name Name, p Payload, priority int) string {
	t.Helper()
	id, err := env.svc.Enqueue(context.Background(), name, p, priority, EnqueueOptions{})
	require.NoError(t, err)
	return id
}

func claim(t *testing.T, env *testEnv, name Name) *Job {
	t.Helper()
	job, err := env.svc.ClaimNext(context.Background(), name, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestEnqueueRejectsUnknownQueue(t *testing.T) {
	env := newTestEnv(t, testPolicies())

	_, err := env.svc.Enqueue(context.Background(), Name("video-encoding"), filePayload("f1"), 1, EnqueueOptions{})
	assert.ErrorIs(t, err, ErrInvalidQueue)

	_, err = env.svc.ClaimNext(context.Background(), Name("video-encoding"), "w")
	assert.ErrorIs(t, err, ErrInvalidQueue)

	_, err = env.svc.GetJob(context.Background(), Name("video-encoding"), "x")
	assert.ErrorIs(t, err, ErrInvalidQueue)
}

func TestEnqueueRejectsForeignPayload(t *testing.T) {
	env := newTestEnv(t, testPolicies())

	_, err := env.svc.Enqueue(context.Background(), WebScraping, filePayload("f1"), 1, EnqueueOptions{})
	assert.ErrorIs(t, err, ErrPayloadMismatch)

	_, err = env.svc.Enqueue(context.Background(), WebScraping, nil, 1, EnqueueOptions{})
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestEnqueueIsVisibleImmediately(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()

	id := enqueue(t, env, FileProcessing, filePayload("f1"), 1)

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, snap.State)
	assert.Equal(t, 0, snap.AttemptsMade)
	assert.Equal(t, 3, snap.MaxAttempts)
	assert.Equal(t, env.clock.Now(), snap.CreatedAt)
	assert.Nil(t, snap.StartedAt)
	assert.Nil(t, snap.FinishedAt)

	p, err := snap.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, filePayload("f1"), p)
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t, testPolicies())

	snap, err := env.svc.GetJob(context.Background(), FileProcessing, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Nil(t, snap)
}

func TestClaimEmptyQueue(t *testing.T) {
	env := newTestEnv(t, testPolicies())

	job, err := env.svc.ClaimNext(context.Background(), FileProcessing, "w")
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimIsFIFOWithinPriority(t *testing.T) {
	env := newTestEnv(t, testPolicies())

	var ids []string
	for i := 0; i < 20; i++ {
		ids = append(ids, enqueue(t, env, FileProcessing, filePayload(fmt.Sprint(i)), 1))
		env.clock.Advance(time.Millisecond)
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, ids[i], claim(t, env, FileProcessing).ID, "claim %d", i)
	}
}

func TestClaimPrefersLowerPriority(t *testing.T) {
	env := newTestEnv(t, testPolicies())

	low := enqueue(t, env, WebScraping, ScrapePayload{ContentID: "u1", CustomerID: "c1", URL: "https://a.example"}, 5)
	high := enqueue(t, env, WebScraping, ScrapePayload{ContentID: "u2", CustomerID: "c1", URL: "https://b.example"}, 1)
	mid := enqueue(t, env, WebScraping, ScrapePayload{ContentID: "u3", CustomerID: "c1", URL: "https://c.example"}, 3)
	negative := enqueue(t, env, WebScraping, ScrapePayload{ContentID: "u4", CustomerID: "c1", URL: "https://d.example"}, -2)

	assert.Equal(t, negative, claim(t, env, WebScraping).ID)
	assert.Equal(t, high, claim(t, env, WebScraping).ID)
	assert.Equal(t, mid, claim(t, env, WebScraping).ID)
	assert.Equal(t, low, claim(t, env, WebScraping).ID)
}

func TestClaimMarksJobActive(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()
	id := enqueue(t, env, FileProcessing, filePayload("f1"), 1)
	env.clock.Advance(time.Second)

	job := claim(t, env, FileProcessing)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, FileProcessing, job.Queue)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "worker-1", job.WorkerID)
	assert.NotEmpty(t, job.LeaseToken)
	assert.Equal(t, env.clock.Now(), job.StartedAt)

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, StateActive, snap.State)
	require.NotNil(t, snap.StartedAt)
	assert.Equal(t, env.clock.Now(), *snap.StartedAt)

	again, err := env.svc.ClaimNext(ctx, FileProcessing, "worker-2")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestConcurrentClaimsNeverShareAJob(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	const jobs = 60
	const claimers = 8

	want := make(map[string]bool, jobs)
	for i := 0; i < jobs; i++ {
		want[enqueue(t, env, FileProcessing, filePayload(fmt.Sprint(i)), i%3)] = true
	}

	var (
		mu      sync.Mutex
		claimed []string
		wg      sync.WaitGroup
	)
	for c := 0; c < claimers; c++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				job, err := env.svc.ClaimNext(context.Background(), FileProcessing, fmt.Sprintf("w%d", worker))
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				claimed = append(claimed, job.ID)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	seen := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		assert.False(t, seen[id], "job %s claimed twice", id)
		seen[id] = true
	}
	assert.Len(t, claimed, jobs)
	assert.Equal(t, want, seen)
}

func TestProgressNeverDecreases(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()
	id := enqueue(t, env, FileProcessing, filePayload("f1"), 1)
	job := claim(t, env, FileProcessing)

	require.NoError(t, env.svc.ReportProgress(ctx, job, 80))
	require.NoError(t, env.svc.ReportProgress(ctx, job, 30))

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, 80, snap.Progress)

	require.NoError(t, env.svc.ReportProgress(ctx, job, 250))
	snap, err = env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Progress)
}

func TestOwnershipIsEnforced(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()
	enqueue(t, env, FileProcessing, filePayload("f1"), 1)
	job := claim(t, env, FileProcessing)

	impostor := *job
	impostor.LeaseToken = "not-the-lease"
	assert.ErrorIs(t, env.svc.ReportProgress(ctx, &impostor, 50), ErrOwnershipViolation)
	assert.ErrorIs(t, env.svc.Complete(ctx, &impostor, FileResult{Status: "done"}), ErrOwnershipViolation)
	_, err := env.svc.Fail(ctx, &impostor, errors.New("boom"))
	assert.ErrorIs(t, err, ErrOwnershipViolation)

	require.NoError(t, env.svc.Complete(ctx, job, FileResult{Status: "done"}))

	// a resolved job is no longer owned by anyone
	assert.ErrorIs(t, env.svc.ReportProgress(ctx, job, 90), ErrOwnershipViolation)
	assert.ErrorIs(t, env.svc.Complete(ctx, job, FileResult{Status: "again"}), ErrOwnershipViolation)
	_, err = env.svc.Fail(ctx, job, errors.New("late"))
	assert.ErrorIs(t, err, ErrOwnershipViolation)

	snap, err := env.svc.GetJob(ctx, FileProcessing, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.JSONEq(t, `{"status":"done"}`, string(snap.Result))
}

func TestCompleteRejectsForeignResult(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	enqueue(t, env, FileProcessing, filePayload("f1"), 1)
	job := claim(t, env, FileProcessing)

	err := env.svc.Complete(context.Background(), job, ChatResult{Response: "hi"})
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestFailExhaustsRetries(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()
	id := enqueue(t, env, FileProcessing, filePayload("f1"), 1)

	wantDelays := []time.Duration{time.Second, 2 * time.Second}
	for attempt := 1; attempt <= 3; attempt++ {
		job := claim(t, env, FileProcessing)
		assert.Equal(t, attempt, job.Attempts)

		state, err := env.svc.Fail(ctx, job, fmt.Errorf("extract failed on attempt %d", attempt))
		require.NoError(t, err)
		if attempt == 3 {
			assert.Equal(t, StateFailed, state)
			break
		}
		assert.Equal(t, StateDelayed, state)

		// not ready until the backoff elapses
		env.clock.Advance(wantDelays[attempt-1] - time.Millisecond)
		early, err := env.svc.ClaimNext(ctx, FileProcessing, "w")
		require.NoError(t, err)
		assert.Nil(t, early, "attempt %d became ready before its backoff", attempt)
		env.clock.Advance(time.Millisecond)
	}

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, 3, snap.AttemptsMade)
	assert.Equal(t, "extract failed on attempt 3", snap.FailureReason)
	assert.Empty(t, snap.Result)
	require.NotNil(t, snap.FinishedAt)

	// terminal jobs are never claimed again
	env.clock.Advance(time.Hour)
	job, err := env.svc.ClaimNext(ctx, FileProcessing, "w")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailureReasonIsRedacted(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()
	id := enqueue(t, env, FileProcessing, filePayload("f1"), 1)

	for {
		job := claim(t, env, FileProcessing)
		state, err := env.svc.Fail(ctx, job, errors.New("dial postgres://kbase:hunter2@db:5432 refused"))
		require.NoError(t, err)
		if state == StateFailed {
			break
		}
		env.clock.Advance(time.Hour)
	}

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Contains(t, snap.FailureReason, "[REDACTED_CREDENTIAL]")
	assert.NotContains(t, snap.FailureReason, "hunter2")
	assert.NotContains(t, snap.LastError, "hunter2")
}

func TestFailThenSucceed(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()
	id := enqueue(t, env, FileProcessing, filePayload("f1"), 1)

	for i := 0; i < 2; i++ {
		job := claim(t, env, FileProcessing)
		_, err := env.svc.Fail(ctx, job, errors.New("transient"))
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
	}
	job := claim(t, env, FileProcessing)
	require.NoError(t, env.svc.Complete(ctx, job, FileResult{Status: "done", FileID: "f1"}))

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 3, snap.AttemptsMade)
	assert.Empty(t, snap.FailureReason)
	assert.Equal(t, "transient", snap.LastError)

	res, err := snap.DecodeResult()
	require.NoError(t, err)
	assert.Equal(t, FileResult{Status: "done", FileID: "f1"}, res)
}

func TestFixedBackoff(t *testing.T) {
	policies := testPolicies()
	scrape := policies[WebScraping]
	scrape.Backoff = Backoff{Type: BackoffFixed, Delay: 5 * time.Second}
	scrape.MaxAttempts = 4
	policies[WebScraping] = scrape
	env := newTestEnv(t, policies)
	ctx := context.Background()
	enqueue(t, env, WebScraping, ScrapePayload{ContentID: "u1", CustomerID: "c1", URL: "https://a.example"}, 1)

	for attempt := 1; attempt <= 3; attempt++ {
		job := claim(t, env, WebScraping)
		_, err := env.svc.Fail(ctx, job, errors.New("timeout"))
		require.NoError(t, err)

		env.clock.Advance(4 * time.Second)
		early, err := env.svc.ClaimNext(ctx, WebScraping, "w")
		require.NoError(t, err)
		assert.Nil(t, early)
		env.clock.Advance(time.Second)
	}
	claim(t, env, WebScraping)
}

func TestRetriedJobKeepsItsPlace(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()
	first := enqueue(t, env, FileProcessing, filePayload("f1"), 1)

	job := claim(t, env, FileProcessing)
	_, err := env.svc.Fail(ctx, job, errors.New("transient"))
	require.NoError(t, err)

	second := enqueue(t, env, FileProcessing, filePayload("f2"), 1)
	env.clock.Advance(time.Minute)

	assert.Equal(t, first, claim(t, env, FileProcessing).ID)
	assert.Equal(t, second, claim(t, env, FileProcessing).ID)
}

func TestDelayedEnqueue(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()

	id, err := env.svc.Enqueue(ctx, FileProcessing, filePayload("f1"), 1, EnqueueOptions{Delay: 10 * time.Second})
	require.NoError(t, err)

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, snap.State)

	job, err := env.svc.ClaimNext(ctx, FileProcessing, "w")
	require.NoError(t, err)
	assert.Nil(t, job)

	env.clock.Advance(10 * time.Second)
	assert.Equal(t, id, claim(t, env, FileProcessing).ID)
}

func TestFileProcessingEndToEnd(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()

	id := enqueue(t, env, FileProcessing, FilePayload{FileID: "f1", CustomerID: "c1"}, 1)
	job := claim(t, env, FileProcessing)
	require.Equal(t, id, job.ID)

	for _, pct := range []int{10, 50, 100} {
		require.NoError(t, env.svc.ReportProgress(ctx, job, pct))
	}
	require.NoError(t, env.svc.Complete(ctx, job, FileResult{Status: "done"}))

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 100, snap.Progress)
	assert.JSONEq(t, `{"status":"done"}`, string(snap.Result))
	assert.Empty(t, snap.FailureReason)
	require.NotNil(t, snap.FinishedAt)
}

func TestChatAdmissionControl(t *testing.T) {
	policies := testPolicies()
	chat := policies[OpenAIChat]
	chat.RateLimit = RateLimit{Max: 2, Window: time.Minute}
	policies[OpenAIChat] = chat

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(kv.NewRedisStore(client), logger)
	svc := New(client, policies, logger, WithAdmitter(limiter), WithStoreRetry(0, time.Millisecond))
	ctx := context.Background()
	key := ratelimit.Key(ratelimit.ScopeQueue, string(OpenAIChat))

	// idle polling spends no budget
	for i := 0; i < 5; i++ {
		job, err := svc.ClaimNext(ctx, OpenAIChat, "w")
		require.NoError(t, err)
		assert.Nil(t, job)
	}
	assert.False(t, mr.Exists(key))

	// saturate the window
	limiter.Allow(ctx, key, 2, time.Minute)
	limiter.Allow(ctx, key, 2, time.Minute)

	id, err := svc.Enqueue(ctx, OpenAIChat, ChatPayload{CustomerID: "c1", SessionID: "s1", Message: "hello"}, 5, EnqueueOptions{})
	require.NoError(t, err)

	job, err := svc.ClaimNext(ctx, OpenAIChat, "w")
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Nil(t, job)

	snap, err := svc.GetJob(ctx, OpenAIChat, id)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, snap.State)
	assert.Equal(t, 0, snap.AttemptsMade)

	mr.FastForward(61 * time.Second)

	job, err = svc.ClaimNext(ctx, OpenAIChat, "w")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
}

func TestAdmissionOnlyAppliesToLimitedQueues(t *testing.T) {
	denyAll := admitterFunc(func(context.Context, string, int, time.Duration) bool { return false })
	env := newTestEnv(t, testPolicies(), WithAdmitter(denyAll))

	enqueue(t, env, FileProcessing, filePayload("f1"), 1)
	claim(t, env, FileProcessing)

	enqueue(t, env, OpenAIChat, ChatPayload{CustomerID: "c1", SessionID: "s1", Message: "hi"}, 5)
	_, err := env.svc.ClaimNext(context.Background(), OpenAIChat, "w")
	assert.ErrorIs(t, err, ErrThrottled)
}

type admitterFunc func(ctx context.Context, key string, max int, window time.Duration) bool

func (f admitterFunc) Allow(ctx context.Context, key string, max int, window time.Duration) bool {
	return f(ctx, key, max, window)
}

func TestReapExpiredLeases(t *testing.T) {
	policies := testPolicies()
	file := policies[FileProcessing]
	file.MaxAttempts = 2
	policies[FileProcessing] = file
	env := newTestEnv(t, policies)
	ctx := context.Background()
	id := enqueue(t, env, FileProcessing, filePayload("f1"), 1)

	job := claim(t, env, FileProcessing)

	// a heartbeat pushes the expiry out
	env.clock.Advance(20 * time.Second)
	require.NoError(t, env.svc.Extend(ctx, job))
	env.clock.Advance(20 * time.Second)
	reaped, err := env.svc.ReapExpired(ctx, FileProcessing)
	require.NoError(t, err)
	assert.Empty(t, reaped)

	env.clock.Advance(11 * time.Second)
	reaped, err = env.svc.ReapExpired(ctx, FileProcessing)
	require.NoError(t, err)
	assert.Equal(t, []Reaped{{JobID: id, State: StateDelayed}}, reaped)

	// the stale worker lost ownership
	assert.ErrorIs(t, env.svc.Complete(ctx, job, FileResult{Status: "done"}), ErrOwnershipViolation)

	env.clock.Advance(time.Minute)
	job = claim(t, env, FileProcessing)
	assert.Equal(t, 2, job.Attempts)

	env.clock.Advance(31 * time.Second)
	reaped, err = env.svc.ReapExpired(ctx, FileProcessing)
	require.NoError(t, err)
	assert.Equal(t, []Reaped{{JobID: id, State: StateFailed}}, reaped)

	snap, err := env.svc.GetJob(ctx, FileProcessing, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ReasonLeaseExpired, snap.FailureReason)
}

func TestRetentionTrimsTerminalJobs(t *testing.T) {
	policies := testPolicies()
	file := policies[FileProcessing]
	file.KeepCompleted = 2
	file.KeepFailed = 1
	file.MaxAttempts = 1
	policies[FileProcessing] = file
	env := newTestEnv(t, policies)
	ctx := context.Background()

	var completed []string
	for i := 0; i < 4; i++ {
		completed = append(completed, enqueue(t, env, FileProcessing, filePayload(fmt.Sprint(i)), 1))
		require.NoError(t, env.svc.Complete(ctx, claim(t, env, FileProcessing), FileResult{Status: "done"}))
		env.clock.Advance(time.Second)
	}
	var failed []string
	for i := 0; i < 3; i++ {
		failed = append(failed, enqueue(t, env, FileProcessing, filePayload(fmt.Sprint(i)), 1))
		_, err := env.svc.Fail(ctx, claim(t, env, FileProcessing), errors.New("bad file"))
		require.NoError(t, err)
		env.clock.Advance(time.Second)
	}

	for i, id := range completed {
		_, err := env.svc.GetJob(ctx, FileProcessing, id)
		if i < 2 {
			assert.ErrorIs(t, err, ErrJobNotFound, "completed job %d should be pruned", i)
		} else {
			assert.NoError(t, err)
		}
	}
	for i, id := range failed {
		_, err := env.svc.GetJob(ctx, FileProcessing, id)
		if i < 2 {
			assert.ErrorIs(t, err, ErrJobNotFound, "failed job %d should be pruned", i)
		} else {
			assert.NoError(t, err)
		}
	}

	counts, err := env.svc.Stats(ctx, FileProcessing)
	require.NoError(t, err)
	assert.Equal(t, Counts{Completed: 2, Failed: 1}, counts)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	ctx := context.Background()

	enqueue(t, env, FileProcessing, filePayload("f1"), 1)
	enqueue(t, env, FileProcessing, filePayload("f2"), 1)
	enqueue(t, env, FileProcessing, filePayload("f3"), 1)
	_, err := env.svc.Enqueue(ctx, FileProcessing, filePayload("f4"), 1, EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)
	claim(t, env, FileProcessing)

	counts, err := env.svc.Stats(ctx, FileProcessing)
	require.NoError(t, err)
	assert.Equal(t, Counts{Waiting: 2, Active: 1, Delayed: 1}, counts)
	assert.Equal(t, int64(4), counts.Total())

	other, err := env.svc.Stats(ctx, WebScraping)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, other)
}

func TestStoreUnavailable(t *testing.T) {
	env := newTestEnv(t, testPolicies())
	env.mr.Close()
	ctx := context.Background()

	_, err := env.svc.Enqueue(ctx, FileProcessing, filePayload("f1"), 1, EnqueueOptions{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = env.svc.ClaimNext(ctx, FileProcessing, "w")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = env.svc.GetJob(ctx, FileProcessing, "x")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = env.svc.Stats(ctx, FileProcessing)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestBackoffAfter(t *testing.T) {
	exp := Backoff{Type: BackoffExponential, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, exp.After(1))
	assert.Equal(t, 4*time.Second, exp.After(2))
	assert.Equal(t, 8*time.Second, exp.After(3))

	fixed := Backoff{Type: BackoffFixed, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, fixed.After(3))
}

func TestParseName(t *testing.T) {
	for _, n := range Names() {
		got, err := ParseName(string(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	_, err := ParseName("openai_chat")
	assert.ErrorIs(t, err, ErrInvalidQueue)
}
