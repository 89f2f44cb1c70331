package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/ratelimit"
	"github.com/phrazzld/kbase-api/internal/redact"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
)

// ReasonLeaseExpired is the failure text recorded for jobs whose worker
// stopped renewing its lease.
const ReasonLeaseExpired = "lease expired"

// Admitter decides whether a rate-limited queue may start another job.
// *ratelimit.Limiter satisfies it.
type Admitter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) bool
}

// EnqueueOptions tunes a single Enqueue call.
type EnqueueOptions struct {
	// Delay keeps the job in the delayed state until it elapses.
	Delay time.Duration
}

// Reaped describes a job whose expired lease was turned into a failed attempt.
type Reaped struct {
	JobID string
	State State
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLease sets how long a claim stays valid without a heartbeat.
func WithLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lease = d
		}
	}
}

// WithStoreRetry sets how often and how quickly failed store calls are retried.
func WithStoreRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		if attempts >= 0 {
			s.retryAttempts = attempts
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// WithAdmitter enables admission control for queues with a rate limit policy.
func WithAdmitter(a Admitter) Option {
	return func(s *Service) { s.admitter = a }
}

// Service is the job queue. It is safe for concurrent use and any number of
// processes may share the same store.
type Service struct {
	client        redis.UniversalClient
	policies      Policies
	admitter      Admitter
	lease         time.Duration
	retryAttempts int
	retryDelay    time.Duration
	now           func() time.Time
	logger        *slog.Logger
	metrics       *metrics
}

// New creates a Service over client using the given per-queue policies.
func New(client redis.UniversalClient, policies Policies, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		client:        client,
		policies:      policies,
		lease:         time.Minute,
		retryAttempts: 3,
		retryDelay:    200 * time.Millisecond,
		now:           time.Now,
		logger:        logger.With("component", "job_queue"),
		metrics:       newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the policy of a queue.
func (s *Service) Policy(name Name) (Policy, error) {
	return s.policies.Get(name)
}

// Lease returns the claim lease duration.
func (s *Service) Lease() time.Duration {
	return s.lease
}

// Enqueue durably records a job in the waiting state, or in the delayed
// state when opts.Delay is positive, and returns its id.
func (s *Service) Enqueue(ctx context.Context, name Name, payload Payload, priority int, opts EnqueueOptions) (string, error) {
	pol, err := s.policies.Get(name)
	if err != nil {
		return "", err
	}
	if err := checkPayload(name, payload); err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	k := keysFor(name)
	id := uuid.NewString()
	now := s.now()

	var seq int64
	err = s.do(ctx, name, "enqueue_seq", func(ctx context.Context) error {
		var err error
		seq, err = s.client.Incr(ctx, k.seq()).Result()
		return err
	})
	if err != nil {
		return "", err
	}

	err = s.do(ctx, name, "enqueue", func(ctx context.Context) error {
		return enqueueScript.Run(ctx, s.client,
			[]string{k.job(id), k.waiting(), k.delayed()},
			id, string(name), string(body), priority, pol.MaxAttempts,
			string(pol.Backoff.Type), pol.Backoff.Delay.Milliseconds(),
			unixMS(now), opts.Delay.Milliseconds(), member(seq, id),
		).Err()
	})
	if err != nil {
		return "", err
	}

	inc(ctx, s.metrics.enqueued, name)
	s.logger.DebugContext(ctx, "job enqueued",
		"queue", name,
		"job_id", id,
		"priority", priority,
		"delay", opts.Delay)
	return id, nil
}

// ClaimNext hands the best ready job of a queue to workerID. It returns
// nil, nil when nothing is ready, and nil, ErrThrottled when admission
// control deferred a ready job.
func (s *Service) ClaimNext(ctx context.Context, name Name, workerID string) (*Job, error) {
	pol, err := s.policies.Get(name)
	if err != nil {
		return nil, err
	}
	k := keysFor(name)
	now := s.now()

	if pol.RateLimit.Max > 0 && s.admitter != nil {
		// Only spend admission budget when there is something to admit.
		var ready int64
		err := s.do(ctx, name, "peek", func(ctx context.Context) error {
			var err error
			ready, err = peekScript.Run(ctx, s.client, []string{k.waiting(), k.delayed()}, unixMS(now)).Int64()
			return err
		})
		if err != nil {
			return nil, err
		}
		if ready == 0 {
			return nil, nil
		}
		key := ratelimit.Key(ratelimit.ScopeQueue, string(name))
		if !s.admitter.Allow(ctx, key, pol.RateLimit.Max, pol.RateLimit.Window) {
			inc(ctx, s.metrics.admissionDenied, name)
			return nil, ErrThrottled
		}
	}

	token := uuid.NewString()
	var reply any
	err = s.do(ctx, name, "claim", func(ctx context.Context) error {
		var err error
		reply, err = claimScript.Run(ctx, s.client,
			[]string{k.waiting(), k.delayed(), k.active()},
			k.jobPrefix(), unixMS(now), s.lease.Milliseconds(), token, workerID,
		).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := recordFromReply(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: claim: %v", ErrStoreUnavailable, err)
	}
	return rec.job(), nil
}

// ReportProgress raises the job's progress to percent, clamped to 0..100,
// and renews the lease. Lower values than the stored one are dropped.
func (s *Service) ReportProgress(ctx context.Context, job *Job, percent int) error {
	percent = max(0, min(100, percent))
	_, err := s.progress(ctx, job, percent)
	return err
}

// Extend renews the lease of an owned job.
func (s *Service) Extend(ctx context.Context, job *Job) error {
	_, err := s.progress(ctx, job, -1)
	return err
}

func (s *Service) progress(ctx context.Context, job *Job, percent int) (int64, error) {
	k := keysFor(job.Queue)
	now := s.now()
	var stored int64
	err := s.do(ctx, job.Queue, "progress", func(ctx context.Context) error {
		var err error
		stored, err = progressScript.Run(ctx, s.client,
			[]string{k.job(job.ID), k.active()},
			job.LeaseToken, percent, unixMS(now), s.lease.Milliseconds(), job.ID,
		).Int64()
		return err
	})
	if err != nil {
		return 0, err
	}
	if stored < 0 {
		return 0, fmt.Errorf("%w: job %s", ErrOwnershipViolation, job.ID)
	}
	return stored, nil
}

// Complete records result and moves an owned job to completed.
func (s *Service) Complete(ctx context.Context, job *Job, result Result) error {
	pol, err := s.policies.Get(job.Queue)
	if err != nil {
		return err
	}
	if err := checkResult(job.Queue, result); err != nil {
		return err
	}
	var body []byte
	if result != nil {
		if body, err = json.Marshal(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	}

	k := keysFor(job.Queue)
	now := s.now()
	var code int64
	err = s.do(ctx, job.Queue, "complete", func(ctx context.Context) error {
		var err error
		code, err = completeScript.Run(ctx, s.client,
			[]string{k.job(job.ID), k.active(), k.completed()},
			job.LeaseToken, string(body), unixMS(now), pol.KeepCompleted, k.jobPrefix(), job.ID,
		).Int64()
		return err
	})
	if err != nil {
		return err
	}
	if code < 0 {
		return fmt.Errorf("%w: job %s", ErrOwnershipViolation, job.ID)
	}
	inc(ctx, s.metrics.completed, job.Queue)
	return nil
}

// Fail records a failed attempt of an owned job. The job is scheduled for
// another attempt while attempts remain, otherwise it becomes failed with
// cause's redacted text as its failure reason. The resulting state is
// returned.
func (s *Service) Fail(ctx context.Context, job *Job, cause error) (State, error) {
	pol, err := s.policies.Get(job.Queue)
	if err != nil {
		return "", err
	}
	reason := "unknown error"
	if cause != nil {
		reason = redact.Error(cause)
	}

	k := keysFor(job.Queue)
	now := s.now()
	var reply any
	err = s.do(ctx, job.Queue, "fail", func(ctx context.Context) error {
		var err error
		reply, err = failScript.Run(ctx, s.client,
			[]string{k.job(job.ID), k.active(), k.delayed(), k.failed()},
			job.LeaseToken, reason, unixMS(now), pol.KeepFailed, k.jobPrefix(), job.ID,
		).Result()
		return err
	})
	if err != nil {
		return "", err
	}
	state, ok := reply.(string)
	if !ok {
		return "", fmt.Errorf("%w: job %s", ErrOwnershipViolation, job.ID)
	}
	s.countFailure(ctx, job.Queue, State(state))
	return State(state), nil
}

func (s *Service) countFailure(ctx context.Context, name Name, state State) {
	if state == StateFailed {
		inc(ctx, s.metrics.failed, name)
		return
	}
	inc(ctx, s.metrics.retried, name)
}

// ReapExpired treats every active job of a queue whose lease has expired as
// a failed attempt.
func (s *Service) ReapExpired(ctx context.Context, name Name) ([]Reaped, error) {
	pol, err := s.policies.Get(name)
	if err != nil {
		return nil, err
	}
	k := keysFor(name)
	now := s.now()
	var reply []any
	err = s.do(ctx, name, "reap", func(ctx context.Context) error {
		var err error
		reply, err = reapScript.Run(ctx, s.client,
			[]string{k.active(), k.delayed(), k.failed()},
			unixMS(now), pol.KeepFailed, k.jobPrefix(), ReasonLeaseExpired,
		).Slice()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	reaped := make([]Reaped, 0, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		id, _ := reply[i].(string)
		state, _ := reply[i+1].(string)
		reaped = append(reaped, Reaped{JobID: id, State: State(state)})
		s.countFailure(ctx, name, State(state))
		s.logger.WarnContext(ctx, "reaped job with expired lease",
			"queue", name,
			"job_id", id,
			"state", state)
	}
	return reaped, nil
}

// GetJob returns a read-only snapshot of a job, or ErrJobNotFound.
func (s *Service) GetJob(ctx context.Context, name Name, id string) (*Snapshot, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidQueue, name)
	}
	var fields map[string]string
	err := s.do(ctx, name, "get", func(ctx context.Context) error {
		var err error
		fields, err = s.client.HGetAll(ctx, keysFor(name).job(id)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrJobNotFound, name, id)
	}
	return record(fields).snapshot(), nil
}

// Stats counts the jobs of a queue per state.
func (s *Service) Stats(ctx context.Context, name Name) (Counts, error) {
	if !name.Valid() {
		return Counts{}, fmt.Errorf("%w: %q", ErrInvalidQueue, name)
	}
	k := keysFor(name)
	var c Counts
	err := s.do(ctx, name, "stats", func(ctx context.Context) error {
		pipe := s.client.Pipeline()
		waiting := pipe.ZCard(ctx, k.waiting())
		active := pipe.ZCard(ctx, k.active())
		delayed := pipe.ZCard(ctx, k.delayed())
		completed := pipe.ZCard(ctx, k.completed())
		failed := pipe.ZCard(ctx, k.failed())
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		c = Counts{
			Waiting:   waiting.Val(),
			Active:    active.Val(),
			Delayed:   delayed.Val(),
			Completed: completed.Val(),
			Failed:    failed.Val(),
		}
		return nil
	})
	return c, err
}

// do runs a store call, retrying store failures with a short constant
// backoff. Every failure is logged and counted; exhausting the retries
// surfaces ErrStoreUnavailable. redis.Nil passes through untouched.
func (s *Service) do(ctx context.Context, name Name, op string, fn func(context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(s.retryAttempts), retry.NewConstant(s.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		inc(ctx, s.metrics.storeErrors, name, attribute.String("op", op))
		s.logger.WarnContext(ctx, "queue store call failed",
			"queue", name,
			"op", op,
			"attempt", attempt,
			"error", err)
		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.logger.ErrorContext(ctx, "queue store unavailable",
		"queue", name,
		"op", op,
		"attempts", attempt,
		"error", err)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

type keys struct {
	prefix string
}

// keysFor returns the key layout of a queue. The hash tag keeps every key
// of one queue in the same cluster slot so scripts may touch them together.
func keysFor(name Name) keys {
	return keys{prefix: "kbase:queue:{" + string(name) + "}:"}
}

func (k keys) job(id string) string { return k.prefix + "job:" + id }
func (k keys) jobPrefix() string    { return k.prefix + "job:" }
func (k keys) waiting() string      { return k.prefix + "waiting" }
func (k keys) delayed() string      { return k.prefix + "delayed" }
func (k keys) active() string       { return k.prefix + "active" }
func (k keys) completed() string    { return k.prefix + "completed" }
func (k keys) failed() string       { return k.prefix + "failed" }
func (k keys) seq() string          { return k.prefix + "seq" }

// member is the waiting-set member of a job. The fixed-width sequence makes
// lexicographic order equal enqueue order.
func member(seq int64, id string) string {
	return fmt.Sprintf("%016x:%s", seq, id)
}

func unixMS(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
