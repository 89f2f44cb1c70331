package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/kbase-api/internal/events"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
)

// recordTimeout bounds the store calls that record a job's outcome.
const recordTimeout = 10 * time.Second

// JobQueue is the part of *queue.Service a worker pool needs.
type JobQueue interface {
	ClaimNext(ctx context.Context, name queue.Name, workerID string) (*queue.Job, error)
	ReportProgress(ctx context.Context, job *queue.Job, percent int) error
	Extend(ctx context.Context, job *queue.Job) error
	Complete(ctx context.Context, job *queue.Job, result queue.Result) error
	Fail(ctx context.Context, job *queue.Job, cause error) (queue.State, error)
	ReapExpired(ctx context.Context, name queue.Name) ([]queue.Reaped, error)
	Policy(name queue.Name) (queue.Policy, error)
	Lease() time.Duration
}

var _ JobQueue = (*queue.Service)(nil)

// WorkerPoolConfig holds configuration options for a worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent workers to start.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// PollInterval is how long an idle worker sleeps before claiming again.
	PollInterval time.Duration

	// Timeout aborts a job that runs longer. Zero means no limit.
	Timeout time.Duration

	// Instance prefixes worker ids, usually the host name.
	Instance string
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:  2,
		PollInterval: 250 * time.Millisecond,
	}
}

// WorkerPool runs WorkerCount claim loops against one queue.
type WorkerPool struct {
	queue       JobQueue
	name        queue.Name
	handler     Handler
	config      WorkerPoolConfig
	emitter     events.EventEmitter
	logger      *slog.Logger
	wg          sync.WaitGroup
	jobCtx      context.Context
	abortJobs   context.CancelFunc
	cancelLoops context.CancelFunc
}

// NewWorkerPool creates a pool for one queue. emitter may be nil.
func NewWorkerPool(
	q JobQueue,
	name queue.Name,
	handler Handler,
	config WorkerPoolConfig,
	emitter events.EventEmitter,
	log *slog.Logger,
) *WorkerPool {
	log = log.With("component", "worker_pool", "queue", name)
	if config.WorkerCount <= 0 {
		log.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}

	jobCtx, abort := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:     q,
		name:      name,
		handler:   handler,
		config:    config,
		emitter:   emitter,
		logger:    log,
		jobCtx:    jobCtx,
		abortJobs: abort,
	}
}

// Start launches the workers. They stop claiming when ctx is done.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancelLoops = context.WithCancel(ctx)
	p.logger.Info("starting worker pool", "workers", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s/%s/%d", p.config.Instance, p.name, i)
		p.wg.Add(1)
		go p.worker(ctx, workerID)
	}
}

// Run starts the workers and blocks until ctx is done and every in-flight
// job has been recorded.
func (p *WorkerPool) Run(ctx context.Context) {
	p.Start(ctx)
	p.Wait()
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Stop stops claiming and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	if p.cancelLoops != nil {
		p.cancelLoops()
	}
	p.wg.Wait()
	p.abortJobs()
}

// Abort cancels the context of every in-flight job. Their outcome is still
// recorded, so an aborted job is retried under its queue's policy.
func (p *WorkerPool) Abort() {
	p.abortJobs()
}

func (p *WorkerPool) worker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", workerID)
	log.Debug("starting worker")

	for {
		if ctx.Err() != nil {
			log.Debug("stopping worker")
			return
		}

		job, err := p.queue.ClaimNext(ctx, p.name, workerID)
		switch {
		case errors.Is(err, queue.ErrThrottled):
			log.Debug("admission deferred, backing off")
		case err != nil:
			if ctx.Err() == nil {
				log.Error("failed to claim job", "error", err)
			}
		case job != nil:
			p.process(job, workerID)
			continue
		}

		if !sleep(ctx, p.config.PollInterval) {
			log.Debug("stopping worker")
			return
		}
	}
}

// process runs one claimed job to a recorded outcome.
func (p *WorkerPool) process(job *queue.Job, workerID string) {
	log := p.logger.With(
		"job_id", job.ID,
		"worker_id", workerID,
		"attempt", job.Attempts,
	)
	ctx := logger.WithLogger(p.jobCtx, log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("processing job")
	start := time.Now()

	stopHeartbeat := p.heartbeat(ctx, cancel, job)
	result, err := p.execute(ctx, job)
	stopHeartbeat()

	recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancelRecord()

	if err == nil {
		if cerr := p.queue.Complete(recordCtx, job, result); cerr != nil {
			p.logRecordError(log, "complete", cerr)
			return
		}
		log.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
		p.emit(recordCtx, job, queue.StateCompleted, "", result)
		return
	}

	state, ferr := p.queue.Fail(recordCtx, job, err)
	if ferr != nil {
		p.logRecordError(log, "fail", ferr)
		return
	}
	log.Warn("job attempt failed",
		"error", err,
		"state", state,
		"duration_ms", time.Since(start).Milliseconds())
	if state.Terminal() {
		p.emit(recordCtx, job, state, err.Error(), nil)
	}
}

// execute runs the handler. With a timeout configured the handler runs on
// its own goroutine and is abandoned once the deadline passes.
func (p *WorkerPool) execute(ctx context.Context, job *queue.Job) (queue.Result, error) {
	progress := func(pctx context.Context, percent int) {
		if err := p.queue.ReportProgress(pctx, job, percent); err != nil {
			logger.FromContextOrDefault(pctx, p.logger).Warn("failed to record progress",
				"percent", percent,
				"error", err)
		}
	}

	if p.config.Timeout <= 0 {
		return p.safeHandle(ctx, job, progress)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	type outcome struct {
		result queue.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := p.safeHandle(ctx, job, progress)
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		if o.err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// safeHandle converts handler errors and panics into *HandlerError.
func (p *WorkerPool) safeHandle(ctx context.Context, job *queue.Job, progress ProgressFunc) (result queue.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &HandlerError{Queue: job.Queue, JobID: job.ID, Panic: r}
			logger.FromContextOrDefault(ctx, p.logger).Error("handler panicked", "panic", r)
		}
	}()

	result, err = p.handler.Handle(ctx, job, progress)
	if err != nil {
		return nil, &HandlerError{Queue: job.Queue, JobID: job.ID, Err: err}
	}
	return result, nil
}

// heartbeat renews the job's lease every third of the lease until stopped.
// Losing the lease cancels the job.
func (p *WorkerPool) heartbeat(ctx context.Context, cancel context.CancelFunc, job *queue.Job) (stop func()) {
	interval := p.queue.Lease() / 3
	if interval <= 0 {
		return func() {}
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				err := p.queue.Extend(hbCtx, job)
				if errors.Is(err, queue.ErrOwnershipViolation) {
					logger.FromContextOrDefault(ctx, p.logger).Warn("lost job lease, abandoning job")
					cancel()
					return
				}
				if err != nil && hbCtx.Err() == nil {
					logger.FromContextOrDefault(ctx, p.logger).Error("failed to extend lease", "error", err)
				}
			}
		}
	}()

	return func() {
		hbCancel()
		wg.Wait()
	}
}

func (p *WorkerPool) logRecordError(log *slog.Logger, op string, err error) {
	if errors.Is(err, queue.ErrOwnershipViolation) {
		log.Warn("job no longer owned, dropping outcome", "operation", op, "error", err)
		return
	}
	log.Error("failed to record job outcome", "operation", op, "error", err)
}

func (p *WorkerPool) emit(ctx context.Context, job *queue.Job, state queue.State, reason string, result queue.Result) {
	if p.emitter == nil {
		return
	}
	ev, err := events.NewJobEvent(job, state, reason, result)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build job event", "job_id", job.ID, "error", err)
		return
	}
	if err := p.emitter.EmitEvent(ctx, ev); err != nil {
		p.logger.WarnContext(ctx, "failed to emit job event", "job_id", job.ID, "error", err)
	}
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
