package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/events"
	"github.com/phrazzld/kbase-api/internal/queue"
	"golang.org/x/sync/errgroup"
)

// ErrRunnerRunning is returned by Start when the runner is already running.
var ErrRunnerRunning = errors.New("runner already running")

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// PollInterval is how long idle workers sleep between claims.
	PollInterval time.Duration

	// ReapInterval is how often expired leases are swept.
	ReapInterval time.Duration

	// Instance identifies this process in worker ids.
	Instance string
}

// RunnerConfigFromConfig builds a RunnerConfig from the application config.
func RunnerConfigFromConfig(cfg config.QueueConfig) RunnerConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return RunnerConfig{
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		ReapInterval: time.Duration(cfg.ReapIntervalMS) * time.Millisecond,
		Instance:     fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

// Runner supervises one worker pool per registered queue and the lease reaper.
type Runner struct {
	queue    JobQueue
	registry *Registry
	config   RunnerConfig
	emitter  events.EventEmitter
	logger   *slog.Logger

	mu      sync.Mutex
	pools   []*WorkerPool
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// NewRunner creates a Runner. emitter may be nil.
func NewRunner(q JobQueue, registry *Registry, cfg RunnerConfig, emitter events.EventEmitter, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 15 * time.Second
	}
	return &Runner{
		queue:    q,
		registry: registry,
		config:   cfg,
		emitter:  emitter,
		logger:   logger.With("component", "task_runner"),
	}
}

// Start launches a pool for every queue with a handler and a positive
// worker count, plus the reaper. It returns once everything is running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrRunnerRunning
	}

	names := r.registry.Names()
	if len(names) == 0 {
		return fmt.Errorf("%w: registry is empty", ErrNoHandler)
	}

	pools := make([]*WorkerPool, 0, len(names))
	for _, name := range names {
		pol, err := r.queue.Policy(name)
		if err != nil {
			return err
		}
		if pol.Workers <= 0 {
			r.logger.Info("queue has no workers configured, skipping", "queue", name)
			continue
		}
		h, err := r.registry.Get(name)
		if err != nil {
			return err
		}
		pools = append(pools, NewWorkerPool(r.queue, name, h, WorkerPoolConfig{
			WorkerCount:  pol.Workers,
			PollInterval: r.config.PollInterval,
			Timeout:      pol.Timeout,
			Instance:     r.config.Instance,
		}, r.emitter, r.logger))
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pools {
		p := p
		g.Go(func() error {
			p.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		r.reapLoop(gctx, names)
		return nil
	})

	r.pools = pools
	r.cancel = cancel
	r.group = g
	r.running = true
	r.logger.Info("task runner started", "pools", len(pools), "instance", r.config.Instance)
	return nil
}

// Stop stops claiming and waits for in-flight jobs. If ctx expires first the
// remaining jobs are aborted; their outcomes are still recorded before Stop
// returns.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel, g, pools := r.cancel, r.group, r.pools
	r.mu.Unlock()

	r.logger.Info("stopping task runner")
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		r.abort(pools)
		r.logger.Info("task runner stopped")
		return err
	case <-ctx.Done():
		r.logger.Warn("shutdown grace period elapsed, aborting in-flight jobs")
		r.abort(pools)
		err := <-done
		return errors.Join(ctx.Err(), err)
	}
}

func (r *Runner) abort(pools []*WorkerPool) {
	for _, p := range pools {
		p.Abort()
	}
}

// reapLoop turns expired leases into failed attempts until ctx is done.
func (r *Runner) reapLoop(ctx context.Context, names []queue.Name) {
	ticker := time.NewTicker(r.config.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(ctx, names...)
		}
	}
}

// ReapOnce sweeps the named queues once and returns the number of jobs reaped.
func (r *Runner) ReapOnce(ctx context.Context, names ...queue.Name) int {
	total := 0
	for _, name := range names {
		reaped, err := r.queue.ReapExpired(ctx, name)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error("failed to reap expired jobs", "queue", name, "error", err)
			}
			continue
		}
		for _, j := range reaped {
			r.logger.Warn("reaped job with expired lease",
				"queue", name,
				"job_id", j.JobID,
				"state", j.State)
			if j.State.Terminal() && r.emitter != nil {
				ev := &events.JobEvent{
					ID:            uuid.New(),
					Queue:         name,
					JobID:         j.JobID,
					State:         j.State,
					FailureReason: queue.ReasonLeaseExpired,
					OccurredAt:    time.Now().UTC(),
				}
				if err := r.emitter.EmitEvent(ctx, ev); err != nil {
					r.logger.Warn("failed to emit job event", "job_id", j.JobID, "error", err)
				}
			}
		}
		total += len(reaped)
	}
	return total
}
