package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrEmitterClosed is returned by EmitEvent after Close.
var ErrEmitterClosed = errors.New("event emitter closed")

// AsyncEmitter dispatches each event to every registered handler on a
// background goroutine. EmitEvent never waits for handlers.
type AsyncEmitter struct {
	handlers []EventHandler
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewAsyncEmitter creates a new instance of AsyncEmitter.
func NewAsyncEmitter(logger *slog.Logger) *AsyncEmitter {
	return &AsyncEmitter{
		handlers: make([]EventHandler, 0),
		logger:   logger.With("component", "async_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive events.
func (e *AsyncEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// EmitEvent schedules delivery of event. Handlers run with a context that
// keeps ctx's values but not its cancellation, so a finished request does
// not abort its side effects.
func (e *AsyncEmitter) EmitEvent(ctx context.Context, event *JobEvent) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.WarnContext(ctx, "dropping event emitted after close",
			"event_id", event.ID,
			"job_id", event.JobID)
		return ErrEmitterClosed
	}
	if len(e.handlers) == 0 {
		return nil
	}

	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)

	e.wg.Add(1)
	go e.dispatch(context.WithoutCancel(ctx), event, handlers)
	return nil
}

func (e *AsyncEmitter) dispatch(ctx context.Context, event *JobEvent, handlers []EventHandler) {
	defer e.wg.Done()
	for i, handler := range handlers {
		if err := e.safeHandle(ctx, handler, event); err != nil {
			e.logger.ErrorContext(ctx, "handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"queue", event.Queue,
				"job_id", event.JobID,
				"state", event.State)
		}
	}
}

func (e *AsyncEmitter) safeHandle(ctx context.Context, handler EventHandler, event *JobEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.HandleEvent(ctx, event)
}

// Close stops accepting events and waits for in-flight deliveries until ctx
// is done.
func (e *AsyncEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for event handlers: %w", ctx.Err())
	}
}

var _ EventEmitter = (*AsyncEmitter)(nil)
