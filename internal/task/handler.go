package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/kbase-api/internal/queue"
)

// ErrNoHandler is returned when a queue has no registered handler.
var ErrNoHandler = errors.New("no handler registered for queue")

// ProgressFunc reports job progress as a percentage. Failures to record
// progress are logged by the pool and never surface to the handler.
type ProgressFunc func(ctx context.Context, percent int)

// Handler executes jobs of one queue. Handlers may run more than once for
// the same job, so their durable side effects must be idempotent.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job, progress ProgressFunc) (queue.Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job, progress ProgressFunc) (queue.Result, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job, progress ProgressFunc) (queue.Result, error) {
	return f(ctx, job, progress)
}

// HandlerError wraps whatever a handler returned or panicked with.
type HandlerError struct {
	Queue queue.Name
	JobID string
	Err   error
	Panic any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler panicked: %v", e.Panic)
	}
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Registry maps queues to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[queue.Name]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[queue.Name]Handler)}
}

// Register sets the handler of a queue, replacing any previous one.
func (r *Registry) Register(name queue.Name, h Handler) error {
	if !name.Valid() {
		return fmt.Errorf("%w: %q", queue.ErrInvalidQueue, name)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return nil
}

// Get returns the handler of a queue or ErrNoHandler.
func (r *Registry) Get(name queue.Name) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
	}
	return h, nil
}

// Names lists the queues with a handler, sorted.
func (r *Registry) Names() []queue.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]queue.Name, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
