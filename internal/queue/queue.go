// Package queue provides a background task queue decoupled from the
// request/response path. Tasks are processed best-effort in FIFO order
// by a fixed worker pool with at-least-once delivery; handlers must be
// idempotent.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo/internal/logger"
)

// Ensure Queue implements the interface.
var _ driven.TaskQueue = (*Queue)(nil)

// Defaults for the worker pool.
const (
	DefaultWorkers    = 2
	DefaultBufferSize = 256
)

// ErrQueueClosed indicates a task was enqueued after Stop.
var ErrQueueClosed = errors.New("task queue closed")

// Handler processes one kind of task.
type Handler func(ctx context.Context, task driven.Task) error

// Queue is an in-process task queue backed by a worker pool.
type Queue struct {
	handlers map[string]Handler
	tasks    chan driven.Task
	workers  int

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures the queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBufferSize sets the pending task buffer size.
func WithBufferSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.tasks = make(chan driven.Task, n)
		}
	}
}

// New creates a stopped queue. Register handlers, then call Start.
func New(opts ...Option) *Queue {
	q := &Queue{
		handlers: make(map[string]Handler),
		tasks:    make(chan driven.Task, DefaultBufferSize),
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register binds a handler to a task kind. Must be called before Start.
func (q *Queue) Register(kind string, handler Handler) {
	q.handlers[kind] = handler
}

// Start launches the worker pool. Workers run until Stop is called.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop closes the queue and waits for the workers to finish. Buffered
// tasks that have not started yet are still executed before Stop
// returns.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

// Enqueue submits a task. It never blocks on task execution; it returns
// ErrQueueClosed after Stop and an error when the buffer is full.
func (q *Queue) Enqueue(_ context.Context, task driven.Task) error {
	// The send happens under the same mutex that guards close(q.tasks)
	// in Stop, so it can never hit a closed channel. It stays
	// non-blocking: the select only ever takes the buffered fast path.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		logger.Debug("Queue: enqueued %s task for item %s", task.Kind, task.ItemID)
		return nil
	default:
		return fmt.Errorf("task queue full, dropping %s task for item %s", task.Kind, task.ItemID)
	}
}

// worker pulls tasks until the queue closes. A failing task gets one
// delayed redelivery; handlers are idempotent so duplicate work is safe.
func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for task := range q.tasks {
		if err := q.process(ctx, task); err != nil {
			logger.Warn("Queue worker %d: %s task for item %s failed: %v (retrying once)",
				id, task.Kind, task.ItemID, err)

			time.Sleep(time.Second)
			if err := q.process(ctx, task); err != nil {
				logger.Warn("Queue worker %d: %s task for item %s failed after retry: %v",
					id, task.Kind, task.ItemID, err)
			}
		}
	}
}

// process runs one task with panic recovery.
func (q *Queue) process(ctx context.Context, task driven.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()

	handler, ok := q.handlers[task.Kind]
	if !ok {
		return fmt.Errorf("no handler for task kind %q", task.Kind)
	}
	return handler(ctx, task)
}
