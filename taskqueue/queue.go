package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/internal/telemetry"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// Handler executes one task. The returned value is stored as the task
// result.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Metrics receives task lifecycle observations. The interface is
// satisfied by the runtime's Prometheus collector.
type Metrics interface {
	RecordTask(name, status string, duration time.Duration)
	SetQueueDepth(depth int)
}

// Config sizes the worker pool.
type Config struct {
	// Workers is the number of worker goroutines.
	Workers int

	// QueueSize bounds the backlog. Enqueue fails when full.
	QueueSize int

	// MaxRetries is how many times a failing task is re-attempted.
	MaxRetries int

	// Retention is how long terminal tasks stay queryable. Zero
	// disables the janitor.
	Retention time.Duration
}

// DefaultConfig returns sensible pool defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  256,
		MaxRetries: 3,
		Retention:  24 * time.Hour,
	}
}

// Queue runs registered handlers on a bounded worker pool and persists
// task state in a Store.
type Queue struct {
	cfg   Config
	store Store

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	tasks     chan *Task
	cancelled sync.Map
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	closed    atomic.Bool

	metrics Metrics
	logger  *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewQueue creates a queue over the given store. metrics may be nil.
func NewQueue(cfg Config, store Store, metrics Metrics, logger *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Queue{
		cfg:      cfg,
		store:    store,
		handlers: make(map[string]Handler),
		tasks:    make(chan *Task, cfg.QueueSize),
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "task_queue")),
	}
}

// RegisterHandler binds a handler to a task name. Registering the same
// name twice replaces the handler.
func (q *Queue) RegisterHandler(name string, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[name] = h
}

// HasHandler reports whether a handler is registered for the name.
func (q *Queue) HasHandler(name string) bool {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	_, ok := q.handlers[name]
	return ok
}

// Name implements the service lifecycle contract.
func (q *Queue) Name() string { return "task_queue" }

// Start launches the worker pool and the retention janitor.
func (q *Queue) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}

	if q.cfg.Retention > 0 {
		q.wg.Add(1)
		go q.janitor(runCtx)
	}

	q.logger.Info("task queue started",
		zap.Int("workers", q.cfg.Workers),
		zap.Int("queue_size", q.cfg.QueueSize),
	)
	return nil
}

// Stop drains the pool. Pending tasks stay in the store as pending and
// are not executed.
func (q *Queue) Stop(ctx context.Context) error {
	if q.closed.Swap(true) {
		return nil
	}
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	return q.store.Close()
}

// Health reports whether the queue accepts work.
func (q *Queue) Health(ctx context.Context) error {
	if q.closed.Load() {
		return types.NewError(types.ErrServiceUnhealthy, "task queue stopped")
	}
	return nil
}

// Enqueue persists a new task and hands it to the pool. It fails when
// no handler is registered for the name or the backlog is full.
func (q *Queue) Enqueue(ctx context.Context, name string, payload json.RawMessage) (*Task, error) {
	if q.closed.Load() {
		return nil, types.NewError(types.ErrServiceUnhealthy, "task queue stopped")
	}
	if !q.HasHandler(name) {
		return nil, types.NewError(types.ErrTaskNotFound, "no handler registered for task: "+name)
	}

	task := NewTask(name, payload)
	if err := q.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	select {
	case q.tasks <- task:
		q.submitted.Add(1)
		q.observeDepth()
		return task, nil
	default:
		// Backlog full. Remove the record so the ID never resolves to
		// a task that will not run.
		_ = q.store.DeleteTask(ctx, task.ID)
		return nil, types.NewError(types.ErrRateLimited, "task queue is full").
			WithRetryable(true)
	}
}

// GetTask returns the stored task state.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	return q.store.GetTask(ctx, taskID)
}

// Cancel marks a pending task cancelled. Tasks already running or in a
// terminal state cannot be cancelled; cancelling an already cancelled
// task is a no-op.
func (q *Queue) Cancel(ctx context.Context, taskID string) (*Task, error) {
	// Mark the skip-set entry before inspecting the stored status so a
	// worker picking the task up concurrently is guaranteed to see it.
	q.cancelled.Store(taskID, struct{}{})

	task, err := q.store.GetTask(ctx, taskID)
	if err != nil {
		q.cancelled.Delete(taskID)
		return nil, err
	}
	switch task.Status {
	case StatusCancelled:
		// A racing worker honored the skip-set entry first.
		q.cancelled.Delete(taskID)
		return task, nil
	case StatusPending:
	default:
		q.cancelled.Delete(taskID)
		return nil, types.NewError(types.ErrInvalidRequest, "task is not pending: "+string(task.Status))
	}

	now := time.Now()
	task.Status = StatusCancelled
	task.CompletedAt = &now
	if err := q.store.SaveTask(ctx, task); err != nil {
		q.cancelled.Delete(taskID)
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}
	q.record(task)
	return task, nil
}

// Stats reports queue counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Queued:    len(q.tasks),
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.observeDepth()
			if _, ok := q.cancelled.LoadAndDelete(task.ID); ok {
				continue
			}
			q.execute(ctx, task)
		}
	}
}

func (q *Queue) execute(ctx context.Context, task *Task) {
	ctx, endSpan := telemetry.StartTask(ctx, task.Name, task.ID)
	defer func() {
		if task.Status == StatusError {
			endSpan(errors.New(task.Error))
		} else {
			endSpan(nil)
		}
	}()

	q.handlersMu.RLock()
	handler := q.handlers[task.Name]
	q.handlersMu.RUnlock()
	if handler == nil {
		// Handler was unregistered between enqueue and pickup.
		q.finishWithError(ctx, task, "handler no longer registered")
		return
	}

	now := time.Now()
	task.Status = StatusRunning
	task.StartedAt = &now
	if err := q.store.SaveTask(ctx, task); err != nil {
		q.logger.Warn("failed to mark task running", zap.String("task_id", task.ID), zap.Error(err))
	}

	// A Cancel call may have raced with the pickup above and observed the
	// task as still pending. Honor it before the handler runs.
	if _, ok := q.cancelled.LoadAndDelete(task.ID); ok {
		done := time.Now()
		task.Status = StatusCancelled
		task.CompletedAt = &done
		if err := q.store.SaveTask(ctx, task); err != nil {
			q.logger.Warn("failed to persist cancellation", zap.String("task_id", task.ID), zap.Error(err))
		}
		return
	}

	var lastErr error
	for attempt := 0; attempt <= q.cfg.MaxRetries; attempt++ {
		task.RetryCount = attempt
		result, err := q.runHandler(ctx, handler, task.Payload)
		if err == nil {
			done := time.Now()
			task.Status = StatusFinished
			task.Result = result
			task.Error = ""
			task.CompletedAt = &done
			if err := q.store.SaveTask(ctx, task); err != nil {
				q.logger.Warn("failed to persist task result", zap.String("task_id", task.ID), zap.Error(err))
			}
			q.completed.Add(1)
			q.record(task)
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	q.finishWithError(ctx, task, lastErr.Error())
}

func (q *Queue) finishWithError(ctx context.Context, task *Task, msg string) {
	done := time.Now()
	task.Status = StatusError
	task.Error = msg
	task.CompletedAt = &done
	if err := q.store.SaveTask(ctx, task); err != nil {
		q.logger.Warn("failed to persist task failure", zap.String("task_id", task.ID), zap.Error(err))
	}
	q.failed.Add(1)
	q.record(task)
	q.logger.Warn("task failed",
		zap.String("task_id", task.ID),
		zap.String("task", task.Name),
		zap.String("error", msg),
	)
}

// runHandler isolates handler panics.
func (q *Queue) runHandler(ctx context.Context, h Handler, payload json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

func (q *Queue) janitor(ctx context.Context) {
	defer q.wg.Done()

	interval := q.cfg.Retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := q.store.Cleanup(ctx, q.cfg.Retention)
			if err != nil {
				q.logger.Warn("task cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				q.logger.Info("cleaned up terminal tasks", zap.Int("removed", removed))
			}
		}
	}
}

func (q *Queue) observeDepth() {
	if q.metrics != nil {
		q.metrics.SetQueueDepth(len(q.tasks))
	}
}

func (q *Queue) record(task *Task) {
	if q.metrics != nil {
		q.metrics.RecordTask(task.Name, string(task.Status), task.Duration())
	}
}
