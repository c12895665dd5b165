package taskqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a queued task.
type Status string

const (
	// StatusPending indicates the task is waiting for a worker.
	StatusPending Status = "pending"

	// StatusRunning indicates the task is currently executing.
	StatusRunning Status = "running"

	// StatusFinished indicates the task completed successfully.
	StatusFinished Status = "finished"

	// StatusError indicates the task failed after exhausting retries.
	StatusError Status = "error"

	// StatusCancelled indicates the task was cancelled before a worker
	// picked it up.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true when the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusCancelled
}

// Task is one unit of queued work.
type Task struct {
	// ID is the unique task identifier.
	ID string `json:"id"`

	// Name selects the registered handler.
	Name string `json:"name"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Payload is the raw request body handed to the handler.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Result holds the handler's return value once finished.
	Result any `json:"result,omitempty"`

	// Error holds the failure message once errored.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of attempts made so far.
	RetryCount int `json:"retry_count"`

	// CreatedAt is when the task was enqueued.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the first attempt began.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a pending task for the named handler.
func NewTask(name string, payload json.RawMessage) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Duration returns the wall time of the task's execution, or the time
// since it started when still running.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	if t.CompletedAt != nil {
		return t.CompletedAt.Sub(*t.StartedAt)
	}
	return time.Since(*t.StartedAt)
}
