package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// Store persists task records. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveTask creates or updates a task record.
	SaveTask(ctx context.Context, task *Task) error

	// GetTask retrieves a task by ID. Returns a TASK_NOT_FOUND error
	// when absent.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// DeleteTask removes a task. Missing tasks are not an error.
	DeleteTask(ctx context.Context, taskID string) error

	// Cleanup removes terminal tasks older than the duration and
	// returns how many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases store resources.
	Close() error
}

func errTaskNotFound(taskID string) error {
	return types.NewError(types.ErrTaskNotFound, "task not found: "+taskID)
}

// MemoryStore keeps tasks in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (s *MemoryStore) SaveTask(ctx context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "task must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, errTaskNotFound(taskID)
	}
	clone := *task
	return &clone, nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, task := range s.tasks {
		if task.Status.IsTerminal() && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
