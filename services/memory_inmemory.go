package services

import (
	"context"
	"sort"
	"sync"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// InMemoryMemory keeps long-term memory in process memory.
type InMemoryMemory struct {
	mu    sync.RWMutex
	store map[string]map[string][]*types.Message // userID -> sessionID -> messages
}

// NewInMemoryMemory creates an empty in-memory memory service.
func NewInMemoryMemory() *InMemoryMemory {
	return &InMemoryMemory{
		store: make(map[string]map[string][]*types.Message),
	}
}

func (m *InMemoryMemory) Name() string { return "memory/in_memory" }

func (m *InMemoryMemory) Start(ctx context.Context) error { return nil }

func (m *InMemoryMemory) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]map[string][]*types.Message)
	return nil
}

func (m *InMemoryMemory) Health(ctx context.Context) error { return nil }

func (m *InMemoryMemory) AddMemory(ctx context.Context, userID string, msgs []*types.Message, sessionID string) error {
	if len(msgs) == 0 {
		return nil
	}
	key := memorySessionKey(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := m.store[userID]
	if sessions == nil {
		sessions = make(map[string][]*types.Message)
		m.store[userID] = sessions
	}
	sessions[key] = append(sessions[key], msgs...)
	return nil
}

func (m *InMemoryMemory) SearchMemory(ctx context.Context, userID string, query []*types.Message, topK int) ([]*types.Message, error) {
	keywords := queryKeywords(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*types.Message
	for _, key := range m.sortedSessionKeys(userID) {
		all = append(all, m.store[userID][key]...)
	}
	return rankByOverlap(all, keywords, topK), nil
}

func (m *InMemoryMemory) ListMemory(ctx context.Context, userID string, pageNum, pageSize int) ([]*types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*types.Message
	for _, key := range m.sortedSessionKeys(userID) {
		all = append(all, m.store[userID][key]...)
	}
	return pageSlice(all, pageNum, pageSize), nil
}

func (m *InMemoryMemory) DeleteMemory(ctx context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == "" {
		delete(m.store, userID)
		return nil
	}
	delete(m.store[userID], memorySessionKey(sessionID))
	return nil
}

// sortedSessionKeys gives deterministic iteration order. Caller holds
// at least a read lock.
func (m *InMemoryMemory) sortedSessionKeys(userID string) []string {
	keys := make([]string, 0, len(m.store[userID]))
	for k := range m.store[userID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ MemoryService = (*InMemoryMemory)(nil)
