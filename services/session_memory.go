package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// InMemorySessionHistory keeps sessions in process memory. It is the
// default backend and the reference semantics for the others.
type InMemorySessionHistory struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*types.Session // userID -> sessionID -> session

	// Now is injectable for tests.
	Now func() time.Time
}

// NewInMemorySessionHistory creates an empty in-memory session store.
func NewInMemorySessionHistory() *InMemorySessionHistory {
	return &InMemorySessionHistory{
		sessions: make(map[string]map[string]*types.Session),
		Now:      time.Now,
	}
}

func (s *InMemorySessionHistory) Name() string { return "session_history/in_memory" }

func (s *InMemorySessionHistory) Start(ctx context.Context) error { return nil }

func (s *InMemorySessionHistory) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]map[string]*types.Session)
	return nil
}

func (s *InMemorySessionHistory) Health(ctx context.Context) error { return nil }

// CreateSession creates a session, generating an ID when none is given.
// An existing session is returned as-is.
func (s *InMemorySessionHistory) CreateSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userSessions := s.sessions[userID]
	if userSessions == nil {
		userSessions = make(map[string]*types.Session)
		s.sessions[userID] = userSessions
	}

	if existing, ok := userSessions[sessionID]; ok {
		return existing.Clone(), nil
	}

	now := s.Now()
	sess := &types.Session{
		ID:        sessionID,
		UserID:    userID,
		Messages:  []*types.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	userSessions[sessionID] = sess
	return sess.Clone(), nil
}

func (s *InMemorySessionHistory) GetSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return nil, errSessionNotFound(sessionID)
	}
	return sess.Clone(), nil
}

func (s *InMemorySessionHistory) DeleteSession(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions[userID], sessionID)
	return nil
}

func (s *InMemorySessionHistory) ListSessions(ctx context.Context, userID string) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Session, 0, len(s.sessions[userID]))
	for _, sess := range s.sessions[userID] {
		meta := sess.Clone()
		meta.Messages = nil
		out = append(out, meta)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *InMemorySessionHistory) AppendMessage(ctx context.Context, userID, sessionID string, msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userSessions := s.sessions[userID]
	if userSessions == nil {
		userSessions = make(map[string]*types.Session)
		s.sessions[userID] = userSessions
	}

	sess, ok := userSessions[sessionID]
	if !ok {
		now := s.Now()
		sess = &types.Session{
			ID:        sessionID,
			UserID:    userID,
			CreatedAt: now,
		}
		userSessions[sessionID] = sess
	}

	sess.Messages = append(sess.Messages, msgs...)
	sess.UpdatedAt = s.Now()
	return nil
}

var _ SessionHistoryService = (*InMemorySessionHistory)(nil)
