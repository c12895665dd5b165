package services

import (
	"context"
	"time"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// SessionOpRecorder receives one observation per session store
// operation. The runtime's Prometheus collector satisfies it.
type SessionOpRecorder interface {
	RecordSessionOp(backend, operation, status string, duration time.Duration)
}

// instrumentedSessionHistory decorates a session history backend with
// per-operation metrics. The lifecycle methods pass through untouched.
type instrumentedSessionHistory struct {
	SessionHistoryService
	recorder SessionOpRecorder
	backend  string
}

// InstrumentSessionHistory wraps svc so every store operation is
// recorded with its backend, name, outcome and latency. A nil recorder
// returns svc unchanged.
func InstrumentSessionHistory(svc SessionHistoryService, recorder SessionOpRecorder) SessionHistoryService {
	if recorder == nil {
		return svc
	}
	return &instrumentedSessionHistory{
		SessionHistoryService: svc,
		recorder:              recorder,
		backend:               svc.Name(),
	}
}

func (s *instrumentedSessionHistory) observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.recorder.RecordSessionOp(s.backend, operation, status, time.Since(start))
}

func (s *instrumentedSessionHistory) CreateSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	start := time.Now()
	sess, err := s.SessionHistoryService.CreateSession(ctx, userID, sessionID)
	s.observe("create_session", start, err)
	return sess, err
}

func (s *instrumentedSessionHistory) GetSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	start := time.Now()
	sess, err := s.SessionHistoryService.GetSession(ctx, userID, sessionID)
	s.observe("get_session", start, err)
	return sess, err
}

func (s *instrumentedSessionHistory) DeleteSession(ctx context.Context, userID, sessionID string) error {
	start := time.Now()
	err := s.SessionHistoryService.DeleteSession(ctx, userID, sessionID)
	s.observe("delete_session", start, err)
	return err
}

func (s *instrumentedSessionHistory) ListSessions(ctx context.Context, userID string) ([]*types.Session, error) {
	start := time.Now()
	sessions, err := s.SessionHistoryService.ListSessions(ctx, userID)
	s.observe("list_sessions", start, err)
	return sessions, err
}

func (s *instrumentedSessionHistory) AppendMessage(ctx context.Context, userID, sessionID string, msgs []*types.Message) error {
	start := time.Now()
	err := s.SessionHistoryService.AppendMessage(ctx, userID, sessionID, msgs)
	s.observe("append_message", start, err)
	return err
}

var _ SessionHistoryService = (*instrumentedSessionHistory)(nil)
