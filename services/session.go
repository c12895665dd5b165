package services

import (
	"context"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// SessionHistoryService stores per-user conversation sessions and their
// message history. Implementations are safe for concurrent use.
type SessionHistoryService interface {
	Service

	// CreateSession creates a session for the user. When sessionID is
	// empty a fresh identifier is generated. Creating an existing
	// session returns the stored one unchanged.
	CreateSession(ctx context.Context, userID, sessionID string) (*types.Session, error)

	// GetSession returns the session with its full message history.
	// Returns a SESSION_NOT_FOUND error when it does not exist.
	GetSession(ctx context.Context, userID, sessionID string) (*types.Session, error)

	// DeleteSession removes the session and its history. Deleting a
	// missing session is not an error.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// ListSessions returns the user's sessions ordered by most recent
	// activity, without message payloads.
	ListSessions(ctx context.Context, userID string) ([]*types.Session, error)

	// AppendMessage appends messages to the session's history, creating
	// the session when needed.
	AppendMessage(ctx context.Context, userID, sessionID string, msgs []*types.Message) error
}

func errSessionNotFound(sessionID string) error {
	return types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
}
