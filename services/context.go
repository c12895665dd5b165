package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// ContextManager composes the model-facing context for a run: relevant
// long-term memory, then session history trimmed to a token budget,
// then the new input. It also writes the input back to both stores.
type ContextManager struct {
	sessions SessionHistoryService
	memory   MemoryService
	counter  *TokenCounter
	budget   int
	logger   *zap.Logger
}

// NewContextManager wires the manager. memory may be nil when no
// long-term memory service is configured; budget <= 0 disables history
// truncation.
func NewContextManager(
	sessions SessionHistoryService,
	memory MemoryService,
	counter *TokenCounter,
	budget int,
	logger *zap.Logger,
) *ContextManager {
	if counter == nil {
		counter = &TokenCounter{}
	}
	return &ContextManager{
		sessions: sessions,
		memory:   memory,
		counter:  counter,
		budget:   budget,
		logger:   logger.With(zap.String("component", "context_manager")),
	}
}

// ComposedContext is the assembled input for one run.
type ComposedContext struct {
	// Session is the resolved session (created when absent).
	Session *types.Session

	// Messages is the full model input: memory, history, then input.
	Messages []*types.Message
}

// Compose resolves the session, gathers memory and history, and appends
// the input to the session history.
func (cm *ContextManager) Compose(ctx context.Context, userID, sessionID string, input []*types.Message) (*ComposedContext, error) {
	sess, err := cm.sessions.CreateSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var recalled []*types.Message
	if cm.memory != nil && len(input) > 0 {
		recalled, err = cm.memory.SearchMemory(ctx, userID, input, DefaultRecallTopK)
		if err != nil {
			// Memory is best effort; a failed recall must not block the run.
			cm.logger.Warn("memory search failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			recalled = nil
		}
	}

	history := cm.counter.TruncateToBudget(sess.Messages, cm.budget)

	if err := cm.sessions.AppendMessage(ctx, userID, sess.ID, input); err != nil {
		return nil, err
	}

	msgs := make([]*types.Message, 0, len(recalled)+len(history)+len(input))
	msgs = append(msgs, recalled...)
	msgs = append(msgs, history...)
	msgs = append(msgs, input...)

	return &ComposedContext{Session: sess, Messages: msgs}, nil
}

// RecordOutput appends completed output messages to the session history
// and long-term memory.
func (cm *ContextManager) RecordOutput(ctx context.Context, userID, sessionID string, output []*types.Message) error {
	if len(output) == 0 {
		return nil
	}
	if err := cm.sessions.AppendMessage(ctx, userID, sessionID, output); err != nil {
		return err
	}
	if cm.memory != nil {
		if err := cm.memory.AddMemory(ctx, userID, output, sessionID); err != nil {
			cm.logger.Warn("memory write failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
	return nil
}
