package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/agent"
	"github.com/rayrayraykk/agentscope-runtime/internal/telemetry"
	"github.com/rayrayraykk/agentscope-runtime/services"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// RunnerMetrics is the slice of the metrics collector the runner needs.
// A nil implementation disables instrumentation.
type RunnerMetrics interface {
	RecordAgentRun(agent, status string, duration time.Duration)
	RecordEvent(agent, object string)
	StreamStarted()
	StreamFinished()
}

// Runner executes agent runs. It owns the event protocol: context
// composition, streaming, output collection and history write-back.
type Runner struct {
	agent   agent.Agent
	context *services.ContextManager
	metrics RunnerMetrics
	logger  *zap.Logger
}

// NewRunner wires a runner. metrics may be nil.
func NewRunner(a agent.Agent, cm *services.ContextManager, m RunnerMetrics, logger *zap.Logger) *Runner {
	return &Runner{
		agent:   a,
		context: cm,
		metrics: m,
		logger:  logger.With(zap.String("component", "runner"), zap.String("agent", a.Name())),
	}
}

// Agent returns the hosted agent.
func (r *Runner) Agent() agent.Agent { return r.agent }

// StreamQuery runs the request and streams ordered events. The returned
// channel is closed when the run finishes or ctx is cancelled. The event
// order is fixed: response created, response in_progress, agent messages,
// final response (completed or failed).
func (r *Runner) StreamQuery(ctx context.Context, req *types.AgentRequest) (<-chan types.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	userID := req.UserID
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// The run identity travels on the context so agents and services
	// can read it without threading extra parameters.
	ctx = types.WithSessionID(ctx, sessionID)
	if userID != "" {
		ctx = types.WithUserID(ctx, userID)
	}
	if req.RequestID != "" {
		ctx = types.WithRequestID(ctx, req.RequestID)
	}

	ctx, endSpan := telemetry.StartRun(ctx, r.agent.Name(), sessionID)

	out := make(chan types.Event)
	go func() {
		defer close(out)
		var spanErr error
		defer func() {
			if spanErr == nil && ctx.Err() != nil {
				spanErr = ctx.Err()
			}
			endSpan(spanErr)
		}()
		if r.metrics != nil {
			r.metrics.StreamStarted()
			defer r.metrics.StreamFinished()
		}
		start := time.Now()

		var seq int64
		emit := func(ev types.Event) bool {
			seq++
			ev.SetSequenceNumber(seq)
			if r.metrics != nil {
				r.metrics.RecordEvent(r.agent.Name(), ev.EventObject())
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp := types.NewAgentResponse()
		resp.SessionID = sessionID
		if !emit(resp.Snapshot()) {
			return
		}
		if !emit(resp.InProgress().Snapshot()) {
			return
		}

		fail := func(err error) {
			spanErr = err
			r.logger.Error("run failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			emit(resp.Failed(types.AsError(err)).Snapshot())
			if r.metrics != nil {
				r.metrics.RecordAgentRun(r.agent.Name(), "failed", time.Since(start))
			}
		}

		composed, err := r.context.Compose(ctx, userID, sessionID, req.Input)
		if err != nil {
			fail(err)
			return
		}

		msgCh, err := r.agent.RunStream(ctx, composed.Messages)
		if err != nil {
			fail(err)
			return
		}

		var runErr *types.Error
		for msg := range msgCh {
			if !emit(msg) {
				return
			}
			switch {
			case msg.Type == types.MessageTypeError:
				runErr = types.NewError(types.ErrAgentError, msg.ContentText())
			case msg.Status == types.StatusCompleted:
				resp.AddOutput(msg)
			}
		}
		if ctx.Err() != nil {
			return
		}

		if runErr != nil {
			spanErr = runErr
			emit(resp.Failed(runErr).Snapshot())
			if r.metrics != nil {
				r.metrics.RecordAgentRun(r.agent.Name(), "failed", time.Since(start))
			}
			return
		}

		if err := r.context.RecordOutput(ctx, userID, sessionID, resp.Output); err != nil {
			fail(err)
			return
		}

		emit(resp.Completed().Snapshot())
		if r.metrics != nil {
			r.metrics.RecordAgentRun(r.agent.Name(), "completed", time.Since(start))
		}
		r.logger.Debug("run completed",
			zap.String("session_id", sessionID),
			zap.Int("output_messages", len(resp.Output)),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return out, nil
}

// Query runs the request to completion and returns the final response.
func (r *Runner) Query(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error) {
	events, err := r.StreamQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	var final *types.AgentResponse
	for ev := range events {
		if resp, ok := ev.(*types.AgentResponse); ok {
			final = resp
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if final == nil || !isTerminal(final.Status) {
		return nil, types.NewError(types.ErrAgentError, "run ended without a terminal response")
	}
	return final, nil
}

func isTerminal(s types.RunStatus) bool {
	return s == types.StatusCompleted || s == types.StatusFailed || s == types.StatusRejected
}
