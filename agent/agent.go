package agent

import (
	"context"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// Agent is the contract the runtime hosts. RunStream returns a channel
// that the agent closes when the run ends; a run-level failure is
// delivered as an error message on the channel.
type Agent interface {
	// Name identifies the agent in logs, metrics and the root endpoint.
	Name() string

	// Description is a human readable summary for discovery surfaces.
	Description() string

	// RunStream executes the agent over the composed input. The
	// returned channel yields in-progress deltas and completed
	// messages, and is closed when the run finishes or ctx is
	// cancelled. Construction errors are returned directly.
	RunStream(ctx context.Context, input []*types.Message) (<-chan *types.Message, error)
}

// Emitter sends messages to a stream respecting context cancellation.
type Emitter struct {
	ctx context.Context
	out chan<- *types.Message
}

// Emit delivers one message. Returns ctx.Err() when the run was
// cancelled before the message could be sent.
func (e *Emitter) Emit(msg *types.Message) error {
	select {
	case e.out <- msg:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// RunFunc is the body of a function-backed agent.
type RunFunc func(ctx context.Context, input []*types.Message, emitter *Emitter) error

// FuncAgent adapts a plain function to the Agent interface. It is the
// simplest way to host custom logic.
type FuncAgent struct {
	name        string
	description string
	run         RunFunc
}

// NewFuncAgent wraps fn as an Agent.
func NewFuncAgent(name, description string, fn RunFunc) *FuncAgent {
	return &FuncAgent{name: name, description: description, run: fn}
}

func (a *FuncAgent) Name() string        { return a.name }
func (a *FuncAgent) Description() string { return a.description }

func (a *FuncAgent) RunStream(ctx context.Context, input []*types.Message) (<-chan *types.Message, error) {
	out := make(chan *types.Message)
	emitter := &Emitter{ctx: ctx, out: out}

	go func() {
		defer close(out)
		if err := a.run(ctx, input, emitter); err != nil && ctx.Err() == nil {
			failure := types.NewMessage(types.MessageTypeError, types.RoleAssistant)
			failure.Status = types.StatusFailed
			failure.Content = []types.Content{{
				Type: types.ContentTypeText,
				Text: err.Error(),
			}}
			// Best effort; the consumer may already be gone.
			_ = emitter.Emit(failure)
		}
	}()

	return out, nil
}

var _ Agent = (*FuncAgent)(nil)
