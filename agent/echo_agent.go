package agent

import (
	"context"
	"strings"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// EchoAgent streams the latest user message back word by word. It is
// the default agent for smoke tests and exercises the full delta
// protocol without any model dependency.
type EchoAgent struct {
	prefix string
}

// NewEchoAgent creates an echo agent. prefix, when non-empty, is
// prepended to the echoed reply.
func NewEchoAgent(prefix string) *EchoAgent {
	return &EchoAgent{prefix: prefix}
}

func (a *EchoAgent) Name() string { return "echo" }

func (a *EchoAgent) Description() string {
	return "Echoes the latest user message back as a token stream."
}

func (a *EchoAgent) RunStream(ctx context.Context, input []*types.Message) (<-chan *types.Message, error) {
	out := make(chan *types.Message)
	emitter := &Emitter{ctx: ctx, out: out}

	go func() {
		defer close(out)

		text := latestUserText(input)
		if a.prefix != "" {
			text = a.prefix + text
		}

		reply := types.NewMessage(types.MessageTypeMessage, types.RoleAssistant)
		words := strings.Fields(text)
		for i, word := range words {
			chunk := word
			if i < len(words)-1 {
				chunk += " "
			}
			if err := emitter.Emit(reply.TextDelta(chunk, i)); err != nil {
				return
			}
		}
		_ = emitter.Emit(reply.Completed(text))
	}()

	return out, nil
}

// latestUserText returns the text of the most recent user message, or
// the last message's text when no user message exists.
func latestUserText(input []*types.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == types.RoleUser {
			return input[i].ContentText()
		}
	}
	if len(input) > 0 {
		return input[len(input)-1].ContentText()
	}
	return ""
}

var _ Agent = (*EchoAgent)(nil)
