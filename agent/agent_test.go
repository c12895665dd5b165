package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

func collect(t *testing.T, ch <-chan *types.Message) []*types.Message {
	t.Helper()
	var out []*types.Message
	for msg := range ch {
		out = append(out, msg)
	}
	return out
}

func TestEchoAgentStreamsDeltasThenCompleted(t *testing.T) {
	a := NewEchoAgent("")
	input := []*types.Message{types.NewTextMessage(types.RoleUser, "hello streaming world")}

	ch, err := a.RunStream(context.Background(), input)
	require.NoError(t, err)
	msgs := collect(t, ch)
	require.NotEmpty(t, msgs)

	last := msgs[len(msgs)-1]
	assert.Equal(t, types.StatusCompleted, last.Status)
	assert.Equal(t, "hello streaming world", last.ContentText())

	var accumulated string
	for _, m := range msgs[:len(msgs)-1] {
		assert.Equal(t, types.StatusInProgress, m.Status)
		require.Len(t, m.Content, 1)
		assert.True(t, m.Content[0].Delta)
		assert.Equal(t, last.ID, m.Content[0].MsgID)
		accumulated += m.Content[0].Text
	}
	// Deltas reassemble into the completed text
	assert.Equal(t, last.ContentText(), accumulated)
}

func TestEchoAgentUsesLatestUserMessage(t *testing.T) {
	a := NewEchoAgent("")
	input := []*types.Message{
		types.NewTextMessage(types.RoleUser, "first"),
		types.NewTextMessage(types.RoleAssistant, "reply"),
		types.NewTextMessage(types.RoleUser, "second"),
	}

	ch, err := a.RunStream(context.Background(), input)
	require.NoError(t, err)
	msgs := collect(t, ch)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "second", msgs[len(msgs)-1].ContentText())
}

func TestEchoAgentPrefix(t *testing.T) {
	a := NewEchoAgent("you said: ")
	input := []*types.Message{types.NewTextMessage(types.RoleUser, "hi")}

	ch, err := a.RunStream(context.Background(), input)
	require.NoError(t, err)
	msgs := collect(t, ch)
	assert.Equal(t, "you said: hi", msgs[len(msgs)-1].ContentText())
}

func TestFuncAgentEmitsError(t *testing.T) {
	a := NewFuncAgent("broken", "always fails", func(ctx context.Context, input []*types.Message, e *Emitter) error {
		return errors.New("model unavailable")
	})

	ch, err := a.RunStream(context.Background(), nil)
	require.NoError(t, err)
	msgs := collect(t, ch)
	require.Len(t, msgs, 1)
	assert.Equal(t, types.MessageTypeError, msgs[0].Type)
	assert.Equal(t, types.StatusFailed, msgs[0].Status)
	assert.Contains(t, msgs[0].ContentText(), "model unavailable")
}

func TestFuncAgentCancellation(t *testing.T) {
	started := make(chan struct{})
	a := NewFuncAgent("slow", "", func(ctx context.Context, input []*types.Message, e *Emitter) error {
		close(started)
		reply := types.NewMessage(types.MessageTypeMessage, types.RoleAssistant)
		for i := 0; ; i++ {
			if err := e.Emit(reply.TextDelta("x", i)); err != nil {
				return err
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := a.RunStream(ctx, nil)
	require.NoError(t, err)

	<-started
	// Read one delta, then abandon the stream.
	<-ch
	cancel()

	// The channel must close promptly after cancellation.
	for range ch {
	}
}
