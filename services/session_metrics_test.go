package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedOp struct {
	backend   string
	operation string
	status    string
}

type fakeOpRecorder struct {
	ops []recordedOp
}

func (r *fakeOpRecorder) RecordSessionOp(backend, operation, status string, duration time.Duration) {
	r.ops = append(r.ops, recordedOp{backend: backend, operation: operation, status: status})
}

func TestInstrumentSessionHistory(t *testing.T) {
	rec := &fakeOpRecorder{}
	svc := InstrumentSessionHistory(NewInMemorySessionHistory(), rec)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "alice", "")
	require.NoError(t, err)
	require.NoError(t, svc.AppendMessage(ctx, "alice", sess.ID, textMsgs("hi")))
	_, err = svc.GetSession(ctx, "alice", sess.ID)
	require.NoError(t, err)
	_, err = svc.ListSessions(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSession(ctx, "alice", sess.ID))

	// A failed lookup is recorded with error status.
	_, err = svc.GetSession(ctx, "alice", "missing")
	require.Error(t, err)

	const backend = "session_history/in_memory"
	require.Len(t, rec.ops, 6)
	assert.Equal(t, recordedOp{backend, "create_session", "ok"}, rec.ops[0])
	assert.Equal(t, recordedOp{backend, "append_message", "ok"}, rec.ops[1])
	assert.Equal(t, recordedOp{backend, "get_session", "ok"}, rec.ops[2])
	assert.Equal(t, recordedOp{backend, "list_sessions", "ok"}, rec.ops[3])
	assert.Equal(t, recordedOp{backend, "delete_session", "ok"}, rec.ops[4])
	assert.Equal(t, recordedOp{backend, "get_session", "error"}, rec.ops[5])
}

func TestInstrumentSessionHistoryNilRecorder(t *testing.T) {
	raw := NewInMemorySessionHistory()
	assert.Same(t, SessionHistoryService(raw), InstrumentSessionHistory(raw, nil))
}
