package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is anything the runner streams to a client: message events and
// response lifecycle events both implement it. Sequence numbers are assigned
// by the runner, strictly increasing per stream.
type Event interface {
	EventObject() string
	EventStatus() RunStatus
	SetSequenceNumber(n int64)
	MarshalEvent() ([]byte, error)
}

// AgentRequest is a conversation processing request.
type AgentRequest struct {
	Input     []*Message `json:"input"`
	SessionID string     `json:"session_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Stream    bool       `json:"stream,omitempty"`
	Tools     []Tool     `json:"tools,omitempty"`
}

// Validate checks the request for structural problems.
func (r *AgentRequest) Validate() error {
	if r == nil || len(r.Input) == 0 {
		return NewError(ErrInvalidRequest, "request input must not be empty").
			WithHTTPStatus(400)
	}
	return nil
}

// AgentResponse is the envelope for one agent run. It moves through
// created → in_progress → completed (or failed), collecting completed
// output messages along the way.
type AgentResponse struct {
	Object         string         `json:"object"`
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id,omitempty"`
	Status         RunStatus      `json:"status"`
	Output         []*Message     `json:"output,omitempty"`
	Error          *Error         `json:"error,omitempty"`
	Usage          map[string]int `json:"usage,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	SequenceNumber int64          `json:"sequence_number,omitempty"`
}

// NewAgentResponse creates a response in the created state.
func NewAgentResponse() *AgentResponse {
	return &AgentResponse{
		Object:    "response",
		ID:        "resp_" + uuid.NewString(),
		Status:    StatusCreated,
		CreatedAt: time.Now().UTC(),
	}
}

// InProgress transitions the response to in_progress.
func (r *AgentResponse) InProgress() *AgentResponse {
	r.Status = StatusInProgress
	return r
}

// Completed transitions the response to completed and stamps CompletedAt.
func (r *AgentResponse) Completed() *AgentResponse {
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	return r
}

// Failed transitions the response to failed with the given error.
func (r *AgentResponse) Failed(e *Error) *AgentResponse {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.Error = e
	r.CompletedAt = &now
	return r
}

// AddOutput appends a completed message to the response output.
func (r *AgentResponse) AddOutput(m *Message) {
	r.Output = append(r.Output, m)
}

// Snapshot returns a copy safe to hand to another goroutine. Output messages
// are shared since they are never mutated after completion.
func (r *AgentResponse) Snapshot() *AgentResponse {
	cp := *r
	cp.Output = make([]*Message, len(r.Output))
	copy(cp.Output, r.Output)
	return &cp
}

// Event implementation.

func (r *AgentResponse) EventObject() string           { return "response" }
func (r *AgentResponse) EventStatus() RunStatus        { return r.Status }
func (r *AgentResponse) SetSequenceNumber(n int64)     { r.SequenceNumber = n }
func (r *AgentResponse) MarshalEvent() ([]byte, error) { return json.Marshal(r) }
