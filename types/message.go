package types

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageType classifies a message event on the stream.
type MessageType string

const (
	MessageTypeMessage            MessageType = "message"
	MessageTypeFunctionCall       MessageType = "function_call"
	MessageTypeFunctionCallOutput MessageType = "function_call_output"
	MessageTypePluginCall         MessageType = "plugin_call"
	MessageTypePluginCallOutput   MessageType = "plugin_call_output"
	MessageTypeReasoning          MessageType = "reasoning"
	MessageTypeError              MessageType = "error"
	MessageTypeHeartbeat          MessageType = "heartbeat"
)

// RunStatus is the lifecycle status of a message or response.
type RunStatus string

const (
	StatusCreated    RunStatus = "created"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusRejected   RunStatus = "rejected"
	StatusUnknown    RunStatus = "unknown"
)

// ContentType classifies a content part inside a message.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeData  ContentType = "data"
	ContentTypeImage ContentType = "image"
	ContentTypeAudio ContentType = "audio"
)

// Content is one part of a message body. Delta parts carry incremental text
// for a message identified by MsgID; Index orders parts within the message.
type Content struct {
	Type     ContentType    `json:"type"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
	Delta    bool           `json:"delta,omitempty"`
	Index    int            `json:"index"`
	MsgID    string         `json:"msg_id,omitempty"`
}

// FunctionCall is a tool invocation request emitted by an agent.
// Arguments is a JSON-encoded string, matching the wire format of
// OpenAI-style tool calling.
type FunctionCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallOutput is the result of executing a function call.
type FunctionCallOutput struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// Message is a single conversation event. Messages are also stream events:
// a message is first emitted with status in_progress carrying delta content,
// then once more with status completed carrying the full content.
type Message struct {
	Object         string      `json:"object"`
	ID             string      `json:"id"`
	Type           MessageType `json:"type"`
	Role           Role        `json:"role,omitempty"`
	Content        []Content   `json:"content,omitempty"`
	Status         RunStatus   `json:"status"`
	SequenceNumber int64       `json:"sequence_number,omitempty"`
}

// NewMessage creates a message of the given type in the created state.
func NewMessage(msgType MessageType, role Role) *Message {
	return &Message{
		Object: "message",
		ID:     "msg_" + uuid.NewString(),
		Type:   msgType,
		Role:   role,
		Status: StatusCreated,
	}
}

// NewTextMessage creates a completed plain-text message.
func NewTextMessage(role Role, text string) *Message {
	m := NewMessage(MessageTypeMessage, role)
	m.Status = StatusCompleted
	m.Content = []Content{{Type: ContentTypeText, Text: text}}
	return m
}

// NewFunctionCallMessage creates a completed function_call message.
func NewFunctionCallMessage(call FunctionCall) *Message {
	m := NewMessage(MessageTypeFunctionCall, RoleAssistant)
	m.Status = StatusCompleted
	m.Content = []Content{{Type: ContentTypeData, Data: map[string]any{
		"call_id":   call.CallID,
		"name":      call.Name,
		"arguments": call.Arguments,
	}}}
	return m
}

// NewFunctionCallOutputMessage creates a completed function_call_output message.
func NewFunctionCallOutputMessage(out FunctionCallOutput) *Message {
	m := NewMessage(MessageTypeFunctionCallOutput, RoleTool)
	m.Status = StatusCompleted
	m.Content = []Content{{Type: ContentTypeData, Data: map[string]any{
		"call_id": out.CallID,
		"output":  out.Output,
	}}}
	return m
}

// TextDelta derives an in_progress delta event for this message carrying an
// incremental text chunk. The delta references the parent via MsgID so
// clients can accumulate chunks per message.
func (m *Message) TextDelta(delta string, index int) *Message {
	return &Message{
		Object: "message",
		ID:     m.ID,
		Type:   m.Type,
		Role:   m.Role,
		Status: StatusInProgress,
		Content: []Content{{
			Type:  ContentTypeText,
			Text:  delta,
			Delta: true,
			Index: index,
			MsgID: m.ID,
		}},
	}
}

// Completed returns a copy of the message marked completed with the given
// full text as its content.
func (m *Message) Completed(fullText string) *Message {
	return &Message{
		Object:  "message",
		ID:      m.ID,
		Type:    m.Type,
		Role:    m.Role,
		Status:  StatusCompleted,
		Content: []Content{{Type: ContentTypeText, Text: fullText}},
	}
}

// ContentText concatenates all text parts of the message.
func (m *Message) ContentText() string {
	var sb strings.Builder
	for _, c := range m.Content {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// GetFunctionCall extracts the function call from a function_call message.
// Returns false if the message is not a well-formed function call.
func (m *Message) GetFunctionCall() (FunctionCall, bool) {
	if m.Type != MessageTypeFunctionCall {
		return FunctionCall{}, false
	}
	for _, c := range m.Content {
		if c.Type != ContentTypeData || c.Data == nil {
			continue
		}
		fc := FunctionCall{}
		if v, ok := c.Data["call_id"].(string); ok {
			fc.CallID = v
		}
		if v, ok := c.Data["name"].(string); ok {
			fc.Name = v
		}
		if v, ok := c.Data["arguments"].(string); ok {
			fc.Arguments = v
		}
		if fc.Name != "" {
			return fc, true
		}
	}
	return FunctionCall{}, false
}

// Event implementation.

func (m *Message) EventObject() string           { return "message" }
func (m *Message) EventStatus() RunStatus        { return m.Status }
func (m *Message) SetSequenceNumber(n int64)     { m.SequenceNumber = n }
func (m *Message) MarshalEvent() ([]byte, error) { return json.Marshal(m) }
