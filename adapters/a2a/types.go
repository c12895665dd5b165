package a2a

import "encoding/json"

// CapabilityType classifies what an agent offers over A2A.
type CapabilityType string

const (
	CapabilityTypeQuery  CapabilityType = "query"
	CapabilityTypeStream CapabilityType = "stream"
)

// Capability describes one capability on the agent card.
type Capability struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Type        CapabilityType `json:"type"`
}

// AgentCard is the discovery document served to remote agents.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	URL          string            `json:"url"`
	Version      string            `json:"version"`
	Capabilities []Capability      `json:"capabilities"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// JSON-RPC 2.0 envelope types.

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Part is one piece of an A2A message body. Only text parts are
// understood; other kinds are ignored.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// PeerMessage is the message shape remote agents exchange.
type PeerMessage struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// sendParams are the parameters of message/send and message/stream.
type sendParams struct {
	Message   PeerMessage `json:"message"`
	SessionID string      `json:"sessionId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
}

// sendResult is the result of a message/send call.
type sendResult struct {
	SessionID string        `json:"sessionId"`
	Status    string        `json:"status"`
	Messages  []PeerMessage `json:"messages"`
}
