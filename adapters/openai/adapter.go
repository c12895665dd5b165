package openai

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/engine"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// ResponsesPath is the compatible-mode endpoint.
const ResponsesPath = "/compatible-mode/v1/responses"

// Adapter serves the OpenAI Responses API on top of the runner.
type Adapter struct {
	runner *engine.Runner
	logger *zap.Logger
}

// New builds an adapter.
func New(runner *engine.Runner, logger *zap.Logger) *Adapter {
	return &Adapter{
		runner: runner,
		logger: logger.With(zap.String("component", "openai_adapter")),
	}
}

// Register mounts the adapter's routes.
func (ad *Adapter) Register(mount func(pattern string, h http.Handler)) {
	mount("POST "+ResponsesPath, http.HandlerFunc(ad.handleResponses))
}

// request is the accepted subset of the Responses API request body.
// Input is either a plain string or a list of input messages.
type request struct {
	Model    string            `json:"model,omitempty"`
	Input    json.RawMessage   `json:"input"`
	Stream   bool              `json:"stream,omitempty"`
	User     string            `json:"user,omitempty"`
	Tools    []toolDef         `json:"tools,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// toolDef is a function tool declaration in the flattened Responses
// API shape.
type toolDef struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type inputMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type inputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// responseObject is the wire shape of a Responses API response.
type responseObject struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	CreatedAt int64             `json:"created_at"`
	Status    string            `json:"status"`
	Model     string            `json:"model,omitempty"`
	Output    []outputItem      `json:"output"`
	Error     *responseError    `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type outputItem struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Status  string          `json:"status"`
	Content []outputContent `json:"content"`
}

type outputContent struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Annotations []any  `json:"annotations"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// streamEvent is one SSE frame of the Responses event stream.
type streamEvent struct {
	Type           string          `json:"type"`
	SequenceNumber int64           `json:"sequence_number"`
	Response       *responseObject `json:"response,omitempty"`
	ItemID         string          `json:"item_id,omitempty"`
	Delta          string          `json:"delta,omitempty"`
}

func (ad *Adapter) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ad.writeAPIError(w, http.StatusBadRequest, "invalid_request_error", "malformed request body")
		return
	}

	agentReq, err := ad.toAgentRequest(&req)
	if err != nil {
		ad.writeAPIError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	if req.Stream {
		ad.streamResponses(w, r, &req, agentReq)
		return
	}

	resp, err := ad.runner.Query(r.Context(), agentReq)
	if err != nil {
		ad.logger.Error("responses query failed", zap.Error(err))
		ad.writeAPIError(w, types.StatusOf(err), "api_error", types.AsError(err).Message)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ad.toResponseObject(&req, resp))
}

func (ad *Adapter) streamResponses(w http.ResponseWriter, r *http.Request, req *request, agentReq *types.AgentRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ad.writeAPIError(w, http.StatusInternalServerError, "api_error", "streaming unsupported by connection")
		return
	}

	events, err := ad.runner.StreamQuery(r.Context(), agentReq)
	if err != nil {
		ad.writeAPIError(w, types.StatusOf(err), "api_error", types.AsError(err).Message)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writeEvent := func(name string, ev streamEvent) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			ad.logger.Error("event marshal failed", zap.Error(err))
			return true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for ev := range events {
		switch e := ev.(type) {
		case *types.AgentResponse:
			name := "response." + string(e.Status)
			if !writeEvent(name, streamEvent{
				Type:           name,
				SequenceNumber: e.SequenceNumber,
				Response:       ad.toResponseObject(req, e),
			}) {
				return
			}
		case *types.Message:
			if e.Status != types.StatusInProgress {
				continue
			}
			for _, c := range e.Content {
				if !c.Delta || c.Text == "" {
					continue
				}
				if !writeEvent("response.output_text.delta", streamEvent{
					Type:           "response.output_text.delta",
					SequenceNumber: e.SequenceNumber,
					ItemID:         e.ID,
					Delta:          c.Text,
				}) {
					return
				}
			}
		}
	}
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// toAgentRequest converts the Responses request into runtime input.
func (ad *Adapter) toAgentRequest(req *request) (*types.AgentRequest, error) {
	if len(req.Input) == 0 {
		return nil, fmt.Errorf("input is required")
	}

	var msgs []*types.Message

	var text string
	if err := json.Unmarshal(req.Input, &text); err == nil {
		msgs = []*types.Message{types.NewTextMessage(types.RoleUser, text)}
	} else {
		var items []inputMessage
		if err := json.Unmarshal(req.Input, &items); err != nil {
			return nil, fmt.Errorf("input must be a string or a message array")
		}
		for _, item := range items {
			role := types.Role(item.Role)
			if role == "" {
				role = types.RoleUser
			}
			msgs = append(msgs, types.NewTextMessage(role, contentText(item.Content)))
		}
	}

	var tools []types.Tool
	for _, def := range req.Tools {
		if def.Type != "" && def.Type != "function" {
			continue
		}
		if def.Name == "" {
			return nil, fmt.Errorf("function tools require a name")
		}
		tools = append(tools, types.NewFunctionTool(def.Name, def.Description, def.Parameters))
	}

	return &types.AgentRequest{
		Input:     msgs,
		UserID:    req.User,
		SessionID: req.Metadata["session_id"],
		Tools:     tools,
	}, nil
}

// contentText accepts both the string form and the typed part array.
func contentText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []inputContent
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	out := ""
	for _, p := range parts {
		out += p.Text
	}
	return out
}

func (ad *Adapter) toResponseObject(req *request, resp *types.AgentResponse) *responseObject {
	obj := &responseObject{
		ID:        resp.ID,
		Object:    "response",
		CreatedAt: resp.CreatedAt.Unix(),
		Status:    string(resp.Status),
		Model:     req.Model,
		Output:    make([]outputItem, 0, len(resp.Output)),
		Metadata:  map[string]string{"session_id": resp.SessionID},
	}
	if resp.Error != nil {
		obj.Error = &responseError{Code: string(resp.Error.Code), Message: resp.Error.Message}
	}
	for _, msg := range resp.Output {
		obj.Output = append(obj.Output, outputItem{
			Type:   "message",
			ID:     msg.ID,
			Role:   string(msg.Role),
			Status: string(msg.Status),
			Content: []outputContent{{
				Type:        "output_text",
				Text:        msg.ContentText(),
				Annotations: []any{},
			}},
		})
	}
	return obj
}

func (ad *Adapter) writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	body := map[string]any{
		"error": map[string]any{
			"type":    code,
			"message": message,
		},
	}
	_ = json.NewEncoder(w).Encode(body)
}
