package a2a

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/engine"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// CardPath is where the agent card is served.
const CardPath = "/.well-known/agent-card.json"

// RPCPath is the JSON-RPC endpoint.
const RPCPath = "/a2a"

// Adapter bridges the runner to the A2A protocol.
type Adapter struct {
	runner *engine.Runner
	card   AgentCard
	logger *zap.Logger
}

// New builds an adapter. baseURL is the externally reachable address
// recorded on the agent card; version identifies the build.
func New(runner *engine.Runner, baseURL, version string, logger *zap.Logger) *Adapter {
	a := runner.Agent()
	card := AgentCard{
		Name:        a.Name(),
		Description: a.Description(),
		URL:         strings.TrimSuffix(baseURL, "/") + RPCPath,
		Version:     version,
		Capabilities: []Capability{
			{Name: "message/send", Description: "Process a message and return the full reply.", Type: CapabilityTypeQuery},
			{Name: "message/stream", Description: "Process a message and stream events as SSE.", Type: CapabilityTypeStream},
		},
	}
	return &Adapter{
		runner: runner,
		card:   card,
		logger: logger.With(zap.String("component", "a2a_adapter")),
	}
}

// Card returns the discovery document.
func (ad *Adapter) Card() AgentCard { return ad.card }

// Register mounts the adapter's routes.
func (ad *Adapter) Register(mount func(pattern string, h http.Handler)) {
	mount("GET "+CardPath, http.HandlerFunc(ad.handleCard))
	mount("POST "+RPCPath, http.HandlerFunc(ad.handleRPC))
}

func (ad *Adapter) handleCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(ad.card)
}

func (ad *Adapter) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error"},
		})
		return
	}
	if req.JSONRPC != "2.0" {
		writeRPC(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeInvalidRequest, Message: "jsonrpc must be \"2.0\""},
		})
		return
	}

	switch req.Method {
	case "message/send":
		ad.handleSend(w, r, &req)
	case "message/stream":
		ad.handleStream(w, r, &req)
	default:
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method},
		})
	}
}

func (ad *Adapter) parseParams(req *rpcRequest) (*types.AgentRequest, *rpcError) {
	var params sendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	text := partsText(params.Message.Parts)
	if text == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "message has no text parts"}
	}

	role := types.RoleUser
	if params.Message.Role != "" {
		role = types.Role(params.Message.Role)
	}
	return &types.AgentRequest{
		Input:     []*types.Message{types.NewTextMessage(role, text)},
		SessionID: params.SessionID,
		UserID:    params.UserID,
	}, nil
}

func (ad *Adapter) handleSend(w http.ResponseWriter, r *http.Request, req *rpcRequest) {
	agentReq, rpcErr := ad.parseParams(req)
	if rpcErr != nil {
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}

	resp, err := ad.runner.Query(r.Context(), agentReq)
	if err != nil {
		ad.logger.Error("message/send failed", zap.Error(err))
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeInternalError, Message: types.AsError(err).Message},
		})
		return
	}

	result := sendResult{
		SessionID: resp.SessionID,
		Status:    string(resp.Status),
		Messages:  make([]PeerMessage, 0, len(resp.Output)),
	}
	for _, msg := range resp.Output {
		result.Messages = append(result.Messages, PeerMessage{
			Role:  string(msg.Role),
			Parts: []Part{{Kind: "text", Text: msg.ContentText()}},
		})
	}
	writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

// handleStream answers with SSE where every frame is a JSON-RPC
// response wrapping one runtime event.
func (ad *Adapter) handleStream(w http.ResponseWriter, r *http.Request, req *rpcRequest) {
	agentReq, rpcErr := ad.parseParams(req)
	if rpcErr != nil {
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeInternalError, Message: "streaming unsupported by connection"},
		})
		return
	}

	events, err := ad.runner.StreamQuery(r.Context(), agentReq)
	if err != nil {
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeInternalError, Message: types.AsError(err).Message},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		frame, err := json.Marshal(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: ev})
		if err != nil {
			ad.logger.Error("frame marshal failed", zap.Error(err))
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func partsText(parts []Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Kind == "text" || p.Kind == "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func writeRPC(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
