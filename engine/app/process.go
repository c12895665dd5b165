package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// maxRequestBody bounds the size of a processing request.
const maxRequestBody = 4 << 20

func (a *App) decodeRequest(w http.ResponseWriter, r *http.Request) (*types.AgentRequest, bool) {
	var req types.AgentRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, types.NewError(types.ErrInvalidRequest, "malformed request body").WithCause(err), a.logger)
		return nil, false
	}
	return &req, true
}

// handleProcess runs one request to completion and returns the final
// response. Requests with stream set are served as SSE.
func (a *App) handleProcess(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeRequest(w, r)
	if !ok {
		return
	}
	if req.Stream {
		a.streamResponse(w, r, req)
		return
	}

	resp, err := a.runner.Query(r.Context(), req)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProcessStream always streams, regardless of the stream flag.
func (a *App) handleProcessStream(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeRequest(w, r)
	if !ok {
		return
	}
	a.streamResponse(w, r, req)
}

// streamResponse writes the event stream as server-sent events. Each
// event is one data frame; the stream ends with a [DONE] sentinel.
func (a *App) streamResponse(w http.ResponseWriter, r *http.Request, req *types.AgentRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, types.NewError(types.ErrInternalError, "streaming unsupported by connection"), a.logger)
		return
	}

	events, err := a.runner.StreamQuery(r.Context(), req)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so deltas reach the client immediately.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := ev.MarshalEvent()
		if err != nil {
			a.logger.Error("event marshal failed", zap.Error(err))
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
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

// handleProcessWS serves the processing endpoint over a WebSocket. The
// client sends one JSON request per message; the server answers with
// the event stream for that request, then waits for the next one.
func (a *App) handleProcessWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.cfg.Server.CORSAllowedOrigins,
	})
	if err != nil {
		a.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, io.EOF) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			a.logger.Debug("websocket read ended", zap.Error(err))
			return
		}

		var req types.AgentRequest
		if err := json.Unmarshal(data, &req); err != nil {
			a.writeWSError(ctx, conn, types.NewError(types.ErrInvalidRequest, "malformed request").WithCause(err))
			continue
		}

		events, err := a.runner.StreamQuery(ctx, &req)
		if err != nil {
			a.writeWSError(ctx, conn, err)
			continue
		}
		for ev := range events {
			frame, err := ev.MarshalEvent()
			if err != nil {
				a.logger.Error("event marshal failed", zap.Error(err))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		}
	}
}

func (a *App) writeWSError(ctx context.Context, conn *websocket.Conn, err error) {
	body, marshalErr := json.Marshal(errorBody{Error: types.AsError(err)})
	if marshalErr != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, body)
}
