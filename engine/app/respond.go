package app

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// errorBody is the wire shape of an error response.
type errorBody struct {
	Error *types.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, logger *zap.Logger) {
	e := types.AsError(err)
	status := e.HTTPStatus
	if status == 0 {
		status = statusForCode(e.Code)
	}
	if logger != nil {
		logger.Error("request error",
			zap.String("code", string(e.Code)),
			zap.String("message", e.Message),
			zap.Int("status", status),
			zap.Error(e.Cause),
		)
	}
	writeJSON(w, status, errorBody{Error: e})
}

func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrAuthentication, types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrSessionNotFound, types.ErrTaskNotFound:
		return http.StatusNotFound
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrServiceUnhealthy, types.ErrAgentNotReady:
		return http.StatusServiceUnavailable
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
