package app

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rayrayraykk/agentscope-runtime/taskqueue"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// taskSubmitted is the body of a successful task submission.
type taskSubmitted struct {
	TaskID string `json:"task_id"`
}

// taskStatus is the body of a task status lookup.
type taskStatus struct {
	TaskID string           `json:"task_id"`
	Name   string           `json:"name"`
	Status taskqueue.Status `json:"status"`
	Result any              `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func (a *App) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, types.NewError(types.ErrInvalidRequest, "unreadable request body").WithCause(err), a.logger)
		return
	}
	if len(payload) > 0 && !json.Valid(payload) {
		writeError(w, types.NewError(types.ErrInvalidRequest, "payload must be valid JSON"), a.logger)
		return
	}

	task, err := a.queue.Enqueue(r.Context(), name, payload)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, taskSubmitted{TaskID: task.ID})
}

func (a *App) handleGetTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id := r.PathValue("id")

	task, err := a.queue.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	// A task ID is only addressable under the name it was submitted with.
	if task.Name != name {
		writeError(w, types.NewError(types.ErrTaskNotFound, "task not found"), a.logger)
		return
	}
	writeJSON(w, http.StatusOK, taskStatus{
		TaskID: task.ID,
		Name:   task.Name,
		Status: task.Status,
		Result: task.Result,
		Error:  task.Error,
	})
}

func (a *App) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id := r.PathValue("id")

	existing, err := a.queue.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	if existing.Name != name {
		writeError(w, types.NewError(types.ErrTaskNotFound, "task not found"), a.logger)
		return
	}

	task, err := a.queue.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, taskStatus{
		TaskID: task.ID,
		Name:   task.Name,
		Status: task.Status,
	})
}
