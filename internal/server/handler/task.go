package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// TaskSubmitter is the dispatcher surface the task API needs.
type TaskSubmitter interface {
	Submit(ctx context.Context, taskType domain.TaskType, payload map[string]string, priority int, targetWorkers []string) (string, error)
	UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus) error
}

// TaskHandler serves task submission, status reporting, and the durable
// task-event history.
type TaskHandler struct {
	dispatcher TaskSubmitter
	store      domain.TaskStore
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewTaskHandler creates a TaskHandler. Bus may be nil; the events endpoint
// then reports that history is not enabled.
func NewTaskHandler(dispatcher TaskSubmitter, store domain.TaskStore, bus domain.SignalBus, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{dispatcher: dispatcher, store: store, bus: bus, logger: logger}
}

// SubmitTask enqueues a new worker task.
// POST /api/tasks
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type          string            `json:"type"`
		Payload       map[string]string `json:"payload"`
		Priority      int               `json:"priority"`
		TargetWorkers []string          `json:"target_workers"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	taskType := domain.TaskType(req.Type)
	switch taskType {
	case domain.TaskDetect, domain.TaskExecute, domain.TaskMonitor:
	default:
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	id, err := h.dispatcher.Submit(r.Context(), taskType, req.Payload, req.Priority, req.TargetWorkers)
	if err != nil {
		h.logger.Error("submit task failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": string(domain.TaskPending)})
}

// GetTask returns one task by id.
// GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("get task failed",
			slog.String("task_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListTasks returns tasks filtered by status, oldest first.
// GET /api/tasks?status=pending
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := domain.TaskStatus(r.URL.Query().Get("status"))
	switch status {
	case domain.TaskPending, domain.TaskAssigned, domain.TaskInProgress,
		domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
	case "":
		status = domain.TaskPending
	default:
		writeError(w, http.StatusBadRequest, "unknown task status")
		return
	}

	tasks, err := h.store.ListByStatus(r.Context(), status, parseListOpts(r))
	if err != nil {
		h.logger.Error("list tasks failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// ListTaskEvents replays the durable task-event stream. Pass after=<stream id>
// to page; "0" (the default) reads from the oldest retained entry.
// GET /api/tasks/events?after=0&limit=100
func (h *TaskHandler) ListTaskEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusNotImplemented, "task event history is not enabled")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := parseListOpts(r).Limit

	msgs, err := h.bus.StreamRead(r.Context(), domain.TaskEventStream, after, limit)
	if err != nil {
		h.logger.Error("read task events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read task events")
		return
	}

	type event struct {
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	events := make([]event, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, event{ID: msg.ID, Payload: msg.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// UpdateTaskStatus records a worker's progress report for a task.
// POST /api/tasks/{id}/status
func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := domain.TaskStatus(req.Status)
	switch status {
	case domain.TaskInProgress, domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
	default:
		writeError(w, http.StatusBadRequest, "unknown task status")
		return
	}

	if err := h.dispatcher.UpdateStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "invalid status transition")
			return
		}
		h.logger.Error("update task status failed",
			slog.String("task_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
}
