package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tracecore/internal/api/shared"
	"github.com/phrazzld/tracecore/internal/task"
)

// TaskSource is the part of a scheduler the status surface reads.
type TaskSource interface {
	Running() bool
	Tasks() []*task.Task
}

// ListenerSource is the part of an event hub the status surface reads.
type ListenerSource interface {
	EventNames() []string
	ListenerCount(event string) int
	GlobalListenerCount() int
}

// StatusHandler serves snapshots of a scheduler and a hub.
type StatusHandler struct {
	tasks     TaskSource
	listeners ListenerSource
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler over the given sources.
func NewStatusHandler(tasks TaskSource, listeners ListenerSource, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{
		tasks:     tasks,
		listeners: listeners,
		logger:    logger.With("component", "status_handler"),
	}
}

// Health handles GET /health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

// Status handles GET /status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	tasks := h.tasks.Tasks()
	resp := StatusResponse{
		Running:         h.tasks.Running(),
		Tasks:           make([]TaskStatus, 0, len(tasks)),
		Events:          []EventStatus{},
		GlobalListeners: h.listeners.GlobalListenerCount(),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, taskStatus(t))
	}
	for _, name := range h.listeners.EventNames() {
		resp.Events = append(resp.Events, EventStatus{
			Name:      name,
			Listeners: h.listeners.ListenerCount(name),
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetTask handles GET /status/tasks/{id}.
func (h *StatusHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	for _, t := range h.tasks.Tasks() {
		if t.ID() == id {
			shared.RespondWithJSON(w, r, http.StatusOK, taskStatus(t))
			return
		}
	}

	shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
}

func taskStatus(t *task.Task) TaskStatus {
	return TaskStatus{
		ID:       t.ID(),
		Name:     t.Name(),
		Interval: t.Interval().String(),
		LastRun:  t.LastRun().UTC().Truncate(time.Millisecond),
	}
}
