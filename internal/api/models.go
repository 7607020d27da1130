package api

import (
	"time"

	"github.com/google/uuid"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// TaskStatus describes one registered task.
type TaskStatus struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"last_run"`
}

// EventStatus describes the listeners registered under one event name.
type EventStatus struct {
	Name      string `json:"name"`
	Listeners int    `json:"listeners"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Running         bool          `json:"running"`
	Tasks           []TaskStatus  `json:"tasks"`
	Events          []EventStatus `json:"events"`
	GlobalListeners int           `json:"global_listeners"`
}
