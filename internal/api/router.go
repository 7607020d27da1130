package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/tracecore/internal/api/middleware"
)

// NewRouter mounts the status handler's routes on a chi router.
func NewRouter(h *StatusHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Get("/status/tasks/{id}", h.GetTask)

	return r
}
