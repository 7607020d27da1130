package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/tracecore/internal/api/shared"
	"github.com/phrazzld/tracecore/internal/platform/logger"
)

// RequestID adds a request ID to the request context together with a logger
// that carries it. Apply it early so later handlers and RespondWith* helpers
// see both.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetRequestID(r.Context())
			log := base.With(slog.String("request_id", shared.GetRequestID(ctx)))

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
		})
	}
}
