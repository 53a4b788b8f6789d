package httputil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/clerk-queue/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5/middleware"
)

// slowRequest is the duration above which a request is logged at warn level.
const slowRequest = 2 * time.Second

// RequestLoggerMiddleware injects a logger carrying request_id and court_id into
// the request context and logs every completed request.
// Server errors are logged at error level, slow requests at warn.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With("request_id", middleware.GetReqID(r.Context()))
			if courtID := ResolveCourtID(r); courtID != "" {
				logger = logger.With("court_id", courtID)
			}
			ctx := ctxlog.WithLogger(r.Context(), logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			duration := time.Since(start)
			level := slog.LevelInfo
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				level = slog.LevelError
			case duration > slowRequest:
				level = slog.LevelWarn
			}

			ctxlog.FromContext(ctx).Log(ctx, level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", duration.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
