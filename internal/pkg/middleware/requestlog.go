package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	ddctx "github.com/corner4world/deepdetect/internal/pkg/context"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/pkg/security"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger tags every request with an id, taken from the incoming
// header when present, and logs its outcome at debug level, or warn for
// server errors.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := security.SanitizeForLogWithLength(r.Header.Get(RequestIDHeader), 64)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := ddctx.WithRequestID(r.Context(), id)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			l := log.WithContext(ctx)
			args := []any{"method", r.Method, "path", security.SanitizeForLog(r.URL.Path), "status", rec.status, "duration_ms", time.Since(start).Milliseconds()}
			if rec.status >= http.StatusInternalServerError {
				l.Warn("Request failed", append(args, "headers", security.MaskSensitiveHeaders(r.Header))...)
				return
			}
			l.Debug("Request served", args...)
		})
	}
}
