package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseWriter records the status written by the handler.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Logger emits one structured line per request. Headers are never logged,
// so bearer credentials stay out of the output.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			// Auth runs deeper in the chain; it fills this in via the
			// shared pointer stashed in the context.
			holder := &principalHolder{}
			r = r.WithContext(withPrincipalHolder(r.Context(), holder))

			next.ServeHTTP(wrapped, r)

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", wrapped.status),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}
			if p := holder.principal; p != nil {
				attrs = append(attrs, slog.String("user_id", p.UserID), slog.String("auth_method", string(p.Method)))
			}

			level := slog.LevelInfo
			switch {
			case wrapped.status >= 500:
				level = slog.LevelError
			case wrapped.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
