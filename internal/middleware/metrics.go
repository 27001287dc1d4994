package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/requestping/requestping/internal/metrics"
)

// Metrics observes each request under its chi route pattern so path
// parameters do not explode label cardinality.
func Metrics(recorder metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			recorder.ObserveHTTPRequest(r.Method, route, wrapped.status, time.Since(start))
		})
	}
}
