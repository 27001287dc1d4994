package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer turns handler panics into a logged 500.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil || rvr == http.ErrAbortHandler {
					if rvr != nil {
						panic(rvr)
					}
					return
				}

				logger.Error("panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
