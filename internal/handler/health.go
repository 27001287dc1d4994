package handler

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 5 * time.Second

// HealthChecker is a dependency that can report whether it is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	deps []namedChecker
}

type namedChecker struct {
	name    string
	checker HealthChecker
}

// NewHealthHandler creates a new HealthHandler. Pass nil for a dependency
// that is not configured.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{deps: []namedChecker{
		{name: "postgres", checker: db},
		{name: "redis", checker: cache},
	}}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness probe. It never touches dependencies.
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports 200 only when every configured dependency answers a ping.
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.deps))}
	status := http.StatusOK

	for _, dep := range h.deps {
		if dep.checker == nil {
			resp.Checks[dep.name] = "not configured"
			continue
		}
		if err := dep.checker.Ping(ctx); err != nil {
			resp.Checks[dep.name] = "error: " + err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[dep.name] = "ok"
	}

	writeJSON(w, status, resp)
}
