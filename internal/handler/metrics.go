package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus registry.
type MetricsHandler struct {
	gatherer prometheus.Gatherer
}

// NewMetricsHandler creates a new MetricsHandler. A nil gatherer makes the
// endpoint report 503.
func NewMetricsHandler(gatherer prometheus.Gatherer) *MetricsHandler {
	return &MetricsHandler{gatherer: gatherer}
}

// Metrics returns metrics in Prometheus exposition format.
// GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.gatherer == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
