package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports metrics through a Prometheus registry.
type PrometheusRecorder struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	authFailures     *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	requestsCreated  *prometheus.CounterVec
	quotaDenied      prometheus.Counter
	submissions      *prometheus.CounterVec
	sendDuration     prometheus.Histogram
	resubmitBacklog  prometheus.Gauge
	classifications  *prometheus.CounterVec
	directoryFetches *prometheus.CounterVec
}

// NewPrometheus registers all collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)

	return &PrometheusRecorder{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestping_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "requestping_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestping_auth_failures_total",
			Help: "Rejected credentials by reason.",
		}, []string{"reason"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestping_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
		requestsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestping_requests_created_total",
			Help: "FOIA requests persisted, by routed office.",
		}, []string{"office"}),
		quotaDenied: f.NewCounter(prometheus.CounterOpts{
			Name: "requestping_quota_denied_total",
			Help: "Requests rejected by the monthly quota.",
		}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestping_submissions_total",
			Help: "Submission attempts by outcome.",
		}, []string{"outcome"}),
		sendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "requestping_mail_send_duration_seconds",
			Help:    "Outbound mail transport latency.",
			Buckets: prometheus.DefBuckets,
		}),
		resubmitBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "requestping_resubmit_backlog",
			Help: "Requests picked up by the last resubmission sweep.",
		}),
		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestping_classifications_total",
			Help: "Record type classifications.",
		}, []string{"fallback"}),
		directoryFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestping_directory_fetches_total",
			Help: "Agency directory refreshes by result.",
		}, []string{"result"}),
	}
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncAuthFailure(reason string) {
	p.authFailures.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncRateLimited(scope string) {
	p.rateLimited.WithLabelValues(scope).Inc()
}

func (p *PrometheusRecorder) IncRequestCreated(office string) {
	p.requestsCreated.WithLabelValues(office).Inc()
}

func (p *PrometheusRecorder) IncQuotaDenied() {
	p.quotaDenied.Inc()
}

func (p *PrometheusRecorder) IncSubmission(outcome string) {
	p.submissions.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveSendDuration(duration time.Duration) {
	p.sendDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetResubmitBacklog(depth int) {
	p.resubmitBacklog.Set(float64(depth))
}

func (p *PrometheusRecorder) IncClassification(fallback bool) {
	p.classifications.WithLabelValues(strconv.FormatBool(fallback)).Inc()
}

func (p *PrometheusRecorder) IncDirectoryFetch(result string) {
	p.directoryFetches.WithLabelValues(result).Inc()
}
