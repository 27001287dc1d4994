package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	HTTPRequests        uint64
	AuthFailures        uint64
	RateLimited         uint64
	RequestsCreated     map[string]uint64
	QuotaDenied         uint64
	Submissions         map[string]uint64
	SendDurationCount   uint64
	SendDurationTotalNs int64
	ResubmitBacklog     int64
	Classifications     uint64
	FallbackClassified  uint64
	DirectoryFetches    map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	httpRequests        uint64
	authFailures        uint64
	rateLimited         uint64
	quotaDenied         uint64
	sendDurationCount   uint64
	sendDurationTotalNs int64
	resubmitBacklog     int64
	classifications     uint64
	fallbackClassified  uint64

	mu               sync.Mutex
	requestsCreated  map[string]uint64
	submissions      map[string]uint64
	directoryFetches map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		requestsCreated:  make(map[string]uint64),
		submissions:      make(map[string]uint64),
		directoryFetches: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		HTTPRequests:        atomic.LoadUint64(&m.httpRequests),
		AuthFailures:        atomic.LoadUint64(&m.authFailures),
		RateLimited:         atomic.LoadUint64(&m.rateLimited),
		RequestsCreated:     copyCounts(m.requestsCreated),
		QuotaDenied:         atomic.LoadUint64(&m.quotaDenied),
		Submissions:         copyCounts(m.submissions),
		SendDurationCount:   atomic.LoadUint64(&m.sendDurationCount),
		SendDurationTotalNs: atomic.LoadInt64(&m.sendDurationTotalNs),
		ResubmitBacklog:     atomic.LoadInt64(&m.resubmitBacklog),
		Classifications:     atomic.LoadUint64(&m.classifications),
		FallbackClassified:  atomic.LoadUint64(&m.fallbackClassified),
		DirectoryFetches:    copyCounts(m.directoryFetches),
	}
}

// ObserveHTTPRequest counts served requests.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
}

// IncAuthFailure increments the auth failure counter.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	atomic.AddUint64(&m.authFailures, 1)
}

// IncRateLimited increments the rate limited counter.
func (m *InMemoryRecorder) IncRateLimited(scope string) {
	atomic.AddUint64(&m.rateLimited, 1)
}

// IncRequestCreated increments the per-office creation counter.
func (m *InMemoryRecorder) IncRequestCreated(office string) {
	m.inc(m.requestsCreated, office)
}

// IncQuotaDenied increments the quota denial counter.
func (m *InMemoryRecorder) IncQuotaDenied() {
	atomic.AddUint64(&m.quotaDenied, 1)
}

// IncSubmission increments the per-outcome submission counter.
func (m *InMemoryRecorder) IncSubmission(outcome string) {
	m.inc(m.submissions, outcome)
}

// ObserveSendDuration records transport call duration.
func (m *InMemoryRecorder) ObserveSendDuration(duration time.Duration) {
	atomic.AddUint64(&m.sendDurationCount, 1)
	atomic.AddInt64(&m.sendDurationTotalNs, duration.Nanoseconds())
}

// SetResubmitBacklog sets the resubmission backlog gauge.
func (m *InMemoryRecorder) SetResubmitBacklog(depth int) {
	atomic.StoreInt64(&m.resubmitBacklog, int64(depth))
}

// IncClassification counts registry classifications.
func (m *InMemoryRecorder) IncClassification(fallback bool) {
	atomic.AddUint64(&m.classifications, 1)
	if fallback {
		atomic.AddUint64(&m.fallbackClassified, 1)
	}
}

// IncDirectoryFetch increments the per-result directory fetch counter.
func (m *InMemoryRecorder) IncDirectoryFetch(result string) {
	m.inc(m.directoryFetches, result)
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
