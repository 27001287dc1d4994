// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Submission outcomes.
const (
	OutcomeSubmitted     = "submitted"
	OutcomeFailed        = "failed"
	OutcomeUndeliverable = "undeliverable"
)

// Directory fetch results.
const (
	FetchSuccess  = "success"
	FetchError    = "error"
	FetchCacheHit = "cache_hit"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
	IncAuthFailure(reason string)
	IncRateLimited(scope string)

	// Request lifecycle metrics
	IncRequestCreated(office string)
	IncQuotaDenied()
	IncSubmission(outcome string)
	ObserveSendDuration(duration time.Duration)
	SetResubmitBacklog(depth int)

	// Registry metrics
	IncClassification(fallback bool)
	IncDirectoryFetch(result string)
}
