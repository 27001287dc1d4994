package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}
func (n *NoopRecorder) IncAuthFailure(reason string)                                                {}
func (n *NoopRecorder) IncRateLimited(scope string)                                                 {}
func (n *NoopRecorder) IncRequestCreated(office string)                                             {}
func (n *NoopRecorder) IncQuotaDenied()                                                             {}
func (n *NoopRecorder) IncSubmission(outcome string)                                                {}
func (n *NoopRecorder) ObserveSendDuration(duration time.Duration)                                  {}
func (n *NoopRecorder) SetResubmitBacklog(depth int)                                                {}
func (n *NoopRecorder) IncClassification(fallback bool)                                             {}
func (n *NoopRecorder) IncDirectoryFetch(result string)                                             {}
