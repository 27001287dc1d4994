package submission

import (
	"math/rand"
	"time"
)

// Resubmission delays. Attempt 1: 1 min, 2: 5 min, 3: 30 min, 4: 2 hours,
// 5: 12 hours.
var retryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

const (
	// DefaultMaxAttempts is the default number of scheduled attempts.
	DefaultMaxAttempts = 5

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay returns the wait after the given number of prior attempts,
// with ±20% jitter.
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retryDelays) {
		attemptCount = len(retryDelays) - 1
	}

	base := retryDelays[attemptCount]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// IsExhausted returns true if max attempts have been reached.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

// RetryDelays returns a copy of the schedule.
func RetryDelays() []time.Duration {
	return append([]time.Duration{}, retryDelays...)
}
