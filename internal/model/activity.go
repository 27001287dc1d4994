package model

import "time"

// ActivityType tags an audit entry.
type ActivityType string

const (
	ActivityRequestCreated   ActivityType = "request_created"
	ActivityRequestSubmitted ActivityType = "request_submitted"
	ActivityRequestFailed    ActivityType = "request_failed"
)

// Activity is an append-only audit record of a state change on a Request.
type Activity struct {
	ID          string       `json:"id"`
	RequestID   string       `json:"request_id"`
	Type        ActivityType `json:"activity_type"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
}
