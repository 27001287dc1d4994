// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a FOIA request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusSubmitted RequestStatus = "submitted"
)

// statusRank orders statuses; a request never moves to a lower rank.
var statusRank = map[RequestStatus]int{
	RequestStatusPending:   0,
	RequestStatusFailed:    1,
	RequestStatusSubmitted: 2,
}

// IsValid reports whether s is a known status.
func (s RequestStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusSubmitted
}

// CanAdvanceTo reports whether a transition from s to next is allowed.
// Submitted is terminal; failed may be re-recorded after another failed attempt.
func (s RequestStatus) CanAdvanceTo(next RequestStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	if s == next {
		return s == RequestStatusFailed
	}
	return statusRank[next] > statusRank[s]
}

// AllowedPredecessors lists the statuses that may transition into next.
func AllowedPredecessors(next RequestStatus) []RequestStatus {
	var out []RequestStatus
	for _, s := range []RequestStatus{RequestStatusPending, RequestStatusFailed, RequestStatusSubmitted} {
		if s.CanAdvanceTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// DeliveryFormat is the requester's preferred format for responsive records.
type DeliveryFormat string

const (
	DeliveryElectronic DeliveryFormat = "electronic"
	DeliveryPaper      DeliveryFormat = "paper"
	// DeliveryEither means no preference was given.
	DeliveryEither DeliveryFormat = ""
)

// ParseDeliveryFormat normalizes client input. Anything unrecognized means either.
func ParseDeliveryFormat(s string) DeliveryFormat {
	switch DeliveryFormat(strings.ToLower(strings.TrimSpace(s))) {
	case DeliveryElectronic:
		return DeliveryElectronic
	case DeliveryPaper:
		return DeliveryPaper
	default:
		return DeliveryEither
	}
}

// Request is a FOIA request routed to a single office.
//
// OfficeCode and OfficeName are resolved from RecordType when the request is
// created and never rewritten afterwards.
type Request struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	RecordType string `json:"record_type"`
	OfficeCode string `json:"office_code"`
	OfficeName string `json:"office_name"`

	Subject         string `json:"subject"`
	Description     string `json:"description"`
	RecordTitle     string `json:"record_title,omitempty"`
	RecordAuthor    string `json:"record_author,omitempty"`
	RecordRecipient string `json:"record_recipient,omitempty"`
	DateRangeStart  string `json:"date_range_start,omitempty"`
	DateRangeEnd    string `json:"date_range_end,omitempty"`

	DeliveryFormat DeliveryFormat `json:"delivery_format"`
	FeeWaiver      bool           `json:"request_fee_waiver"`
	WaiverReason   string         `json:"waiver_reason,omitempty"`

	RequesterPhone string `json:"requester_phone,omitempty"`
	RequesterEmail string `json:"requester_email,omitempty"`

	Status         RequestStatus `json:"status"`
	SubmitAttempts int           `json:"submit_attempts"`
	NextAttemptAt  *time.Time    `json:"next_attempt_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`

	// DocumentsCount is populated by list queries only.
	DocumentsCount int `json:"documents_count"`

	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsSubmitted returns true once the letter has been delivered.
func (r *Request) IsSubmitted() bool {
	return r.Status == RequestStatusSubmitted
}

// StatusChange is a forward status transition and the audit entry recorded
// with it. Both are applied in one transaction.
type StatusChange struct {
	RequestID     string
	Status        RequestStatus
	At            time.Time
	Activity      Activity
	LastError     string
	NextAttemptAt *time.Time
}
