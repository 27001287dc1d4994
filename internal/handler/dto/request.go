// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"github.com/requestping/requestping/internal/model"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string        `json:"error"`
	Code   string        `json:"code"`
	Fields []FieldDetail `json:"fields,omitempty"`
}

// FieldDetail names one rejected input field.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CreateRequestBody represents the request body for filing a FOIA request.
type CreateRequestBody struct {
	RecordType string `json:"record_type,omitempty"`
	// Agency is accepted from clients built against the directory form.
	Agency string `json:"agency,omitempty"`

	Subject         string `json:"subject"`
	Description     string `json:"description"`
	RecordTitle     string `json:"record_title,omitempty"`
	RecordAuthor    string `json:"record_author,omitempty"`
	RecordRecipient string `json:"record_recipient,omitempty"`
	DateRangeStart  string `json:"date_range_start,omitempty"`
	DateRangeEnd    string `json:"date_range_end,omitempty"`
	DeliveryFormat  string `json:"delivery_format,omitempty"`
	FeeWaiver       bool   `json:"request_fee_waiver,omitempty"`
	WaiverReason    string `json:"waiver_reason,omitempty"`
	RequesterPhone  string `json:"requester_phone,omitempty"`
	RequesterEmail  string `json:"requester_email,omitempty"`
}

// SubmissionResponse reports a request's state after a delivery attempt.
// Warning is set when the letter could not be delivered; the request
// itself still exists.
type SubmissionResponse struct {
	ID      string              `json:"id"`
	Status  model.RequestStatus `json:"status"`
	Office  OfficeRef           `json:"office"`
	Message string              `json:"message"`
	Warning *Warning            `json:"warning,omitempty"`
}

// OfficeRef identifies the office a request was routed to.
type OfficeRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Warning describes a failed delivery attempt.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// RequestListResponse is a page of the caller's requests.
type RequestListResponse struct {
	Requests   []*model.Request `json:"requests"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// RecordTypesResponse lists the record types a requester can choose from.
type RecordTypesResponse struct {
	RecordTypes []model.RecordTypeOption `json:"record_types"`
}

// QuotaResponse is the caller's monthly usage.
type QuotaResponse struct {
	Limit     int  `json:"monthly_request_limit"`
	Used      int  `json:"used_this_month"`
	Remaining int  `json:"remaining"`
	Allowed   bool `json:"can_create"`
}

// OfficeResponse is an office as shown to API clients. The contact
// address itself is not exposed.
type OfficeResponse struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	HasEmail    bool     `json:"has_email"`
	Phone       string   `json:"phone,omitempty"`
	Description string   `json:"description,omitempty"`
	RecordTypes []string `json:"record_types"`
}

// OfficeListResponse lists the offices requests can be routed to.
type OfficeListResponse struct {
	Offices []OfficeResponse `json:"offices"`
}

// ToOfficeResponse converts a model.Office.
func ToOfficeResponse(o model.Office) OfficeResponse {
	recordTypes := o.RecordTypes
	if recordTypes == nil {
		recordTypes = []string{}
	}
	return OfficeResponse{
		Code:        o.Code,
		Name:        o.Name,
		HasEmail:    o.Deliverable(),
		Phone:       o.Phone,
		Description: o.Description,
		RecordTypes: recordTypes,
	}
}

// CreateAPIKeyBody represents the request body for minting an API key.
type CreateAPIKeyBody struct {
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	Tier   string   `json:"rate_limit_tier,omitempty"`
	Env    string   `json:"env,omitempty"`
}

// APIKeyListResponse lists the caller's API keys without secrets.
type APIKeyListResponse struct {
	Keys []model.APIKeyResponse `json:"keys"`
}
