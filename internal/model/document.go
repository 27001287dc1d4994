package model

import "time"

// Document is attachment metadata linked to a request. Content lives elsewhere.
type Document struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
