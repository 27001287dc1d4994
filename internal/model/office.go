package model

import (
	"strings"
	"time"
)

// Office is a routing target: the unit that receives requests for a set of
// record types.
type Office struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Description string   `json:"description,omitempty"`
	RecordTypes []string `json:"record_types"`
}

// Owns reports whether the office handles recordType (case-insensitive).
func (o Office) Owns(recordType string) bool {
	tag := strings.ToLower(strings.TrimSpace(recordType))
	if tag == "" {
		return false
	}
	for _, rt := range o.RecordTypes {
		if strings.ToLower(rt) == tag {
			return true
		}
	}
	return false
}

// Deliverable reports whether the office has an address a letter can be sent to.
func (o Office) Deliverable() bool {
	return strings.TrimSpace(o.Email) != ""
}

// RecordTypeOption is one entry of the client-facing record type list.
type RecordTypeOption struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Office string `json:"office"`
}

// DirectorySnapshot is a normalized copy of the external agency directory.
type DirectorySnapshot struct {
	Offices   []Office  `json:"offices"`
	FetchedAt time.Time `json:"fetched_at"`
}
