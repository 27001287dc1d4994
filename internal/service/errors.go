// Package service holds the request workflow: validation, quota, routing,
// persistence, and the best-effort submission attached to creation.
package service

import (
	"errors"
	"strings"

	"github.com/requestping/requestping/internal/quota"
	"github.com/requestping/requestping/internal/submission"
)

// Service errors. Handlers map these to HTTP status codes.
var (
	ErrValidation       = errors.New("validation failed")
	ErrQuotaExceeded    = quota.ErrQuotaExceeded
	ErrRequestNotFound  = errors.New("request not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAlreadySubmitted = submission.ErrAlreadySubmitted
	ErrSubmitInProgress = submission.ErrSubmitInProgress
	ErrInvalidCursor    = errors.New("invalid cursor")
	ErrInvalidScope     = errors.New("invalid scope")
	ErrAPIKeyNotFound   = errors.New("API key not found")
)

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a create call. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
