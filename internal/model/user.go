package model

import "time"

// User is the requester account. Credentials are owned by the identity
// service; this service only reads the monthly quota.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	MonthlyRequestLimit int        `json:"monthly_request_limit"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}
