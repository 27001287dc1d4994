package model

import (
	"slices"
	"time"
)

// Scopes granted to a credential.
const (
	ScopeRead  = "read"  // list and inspect own requests
	ScopeWrite = "write" // file and resubmit requests
	ScopeAdmin = "admin" // manage API keys
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// RateLimitTier constants.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// RateLimitConfig defines rate limit parameters per tier.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// TierConfigs maps tier names to their rate limit configurations.
// Zero RequestsPerMinute means unlimited.
var TierConfigs = map[string]RateLimitConfig{
	TierFree:      {RequestsPerMinute: 30, Burst: 5},
	TierPro:       {RequestsPerMinute: 300, Burst: 30},
	TierUnlimited: {RequestsPerMinute: 0, Burst: 0},
}

// AuthMethod records how a caller proved its identity.
type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodJWT    AuthMethod = "jwt"
)

// APIKey is a service-account credential. Only the argon2id hash is stored.
type APIKey struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	KeyHash       string     `json:"-"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	Name          string     `json:"name,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsRevoked returns true if the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope checks if the key has a specific scope. Admin implies all.
func (k *APIKey) HasScope(scope string) bool {
	return hasScope(k.Scopes, scope)
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	Method        AuthMethod
	UserID        string
	Email         string
	KeyID         string
	KeyPrefix     string
	Scopes        []string
	RateLimitTier string
}

// HasScope checks if the principal has a specific scope. Admin implies all.
func (p *Principal) HasScope(scope string) bool {
	return hasScope(p.Scopes, scope)
}

// RateLimitKey identifies the bucket this caller draws from.
func (p *Principal) RateLimitKey() string {
	if p.KeyID != "" {
		return "key:" + p.KeyID
	}
	return "user:" + p.UserID
}

func hasScope(scopes []string, scope string) bool {
	return slices.Contains(scopes, ScopeAdmin) || slices.Contains(scopes, scope)
}

// APIKeyResponse is an API key without secret material.
type APIKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	Revoked       bool       `json:"revoked"`
}

// ToResponse converts an APIKey to APIKeyResponse.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		KeyPrefix:     k.KeyPrefix,
		Scopes:        k.Scopes,
		RateLimitTier: k.RateLimitTier,
		CreatedAt:     k.CreatedAt,
		LastUsedAt:    k.LastUsedAt,
		Revoked:       k.IsRevoked(),
	}
}

// APIKeyCreateResponse includes the plaintext key, returned exactly once.
type APIKeyCreateResponse struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	Name          string    `json:"name,omitempty"`
	KeyPrefix     string    `json:"key_prefix"`
	Scopes        []string  `json:"scopes"`
	RateLimitTier string    `json:"rate_limit_tier"`
	CreatedAt     time.Time `json:"created_at"`
}
