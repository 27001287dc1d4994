package model

import "testing"

func TestAPIKey_HasScope(t *testing.T) {
	testCases := []struct {
		name      string
		keyScopes []string
		checkFor  string
		want      bool
	}{
		{"has exact scope", []string{ScopeRead, ScopeWrite}, ScopeRead, true},
		{"does not have scope", []string{ScopeRead}, ScopeWrite, false},
		{"admin implies read", []string{ScopeAdmin}, ScopeRead, true},
		{"admin implies write", []string{ScopeAdmin}, ScopeWrite, true},
		{"empty scopes", []string{}, ScopeRead, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &APIKey{Scopes: tc.keyScopes}
			if got := key.HasScope(tc.checkFor); got != tc.want {
				t.Errorf("HasScope(%s) = %v, want %v", tc.checkFor, got, tc.want)
			}
		})
	}
}

func TestPrincipal_RateLimitKey(t *testing.T) {
	keyed := &Principal{KeyID: "01HX", UserID: "u1"}
	if got := keyed.RateLimitKey(); got != "key:01HX" {
		t.Errorf("RateLimitKey() = %q, want key:01HX", got)
	}

	jwtUser := &Principal{Method: AuthMethodJWT, UserID: "u1"}
	if got := jwtUser.RateLimitKey(); got != "user:u1" {
		t.Errorf("RateLimitKey() = %q, want user:u1", got)
	}
}

func TestAPIKey_ToResponse(t *testing.T) {
	key := &APIKey{ID: "k1", KeyHash: "secret-hash", KeyPrefix: "abc123", Scopes: []string{ScopeRead}}
	resp := key.ToResponse()
	if resp.ID != "k1" || resp.KeyPrefix != "abc123" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Revoked {
		t.Error("expected key to be active")
	}
}
