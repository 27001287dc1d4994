package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashSecret_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("rp_live_00000000_secret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=4$") {
		t.Errorf("unexpected hash header: %s", hash)
	}
	if parts := strings.Split(hash, "$"); len(parts) != 6 {
		t.Errorf("hash has %d parts, want 6", len(parts))
	}
}

func TestHashSecret_Salted(t *testing.T) {
	t.Parallel()

	a, _ := HashSecret("same")
	b, _ := HashSecret("same")
	if a == b {
		t.Error("two hashes of the same secret should differ")
	}
}

func TestVerifySecret(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("correct horse")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}

	tests := []struct {
		name   string
		secret string
		want   bool
	}{
		{"match", "correct horse", true},
		{"mismatch", "battery staple", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifySecret(tt.secret, hash)
			if err != nil {
				t.Fatalf("VerifySecret: %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifySecret(%q) = %v, want %v", tt.secret, got, tt.want)
			}
		})
	}
}

func TestVerifySecret_BadHashes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv", ErrInvalidHash},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad params", "$argon2id$v=19$bogus$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=4$!!$aGFzaA", ErrInvalidHash},
		{"old version", "$argon2id$v=16$m=65536,t=3,p=4$c2FsdA$aGFzaA", ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := VerifySecret("x", tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifySecret error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	if CacheKey("a") != CacheKey("a") {
		t.Error("CacheKey should be deterministic")
	}
	if CacheKey("a") == CacheKey("b") {
		t.Error("CacheKey should differ for different inputs")
	}
	if got := len(CacheKey("a")); got != 32 {
		t.Errorf("CacheKey length = %d, want 32", got)
	}
}
