package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: rp_{env}_{prefix}_{secret}
// Example: rp_live_1f3a9c2e_8d0b4e6a2c7f9d1b3e5a7c9f0b2d4e6a
const (
	KeyPrefixLen = 8
	KeySecretLen = 32
)

// Environment tags embedded in keys.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")

	keyPattern = regexp.MustCompile(`^rp_(live|test)_([a-f0-9]{8})_([a-f0-9]{32})$`)
)

// GeneratedKey is a freshly minted API key. Plaintext is shown once.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// ParsedKey holds the parts of a plaintext key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// GenerateAPIKey mints a key for env, defaulting to live.
func GenerateAPIKey(env string) (*GeneratedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	prefix, err := randomHex(KeyPrefixLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(KeySecretLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := "rp_" + env + "_" + prefix + "_" + secret
	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

// ParseAPIKey splits a plaintext key into its parts.
func ParseAPIKey(key string) (*ParsedKey, error) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return nil, ErrInvalidKeyFormat
	}
	return &ParsedKey{Env: m[1], Prefix: m[2], Secret: m[3]}, nil
}

// LooksLikeAPIKey reports whether token has the API key shape. Anything
// else presented as a bearer token is treated as a JWT.
func LooksLikeAPIKey(token string) bool {
	return keyPattern.MatchString(token)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
