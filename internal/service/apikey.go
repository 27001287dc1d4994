package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/repository"
)

// KeyStore persists API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id, userID string) error
}

// CreateAPIKeyInput describes a key to mint.
type CreateAPIKeyInput struct {
	UserID string
	Name   string
	Scopes []string
	// Tier defaults to free.
	Tier string
	// Env is auth.EnvLive or auth.EnvTest.
	Env string
}

// APIKeyService mints, lists, and revokes service-account keys.
type APIKeyService struct {
	store  KeyStore
	logger *slog.Logger
}

// NewAPIKeyService creates an APIKeyService.
func NewAPIKeyService(store KeyStore, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{store: store, logger: logger.With("component", "apikeys")}
}

// CreateAPIKey mints a key. The plaintext is only ever returned here.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, in CreateAPIKeyInput) (*model.APIKeyCreateResponse, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{model.ScopeRead}
	}
	for _, scope := range scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("%w: %s (valid: %s)", ErrInvalidScope, scope, strings.Join(model.ValidScopes, ", "))
		}
	}

	tier := in.Tier
	if tier == "" {
		tier = model.TierFree
	}
	if _, ok := model.TierConfigs[tier]; !ok {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrValidation, tier)
	}

	generated, err := auth.GenerateAPIKey(in.Env)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	key := &model.APIKey{
		ID:            ulid.Make().String(),
		UserID:        in.UserID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: tier,
		Name:          in.Name,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}

	s.logger.Info("API key created",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
		"user_id", key.UserID,
	)

	return &model.APIKeyCreateResponse{
		ID:            key.ID,
		Key:           generated.Plaintext,
		Name:          key.Name,
		KeyPrefix:     key.KeyPrefix,
		Scopes:        key.Scopes,
		RateLimitTier: key.RateLimitTier,
		CreatedAt:     key.CreatedAt,
	}, nil
}

// ListAPIKeys returns the user's keys without secret material.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKeyResponse, error) {
	keys, err := s.store.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]model.APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.ToResponse())
	}
	return out, nil
}

// RevokeAPIKey revokes a key owned by userID. A cached verification may
// keep the key usable until the auth cache entry expires.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	if err := s.store.RevokeAPIKey(ctx, keyID, userID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("revoke key: %w", err)
	}
	s.logger.Info("API key revoked", "key_id", keyID, "user_id", userID)
	return nil
}
