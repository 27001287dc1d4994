package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/requestping/requestping/internal/model"
)

const (
	// principalCachePrefix is the Redis key prefix for verified API keys.
	principalCachePrefix = "requestping:auth:"
	// principalCacheTTL bounds how long a revoked key may stay usable.
	principalCacheTTL = 5 * time.Minute
)

// cachedPrincipal is the Redis representation of a verified API key.
type cachedPrincipal struct {
	KeyID         string   `json:"key_id"`
	KeyPrefix     string   `json:"key_prefix"`
	UserID        string   `json:"user_id"`
	Email         string   `json:"email,omitempty"`
	Scopes        []string `json:"scopes"`
	RateLimitTier string   `json:"rate_limit_tier"`
}

// GetPrincipal returns the cached principal for cacheKey, or nil on a miss.
// Corrupted entries are treated as misses.
func (c *Cache) GetPrincipal(ctx context.Context, cacheKey string) (*model.Principal, error) {
	data, err := c.client.Get(ctx, principalCachePrefix+cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}

	var cached cachedPrincipal
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil //nolint:nilerr
	}

	return &model.Principal{
		Method:        model.AuthMethodAPIKey,
		KeyID:         cached.KeyID,
		KeyPrefix:     cached.KeyPrefix,
		UserID:        cached.UserID,
		Email:         cached.Email,
		Scopes:        cached.Scopes,
		RateLimitTier: cached.RateLimitTier,
	}, nil
}

// SetPrincipal caches a verified API key principal.
func (c *Cache) SetPrincipal(ctx context.Context, cacheKey string, p *model.Principal) error {
	data, err := json.Marshal(cachedPrincipal{
		KeyID:         p.KeyID,
		KeyPrefix:     p.KeyPrefix,
		UserID:        p.UserID,
		Email:         p.Email,
		Scopes:        p.Scopes,
		RateLimitTier: p.RateLimitTier,
	})
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}

	return c.client.Set(ctx, principalCachePrefix+cacheKey, data, principalCacheTTL).Err()
}
