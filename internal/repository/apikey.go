package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/requestping/requestping/internal/model"
)

// ErrAPIKeyNotFound is returned when no matching key exists.
var ErrAPIKeyNotFound = errors.New("API key not found")

const apiKeyColumns = `id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, revoked_at, last_used_at, created_at`

// CreateAPIKey inserts a new API key.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.UserID,
		key.KeyHash,
		key.KeyPrefix,
		pq.Array(key.Scopes),
		key.RateLimitTier,
		key.Name,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

// GetAPIKeysByPrefix returns active keys with the given lookup prefix.
// Authentication verifies the secret against each candidate's hash.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`
	return r.queryAPIKeys(ctx, query, prefix)
}

// ListAPIKeysByUserID returns all keys of a user, newest first.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryAPIKeys(ctx, query, userID)
}

// RevokeAPIKey revokes a key owned by userID.
func (r *Repository) RevokeAPIKey(ctx context.Context, id, userID string) error {
	query := `
		UPDATE api_keys
		SET revoked_at = now()
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed stamps last_used_at. Called asynchronously after
// successful authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}
	return nil
}

func (r *Repository) queryAPIKeys(ctx context.Context, query string, arg any) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}
	return keys, nil
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	var scopes []string

	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.KeyPrefix,
		pq.Array(&scopes),
		&key.RateLimitTier,
		&key.Name,
		&key.RevokedAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}

	key.Scopes = scopes
	return &key, nil
}
