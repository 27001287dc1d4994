// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/requestping/requestping/internal/migration"
	"github.com/requestping/requestping/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// NewPool connects to DATABASE_URL, takes the test lock, and rebuilds the
// schema from the embedded migrations. Skips when DATABASE_URL is unset.
func NewPool(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := ResetSchema(dbURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, pool
}

// ResetSchema rolls back and reapplies every migration.
func ResetSchema(databaseURL string) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := migration.Down(databaseURL, logger); err != nil {
		return err
	}
	return migration.Up(databaseURL, logger)
}

// NewRedis connects to REDIS_URL and flushes it. Skips when unset.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()
	redisURL := RequireEnv(t, "REDIS_URL")

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	if err := FlushRedis(context.Background(), client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a user with the given monthly limit.
func NewTestUser(t testing.TB, limit int) *model.User {
	t.Helper()
	id := UniqueID("user")
	return &model.User{
		ID:                  id,
		Email:               id + "@example.com",
		MonthlyRequestLimit: limit,
		CreatedAt:           time.Now().UTC(),
	}
}

// NewTestRequest creates a pending request routed to the cemetery office.
func NewTestRequest(t testing.TB, userID string) *model.Request {
	t.Helper()
	return &model.Request{
		ID:             UniqueID("req"),
		UserID:         userID,
		RecordType:     "burial_records",
		OfficeCode:     "NCA",
		OfficeName:     "National Cemetery Administration",
		Subject:        "Grandfather's interment record",
		Description:    "Interment record for John Doe.",
		DeliveryFormat: model.DeliveryPaper,
		Status:         model.RequestStatusPending,
	}
}

// NewTestActivity creates a request_created entry for req.
func NewTestActivity(t testing.TB, req *model.Request) *model.Activity {
	t.Helper()
	return &model.Activity{
		ID:          UniqueID("act"),
		RequestID:   req.ID,
		Type:        model.ActivityRequestCreated,
		Description: "FOIA request created",
	}
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:            UniqueID("key"),
		UserID:        userID,
		KeyHash:       fmt.Sprintf("hash-%d", now.UnixNano()),
		KeyPrefix:     "abc123",
		Scopes:        []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier: model.TierFree,
		Name:          "Test Key",
		CreatedAt:     now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
