package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/registry"
)

const (
	// directorySnapshotKey holds the last good agency directory.
	directorySnapshotKey = "registry:directory:snapshot"
	// directorySnapshotTTL keeps a stale snapshot around for outages; the
	// registry judges freshness from FetchedAt.
	directorySnapshotTTL = 7 * 24 * time.Hour
)

// GetDirectorySnapshot implements registry.SnapshotStore.
func (c *Cache) GetDirectorySnapshot(ctx context.Context) (*model.DirectorySnapshot, error) {
	data, err := c.client.Get(ctx, directorySnapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, registry.ErrSnapshotMiss
		}
		return nil, fmt.Errorf("get directory snapshot: %w", err)
	}

	var snap model.DirectorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, registry.ErrSnapshotMiss
	}
	return &snap, nil
}

// SetDirectorySnapshot implements registry.SnapshotStore.
func (c *Cache) SetDirectorySnapshot(ctx context.Context, snap *model.DirectorySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal directory snapshot: %w", err)
	}
	return c.client.Set(ctx, directorySnapshotKey, data, directorySnapshotTTL).Err()
}
