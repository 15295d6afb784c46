package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharetrack/sharetrack/internal/model"
)

const (
	snapshotKey = "mirror:snapshots"

	// DefaultSnapshotTTL keeps mirror snapshots around across restarts
	// without letting abandoned deployments hold them forever.
	DefaultSnapshotTTL = 30 * 24 * time.Hour
)

// SetSnapshotTTL overrides how long persisted mirror snapshots live.
// Non-positive values are ignored.
func (c *Cache) SetSnapshotTTL(ttl time.Duration) {
	if ttl > 0 {
		c.snapshotTTL = ttl
	}
}

// SaveFileSnapshots persists the mirror state so it survives restarts.
// The whole set is written as one value; snapshots are small and read
// only once at startup.
func (c *Cache) SaveFileSnapshots(ctx context.Context, snapshots []model.FileSnapshot) error {
	raw, err := json.Marshal(snapshots)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshots: %w", err)
	}

	ttl := c.snapshotTTL
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}

	if err := c.client.Set(ctx, snapshotKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist snapshots: %w", err)
	}

	return nil
}

// LoadFileSnapshots restores persisted mirror state. Returns an empty
// slice when nothing was persisted yet.
func (c *Cache) LoadFileSnapshots(ctx context.Context) ([]model.FileSnapshot, error) {
	raw, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshots []model.FileSnapshot
	if err := json.Unmarshal(raw, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshots: %w", err)
	}

	return snapshots, nil
}
