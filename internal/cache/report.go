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

// Cache key prefixes and TTLs.
const (
	statsKeyPrefix     = "stats:"
	fileStatsKeyPrefix = "filestats:"

	// DefaultReportTTL bounds how stale a cached report may be.
	DefaultReportTTL = 30 * time.Second
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// StatsKey builds the cache key for an aggregate report. Reports are
// cached per period and, when a user filter is applied, per user.
func StatsKey(period, userID string) string {
	if userID == "" {
		return statsKeyPrefix + period
	}
	return statsKeyPrefix + period + ":u:" + userID
}

// FileStatsKey builds the cache key for a per-file report.
func FileStatsKey(fileID, period string) string {
	return fileStatsKeyPrefix + fileID + ":" + period
}

// GetReport retrieves a cached aggregate report.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetReport(ctx context.Context, key string) (*model.AggregateReport, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var report model.AggregateReport
	if err := json.Unmarshal(raw, &report); err != nil {
		// A corrupt entry is treated as a miss so the caller recomputes.
		c.client.Del(ctx, key)
		return nil, ErrCacheMiss
	}

	return &report, nil
}

// SetReport caches an aggregate report with the given TTL.
// Degraded reports are never cached; they would mask store recovery.
func (c *Cache) SetReport(ctx context.Context, key string, report *model.AggregateReport, ttl time.Duration) error {
	if report.Degraded {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}

	return nil
}

// GetFileReport retrieves a cached per-file report.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetFileReport(ctx context.Context, key string) (*model.FileReport, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var report model.FileReport
	if err := json.Unmarshal(raw, &report); err != nil {
		c.client.Del(ctx, key)
		return nil, ErrCacheMiss
	}

	return &report, nil
}

// SetFileReport caches a per-file report with the given TTL.
func (c *Cache) SetFileReport(ctx context.Context, key string, report *model.FileReport, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal file report: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache file report: %w", err)
	}

	return nil
}

// InvalidateReports removes all cached reports. Called after replayed
// batches land so recovered events show up without waiting out the TTL;
// live writes rely on the TTL alone.
func (c *Cache) InvalidateReports(ctx context.Context) error {
	for _, pattern := range []string{statsKeyPrefix + "*", fileStatsKeyPrefix + "*"} {
		if err := c.deleteByPattern(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

// deleteByPattern scans and deletes keys matching a pattern.
func (c *Cache) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return nil
}
