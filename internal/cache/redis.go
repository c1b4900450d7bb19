// Package cache keeps computed stats summaries in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
)

// DefaultTTL bounds how long a summary may be served after it was computed.
const DefaultTTL = 5 * time.Minute

// RedisStatsCache stores one hash per user, keyed by window length, so a single DEL drops every
// window after a completion.
type RedisStatsCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStatsCache wraps a go-redis client.
func NewRedisStatsCache(client redis.Cmdable, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStatsCache{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func statsKey(userID string) string {
	return "stats:" + userID
}

// GetStats decodes the cached summary for (userID, days) into dest.
func (c *RedisStatsCache) GetStats(ctx context.Context, userID string, days int, dest *domain.StatsSummary) (bool, error) {
	raw, err := c.client.HGet(ctx, statsKey(userID), strconv.Itoa(days)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached stats: %w", err)
	}
	return true, nil
}

// SetStats stores summary and refreshes the hash expiry.
func (c *RedisStatsCache) SetStats(ctx context.Context, userID string, days int, summary domain.StatsSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	key := statsKey(userID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.Itoa(days), raw)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	return err
}

// Invalidate drops every cached window for the user.
func (c *RedisStatsCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, statsKey(userID)).Err()
}

var _ domain.StatsCache = (*RedisStatsCache)(nil)
