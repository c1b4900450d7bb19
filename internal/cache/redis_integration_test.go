//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/testsupport"
)

func TestRedisStatsCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	url := testsupport.StartRedis(ctx, t)

	client, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisStatsCache(client, time.Minute)

	var got domain.StatsSummary
	ok, err := cache.GetStats(ctx, "user-1", 7, &got)
	require.NoError(t, err)
	require.False(t, ok)

	summary := domain.StatsSummary{WindowDays: 7, TotalDurationSeconds: 3600, ActivityCount: 2}
	require.NoError(t, cache.SetStats(ctx, "user-1", 7, summary))
	require.NoError(t, cache.SetStats(ctx, "user-1", 30, domain.StatsSummary{WindowDays: 30}))

	ok, err = cache.GetStats(ctx, "user-1", 7, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3600), got.TotalDurationSeconds)
	require.Equal(t, 2, got.ActivityCount)

	ttl, err := client.TTL(ctx, statsKey("user-1")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx, "user-1"))
	ok, err = cache.GetStats(ctx, "user-1", 30, &got)
	require.NoError(t, err)
	require.False(t, ok)
}
