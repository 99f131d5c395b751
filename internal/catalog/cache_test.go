package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheMissThenHit(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.GetActive(ctx)
	require.False(t, ok)

	features := []Feature{
		{ID: "F1", Name: "Sales Search", Type: TypeMenu, Active: true},
		{ID: "F2", Name: "Cost Analysis", Type: TypeFeature, Active: true},
	}
	require.NoError(t, cache.SetActive(ctx, features))

	got, ok := cache.GetActive(ctx)
	require.True(t, ok)
	require.Equal(t, features, got)
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetActive(ctx, []Feature{{ID: "F1", Active: true}}))
	require.NoError(t, cache.Invalidate(ctx))

	_, ok := cache.GetActive(ctx)
	require.False(t, ok)
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("portal:catalog:active", "not json"))

	_, ok := cache.GetActive(ctx)
	require.False(t, ok)
	require.False(t, mr.Exists("portal:catalog:active"), "corrupt entry removed")
}

func TestCacheEntryExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetActive(ctx, []Feature{{ID: "F1", Active: true}}))
	mr.FastForward(2 * time.Minute)

	_, ok := cache.GetActive(ctx)
	require.False(t, ok)
}

func TestNilCacheIsSafe(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	_, ok := cache.GetActive(ctx)
	require.False(t, ok)
	require.NoError(t, cache.SetActive(ctx, nil))
	require.NoError(t, cache.Invalidate(ctx))
}
