package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newLoader(calls *int, err error) func(context.Context, string) (*settingsValue, error) {
	return func(_ context.Context, id string) (*settingsValue, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return &settingsValue{Model: "model-" + id}, nil
	}
}

func TestReadThroughCache_CachesHits(t *testing.T) {
	calls := 0
	cache := NewInMemoryCacheManager[string, *settingsValue]("settings", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *settingsValue, string](cache, newLoader(&calls, nil), false)

	first, err := rt.Get(context.Background(), "t1", "t1", time.Minute)
	require.NoError(t, err)
	second, err := rt.Get(context.Background(), "t1", "t1", time.Minute)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Same(t, first, second)
	require.Equal(t, "model-t1", second.Model)
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	calls := 0
	cache := NewInMemoryCacheManager[string, *settingsValue]("settings", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *settingsValue, string](cache, newLoader(&calls, nil), true)

	_, _ = rt.Get(context.Background(), "t1", "t1", time.Minute)
	_, _ = rt.Get(context.Background(), "t1", "t1", time.Minute)
	require.Equal(t, 2, calls)
	require.Zero(t, cache.Len())
}

func TestReadThroughCache_ErrorsNotCached(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	cache := NewInMemoryCacheManager[string, *settingsValue]("settings", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *settingsValue, string](cache, newLoader(&calls, boom), false)

	_, err := rt.Get(context.Background(), "t1", "t1", time.Minute)
	require.ErrorIs(t, err, boom)
	_, err = rt.Get(context.Background(), "t1", "t1", time.Minute)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls)
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	calls := 0
	cache := NewInMemoryCacheManager[string, *settingsValue]("settings", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *settingsValue, string](cache, newLoader(&calls, nil), false)

	_, _ = rt.Get(context.Background(), "t1", "t1", time.Minute)
	require.NoError(t, rt.Invalidate(context.Background(), "t1"))
	_, _ = rt.Get(context.Background(), "t1", "t1", time.Minute)
	require.Equal(t, 2, calls)
}

func TestReadThroughCache_HitExtendsTTL(t *testing.T) {
	calls := 0
	cache := NewInMemoryCacheManager[string, *settingsValue]("settings", DefaultExpiration, DefaultCleanupInterval)
	rt := NewReadThroughCache[string, *settingsValue, string](cache, newLoader(&calls, nil), false)
	ttl := 100 * time.Millisecond

	_, err := rt.Get(context.Background(), "t1", "t1", ttl)
	require.NoError(t, err)
	time.Sleep(70 * time.Millisecond)
	_, err = rt.Get(context.Background(), "t1", "t1", ttl)
	require.NoError(t, err)
	time.Sleep(70 * time.Millisecond)

	// Past the first ttl, but within the one the hit renewed.
	_, err = rt.Get(context.Background(), "t1", "t1", ttl)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
