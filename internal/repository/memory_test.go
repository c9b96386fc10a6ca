package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("SetAndGetSettings", func(t *testing.T) {
		settings := testSettings(2)
		require.NoError(t, cache.SetSettings(ctx, settings))

		got, err := cache.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, settings, got)
	})

	t.Run("Expires", func(t *testing.T) {
		now = now.Add(time.Minute)
		got, err := cache.GetSettings(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, cache.SetSettings(ctx, testSettings(3)))
		require.NoError(t, cache.Invalidate(ctx))
		got, _ := cache.GetSettings(ctx)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "api:client-1"
		allowed, _ := cache.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = cache.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = cache.CheckRateLimit(ctx, key, 2, time.Second)
		assert.False(t, allowed)

		now = now.Add(time.Second + 10*time.Millisecond)
		allowed, _ = cache.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
	})
}
