package repository

import (
	"context"
	"testing"
	"time"

	"tripdesk/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	cache := NewRedisCache(client, "tripdesk")
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "quote:hotel:1", []byte(`{"total":"100"}`), time.Minute))

		got, found, err := cache.Get(ctx, "quote:hotel:1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"total":"100"}`, string(got))
		assert.True(t, s.Exists("tripdesk:quote:hotel:1"))
	})

	t.Run("Miss", func(t *testing.T) {
		got, found, err := cache.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "short", []byte("x"), time.Second))
		s.FastForward(2 * time.Second)

		_, found, err := cache.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SetNX", func(t *testing.T) {
		ok, err := cache.SetNX(ctx, "webhook:evt_1", []byte("1"), time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = cache.SetNX(ctx, "webhook:evt_1", []byte("1"), time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Del", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "gone", []byte("x"), 0))
		require.NoError(t, cache.Del(ctx, "gone"))
		_, found, _ := cache.Get(ctx, "gone")
		assert.False(t, found)
	})

	t.Run("RateLimit", func(t *testing.T) {
		limit := 2
		window := time.Second

		allowed, err := cache.CheckRateLimit(ctx, "user:789", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = cache.CheckRateLimit(ctx, "user:789", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = cache.CheckRateLimit(ctx, "user:789", limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = cache.CheckRateLimit(ctx, "user:789", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("ServerDown", func(t *testing.T) {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
		defer down.Close()

		_, _, err := NewRedisCache(down, "").Get(ctx, "k")
		assert.Error(t, err)
		assert.Error(t, Ping(ctx, down))
	})

	t.Run("NilClient", func(t *testing.T) {
		_, _, err := NewRedisCache(nil, "").Get(ctx, "k")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestClose(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	assert.NoError(t, Close(client))
	assert.NoError(t, Close(nil))
}
