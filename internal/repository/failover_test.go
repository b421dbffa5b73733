package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverCache(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	cache := NewFailoverCache(primary, fallback, &logger)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Get", ctx, "a").Return([]byte("1"), true, nil).Once()

		got, found, err := cache.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("1"), got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Get", ctx, "b").Return(nil, false, errors.New("fail")).Once()
		fallback.On("Get", ctx, "b").Return([]byte("2"), true, nil).Once()

		got, found, err := cache.Get(ctx, "b")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("2"), got)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWithinInterval", func(t *testing.T) {
		now = now.Add(30 * time.Second)
		fallback.On("SetNX", ctx, "evt", []byte("1"), time.Hour).Return(true, nil).Once()

		ok, err := cache.SetNX(ctx, "evt", []byte("1"), time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		primary.AssertNotCalled(t, "SetNX", ctx, "evt", []byte("1"), time.Hour)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Set", ctx, "c", []byte("3"), time.Minute).Return(errors.New("still fail")).Once()
		fallback.On("Set", ctx, "c", []byte("3"), time.Minute).Return(nil).Once()

		require.NoError(t, cache.Set(ctx, "c", []byte("3"), time.Minute))
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptSucceeds", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Del", ctx, "d").Return(nil).Once()

		require.NoError(t, cache.Del(ctx, "d"))
		assert.False(t, cache.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "user:6", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "user:6", 10, time.Minute).Return(true, nil).Once()

		allowed, err := cache.CheckRateLimit(ctx, "user:6", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverCacheWithMemoryFallback(t *testing.T) {
	logger := zerolog.New(io.Discard)
	down := NewRedisCache(nil, "")
	cache := NewFailoverCache(down, NewMemoryCache(), &logger)
	ctx := context.Background()

	ok, err := cache.SetNX(ctx, "evt_1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.SetNX(ctx, "evt_1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}
