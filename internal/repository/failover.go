package repository

import (
	"context"
	"sync/atomic"
	"time"

	"tripdesk/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCache serves from primary until a call fails, then from fallback.
// The primary is retried at most once per recoveryInterval.
type FailoverCache struct {
	primary   domain.CacheStore
	fallback  domain.CacheStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverCache(primary, fallback domain.CacheStore, logger *zerolog.Logger) *FailoverCache {
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to the primary store.
func (r *FailoverCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if r.now().Sub(last) <= recoveryInterval {
		return false
	}
	r.lastCheck.Store(r.now().UnixNano())
	return true
}

func (r *FailoverCache) primaryFailed(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary cache failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverCache) primaryOK() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary cache recovered")
	}
}

func (r *FailoverCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.usePrimary() {
		val, found, err := r.primary.Get(ctx, key)
		if err == nil {
			r.primaryOK()
			return val, found, nil
		}
		r.primaryFailed("get", err)
	}
	return r.fallback.Get(ctx, key)
}

func (r *FailoverCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Set(ctx, key, value, ttl)
		if err == nil {
			r.primaryOK()
			return nil
		}
		r.primaryFailed("set", err)
	}
	return r.fallback.Set(ctx, key, value, ttl)
}

func (r *FailoverCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.SetNX(ctx, key, value, ttl)
		if err == nil {
			r.primaryOK()
			return ok, nil
		}
		r.primaryFailed("setnx", err)
	}
	return r.fallback.SetNX(ctx, key, value, ttl)
}

func (r *FailoverCache) Del(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.Del(ctx, key)
		if err == nil {
			r.primaryOK()
			return nil
		}
		r.primaryFailed("del", err)
	}
	return r.fallback.Del(ctx, key)
}

func (r *FailoverCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.primaryOK()
			return allowed, nil
		}
		r.primaryFailed("rate_limit", err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
