package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewMutationLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	result, err := limiter.Allow(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	var nilLimiter *MutationLimiter
	result, err = nilLimiter.Allow(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestEnabledLimiterRequiresRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, MutationRate: 1, MutationBurst: 1}}
	_, err := NewMutationLimiter(cfg, nil)
	assert.Error(t, err)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, 8*time.Second, defaultBucketTTL(5, 20))
}

func TestBucketResultConvertsScriptUnits(t *testing.T) {
	result := bucketResult([]int64{0, 400, 1500, 1_700_000_000_000}, 10)
	assert.False(t, result.Allowed)
	assert.Equal(t, 10, result.Limit)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 1500*time.Millisecond, result.RetryAfter)
	assert.Equal(t, time.UnixMilli(1_700_000_001_500), result.ResetTime)

	result = bucketResult([]int64{1, 7999, 0, 1_700_000_000_000}, 10)
	assert.True(t, result.Allowed)
	assert.Equal(t, 7, result.Remaining)
	assert.Zero(t, result.RetryAfter)
}

func TestNewTokenBucketRejectsBadPolicy(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	_, err := NewTokenBucket(nil, 1, 1)
	assert.ErrorIs(t, err, ErrBucketMisconfigured)
	_, err = NewTokenBucket(client, 0, 1)
	assert.ErrorIs(t, err, ErrBucketMisconfigured)

	bucket, err := NewTokenBucket(client, 2, 4)
	require.NoError(t, err)
	_, err = bucket.Take(context.Background(), "k", 5)
	assert.ErrorIs(t, err, ErrBucketMisconfigured)
	_, err = bucket.Take(context.Background(), " ", 1)
	assert.ErrorIs(t, err, ErrBucketMisconfigured)
}

func TestNilLockerIsUnconfigured(t *testing.T) {
	locker := NewLocker(nil)
	assert.Nil(t, locker)

	lease, err := locker.Acquire(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockerUnavailable)
	assert.Nil(t, lease)
	assert.ErrorIs(t, locker.Extend(context.Background(), &Lease{Key: "k", Token: "t"}, time.Second), ErrLockerUnavailable)
	assert.NoError(t, locker.Release(context.Background(), &Lease{Key: "k", Token: "t"}))
}

func TestLockerRejectsInvalidLease(t *testing.T) {
	locker := NewLocker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	require.NotNil(t, locker)

	_, err := locker.Acquire(context.Background(), "  ", time.Second)
	assert.ErrorIs(t, err, ErrInvalidLease)
	_, err = locker.Acquire(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidLease)
	assert.ErrorIs(t, locker.Extend(context.Background(), nil, time.Second), ErrInvalidLease)
	assert.ErrorIs(t, locker.Extend(context.Background(), &Lease{Key: "k"}, time.Second), ErrInvalidLease)
	assert.NoError(t, locker.Release(context.Background(), &Lease{}))
}

func TestLockTTL(t *testing.T) {
	assert.Equal(t, 30*time.Second, LockTTL(config.Config{}))
	assert.Equal(t, 5*time.Second, LockTTL(config.Config{RateLimit: config.RateLimitConfig{LockTTLSeconds: 5}}))
}
