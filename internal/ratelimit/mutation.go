package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/mrpledger/internal/config"
)

const keyMutationClient = "mrpledger:ratelimit:mutation:%s"

// MutationLimiter throttles write requests per client. Reads are never
// limited.
type MutationLimiter struct {
	enabled bool
	bucket  *TokenBucket
}

func NewMutationLimiter(cfg config.Config, client *redis.Client) (*MutationLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &MutationLimiter{}, nil
	}
	if client == nil {
		return nil, fmt.Errorf("rate limit enabled but REDIS_ADDR is empty")
	}
	if limitCfg.MutationRate <= 0 || limitCfg.MutationBurst <= 0 {
		return nil, fmt.Errorf("mutation rate limit must be positive")
	}
	bucket, err := NewTokenBucket(client, limitCfg.MutationRate, limitCfg.MutationBurst)
	if err != nil {
		return nil, err
	}
	return &MutationLimiter{enabled: true, bucket: bucket}, nil
}

func (l *MutationLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow takes one token from the bucket of clientKey.
func (l *MutationLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "anonymous"
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyMutationClient, clientKey), 1)
}

// LockTTL is the lease used for distributed locks taken by background jobs.
func LockTTL(cfg config.Config) time.Duration {
	if cfg.RateLimit.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.RateLimit.LockTTLSeconds) * time.Second
}
