package ratelimit

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Lua numbers come back from Redis truncated to integers, so the script
// reports tokens in thousandths and the wait in milliseconds.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
local wait = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
else
  wait = math.ceil(((cost - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000), wait, now}
`

var ErrBucketMisconfigured = errors.New("rate_limit_misconfigured")

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// TokenBucket is a Redis-backed bucket shared by every API replica. One
// bucket instance serves one policy; keys separate the callers.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

func NewTokenBucket(client redis.Scripter, rate float64, burst int) (*TokenBucket, error) {
	if client == nil || rate <= 0 || burst <= 0 {
		return nil, ErrBucketMisconfigured
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		rate:   rate,
		burst:  burst,
		ttl:    defaultBucketTTL(rate, burst),
	}, nil
}

// Take removes cost tokens from the bucket stored under key.
func (t *TokenBucket) Take(ctx context.Context, key string, cost int) (*RateLimitResult, error) {
	if t == nil {
		return &RateLimitResult{}, ErrBucketMisconfigured
	}
	key = strings.TrimSpace(key)
	if key == "" || cost <= 0 || cost > t.burst {
		return &RateLimitResult{}, ErrBucketMisconfigured
	}

	res, err := t.script.Run(ctx, t.client, []string{key},
		t.rate,
		t.burst,
		cost,
		t.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return &RateLimitResult{}, err
	}
	if len(res) < 4 {
		return &RateLimitResult{}, errors.New("invalid rate limit script response")
	}
	return bucketResult(res, t.burst), nil
}

func bucketResult(res []int64, burst int) *RateLimitResult {
	retryAfter := time.Duration(res[2]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Limit:      burst,
		Remaining:  int(res[1] / 1000),
		ResetTime:  time.UnixMilli(res[3]).Add(retryAfter),
		RetryAfter: retryAfter,
	}
}

// defaultBucketTTL keeps idle buckets around for two full refills.
func defaultBucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil((float64(burst)/rate)*2))
	return time.Duration(seconds) * time.Second
}
