package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Compare-and-delete / compare-and-expire so a replica never touches a lease
// another replica took over after expiry.
const (
	leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
	leaseExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`
)

var (
	ErrLockerUnavailable = errors.New("lock_client_not_configured")
	ErrInvalidLease      = errors.New("invalid_lease")
	ErrLeaseLost         = errors.New("lease_lost")
)

// Lease is a held Redis lock. Token identifies the holder.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

type Locker struct {
	client  *redis.Client
	release *redis.Script
	extend  *redis.Script
}

// NewLocker returns nil when Redis is not configured; callers treat a nil
// locker as single-replica mode.
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(leaseReleaseScript),
		extend:  redis.NewScript(leaseExtendScript),
	}
}

// Acquire returns a nil lease and nil error when someone else holds key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockerUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" || ttl <= 0 {
		return nil, ErrInvalidLease
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{Key: key, Token: token, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Extend pushes the lease expiry out by ttl. ErrLeaseLost means the key
// expired or changed hands.
func (l *Locker) Extend(ctx context.Context, lease *Lease, ttl time.Duration) error {
	if l == nil || l.client == nil {
		return ErrLockerUnavailable
	}
	if lease == nil || lease.Key == "" || lease.Token == "" || ttl <= 0 {
		return ErrInvalidLease
	}
	n, err := l.extend.Run(ctx, l.client, []string{lease.Key}, lease.Token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	lease.ExpiresAt = time.Now().Add(ttl)
	return nil
}

func (l *Locker) Release(ctx context.Context, lease *Lease) error {
	if l == nil || l.client == nil || lease == nil {
		return nil
	}
	if lease.Key == "" || lease.Token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{lease.Key}, lease.Token).Err()
}
