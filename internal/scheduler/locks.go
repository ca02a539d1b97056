package scheduler

import (
	"context"
	"errors"
	"time"

	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"github.com/smallbiznis/mrpledger/internal/ratelimit"
	"go.uber.org/zap"
)

const runLockKey = "mrpledger:scheduler:run"

type runLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*ratelimit.Lease, error)
	Extend(ctx context.Context, lease *ratelimit.Lease, ttl time.Duration) error
	Release(ctx context.Context, lease *ratelimit.Lease) error
}

// runLease is the cluster-wide lease for one RunOnce. A nil lease means no
// locker is configured and every replica runs its own jobs.
type runLease struct {
	s     *Scheduler
	lease *ratelimit.Lease
}

// acquireRunLock returns a nil runLease without error when another replica
// holds the lock.
func (s *Scheduler) acquireRunLock(ctx context.Context) (*runLease, error) {
	if s.locker == nil {
		return &runLease{s: s}, nil
	}

	start := time.Now()
	lease, err := s.locker.Acquire(ctx, runLockKey, s.cfg.LockTTL)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceSchedulerRun, time.Since(start))
	if err != nil {
		s.log.Warn("scheduler.lock.failed", zap.String("key", runLockKey), zap.Error(err))
		return nil, err
	}
	if lease == nil {
		schedMetrics.IncBatchDeferred("run_once", obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Debug("scheduler.lock.held", zap.String("key", runLockKey))
		return nil, nil
	}
	return &runLease{s: s, lease: lease}, nil
}

// keepAlive extends the lease between jobs. It reports false once the lease
// is gone so the run stops before another replica duplicates work.
func (r *runLease) keepAlive(ctx context.Context) bool {
	if r == nil || r.lease == nil {
		return true
	}
	err := r.s.locker.Extend(ctx, r.lease, r.s.cfg.LockTTL)
	if err == nil {
		return true
	}
	if errors.Is(err, ratelimit.ErrLeaseLost) {
		obsmetrics.Scheduler().IncBatchDeferred("run_once", obsmetrics.SchedulerBatchDeferredReasonLeaseLost)
		r.s.log.Warn("scheduler.lock.lost", zap.String("key", runLockKey))
		r.lease = nil
		return false
	}
	// transient backend errors keep the current lease until its TTL runs out
	r.s.log.Warn("scheduler.lock.extend_failed", zap.String("key", runLockKey), zap.Error(err))
	return true
}

func (r *runLease) release() {
	if r == nil || r.lease == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.s.locker.Release(releaseCtx, r.lease); err != nil {
		r.s.log.Warn("scheduler.lock.release_failed", zap.String("key", runLockKey), zap.Error(err))
	}
}
