package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/mrpledger/internal/audit/domain"
	obscontext "github.com/smallbiznis/mrpledger/internal/observability/context"
	obslogger "github.com/smallbiznis/mrpledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun accumulates what one job execution touched. It travels on the
// context so nested service calls log under the same run_id.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time

	processed      int
	alertsRaised   int
	failedSchedule []snowflake.ID
	errors         int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processed += count
}

func (r *jobRun) AddRaised(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.alertsRaised += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errors++
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: time.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithRequestID(ctx, "job-"+run.runID)
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeScheduler), job)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Time("planning_time", s.clock.Now()),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("alerts_raised", run.alertsRaised),
		zap.Int("error_count", run.errors),
	}
	if len(run.failedSchedule) > 0 {
		fields = append(fields, zap.Int("failed_schedules", len(run.failedSchedule)))
	}
	log := s.logger(ctx)
	if run.errors > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

// logScheduleFailure records a schedule the job skipped. The job itself keeps
// going.
func (s *Scheduler) logScheduleFailure(ctx context.Context, run *jobRun, scheduleID snowflake.ID, reason string) {
	if run != nil {
		run.failedSchedule = append(run.failedSchedule, scheduleID)
		run.IncError()
	}
	s.logger(ctx).Warn("scheduler.schedule.failed",
		zap.String("job", run.jobName()),
		zap.String("schedule_id", scheduleID.String()),
		zap.String("reason", reason),
	)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	baseFields := []zap.Field{
		zap.String("job", run.jobName()),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}
	s.logger(ctx).Error(msg, append(baseFields, fields...)...)
}

func (r *jobRun) jobName() string {
	if r == nil {
		return "unknown"
	}
	return r.job
}
