package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/clock"
	monitordomain "github.com/smallbiznis/mrpledger/internal/monitor/domain"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"github.com/smallbiznis/mrpledger/internal/ratelimit"
	requirementdomain "github.com/smallbiznis/mrpledger/internal/requirement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	AlertSvc       alertdomain.Service
	RequirementSvc requirementdomain.Service
	MonitorSvc     monitordomain.Service
	Locker         *ratelimit.Locker `optional:"true"`
	Config         Config            `optional:"true"`
}

// Scheduler drives the periodic planning jobs. Every job goes through the
// public service operations; the scheduler owns no tables.
type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	alertSvc       alertdomain.Service
	requirementSvc requirementdomain.Service
	monitorSvc     monitordomain.Service
	locker         runLocker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.AlertSvc == nil || p.RequirementSvc == nil || p.MonitorSvc == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          p.Clock,
		alertSvc:       p.AlertSvc,
		requirementSvc: p.RequirementSvc,
		monitorSvc:     p.MonitorSvc,
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	schedMetrics.AddBatchProcessed(name, jobResource(name), run.processed)
	schedMetrics.AddAlertsRaised(name, run.alertsRaised)
	schedMetrics.AddScheduleFailures(name, len(run.failedSchedule))
	if owner {
		if err != nil && run.errors == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		schedMetrics.MarkJobSuccess(name, s.clock.Now())
		return nil
	}

	// deadline is a soft timeout; the next tick picks the work up again
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job once. With a Redis locker configured
// only one replica runs a given tick; the others record a deferral and return.
func (s *Scheduler) RunOnce(parent context.Context) error {
	lease, err := s.acquireRunLock(parent)
	if err != nil {
		return err
	}
	if lease == nil {
		return nil
	}
	defer lease.release()

	jobs := []struct {
		Name string
		Run  func(ctx context.Context) error
	}{
		{JobAutoResolveAlerts, s.AutoResolveAlertsJob},
		{JobRefreshRequirements, s.RefreshRequirementsJob},
		{JobInventorySweep, s.InventorySweepJob},
		{JobScheduleConflicts, s.ScheduleConflictsJob},
		{JobDeliveryRisk, s.DeliveryRiskJob},
		{JobCapacity, s.CapacityJob},
	}

	var runErr error
	first := true
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		if parent.Err() != nil {
			return errors.Join(runErr, parent.Err())
		}
		if !first && !lease.keepAlive(parent) {
			break
		}
		first = false
		runErr = errors.Join(runErr, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return runErr
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// AutoResolveAlertsJob closes info alerts left active past the configured age.
func (s *Scheduler) AutoResolveAlertsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	resolved, err := s.alertSvc.AutoResolveOldAlerts(ctx)
	run.AddProcessed(resolved)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.alerts.auto_resolve.failed", err)
		return err
	}
	return nil
}

// RefreshRequirementsJob recomputes and reserves material for every schedule
// in the refresh status. Per-schedule failures are logged and counted but
// do not fail the job.
func (s *Scheduler) RefreshRequirementsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	result, err := s.requirementSvc.RunForAllSchedules(ctx, s.cfg.RefreshStatus)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.requirements.refresh.failed", err,
			zap.String("status", string(s.cfg.RefreshStatus)),
		)
		return err
	}
	run.AddProcessed(len(result.Succeeded))
	for _, failure := range result.Failed {
		s.logScheduleFailure(ctx, run, failure.ScheduleID, failure.Error)
	}
	return nil
}

func (s *Scheduler) InventorySweepJob(ctx context.Context) error {
	return s.alertJob(ctx, "scheduler.inventory.sweep.failed", s.monitorSvc.EvaluateInventory)
}

func (s *Scheduler) DeliveryRiskJob(ctx context.Context) error {
	return s.alertJob(ctx, "scheduler.delivery_risk.failed", s.monitorSvc.EvaluateDeliveryRisk)
}

func (s *Scheduler) ScheduleConflictsJob(ctx context.Context) error {
	return s.sweepJob(ctx, s.monitorSvc.SweepScheduleConflicts)
}

func (s *Scheduler) CapacityJob(ctx context.Context) error {
	return s.sweepJob(ctx, s.monitorSvc.SweepCapacity)
}

// alertJob runs an evaluation that reports the alerts it created or updated.
func (s *Scheduler) alertJob(ctx context.Context, failMsg string, evaluate func(context.Context) ([]alertdomain.Alert, error)) error {
	run := jobRunFromContext(ctx)
	alerts, err := evaluate(ctx)
	run.AddProcessed(len(alerts))
	run.AddRaised(len(alerts))
	if err != nil {
		s.logSchedulerError(ctx, run, failMsg, err)
		return err
	}
	return nil
}

func (s *Scheduler) sweepJob(ctx context.Context, sweep func(context.Context) (monitordomain.SweepResult, error)) error {
	run := jobRunFromContext(ctx)
	result, err := sweep(ctx)
	run.AddProcessed(result.Evaluated - result.Failed)
	run.AddRaised(result.Raised)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.sweep.failed", err,
			zap.Int("evaluated", result.Evaluated),
			zap.Int("failed", result.Failed),
		)
		return err
	}
	return nil
}

func jobResource(job string) string {
	switch job {
	case JobAutoResolveAlerts:
		return "alert"
	case JobInventorySweep:
		return "part"
	case JobDeliveryRisk:
		return "order"
	default:
		return "schedule"
	}
}
