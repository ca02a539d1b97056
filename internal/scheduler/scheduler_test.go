package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/clock"
	monitordomain "github.com/smallbiznis/mrpledger/internal/monitor/domain"
	obscontext "github.com/smallbiznis/mrpledger/internal/observability/context"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"github.com/smallbiznis/mrpledger/internal/ratelimit"
	requirementdomain "github.com/smallbiznis/mrpledger/internal/requirement/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// -- Mocks --

type alertSvcMock struct {
	alertdomain.Service
	mock.Mock
}

func (m *alertSvcMock) AutoResolveOldAlerts(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type requirementSvcMock struct {
	requirementdomain.Service
	mock.Mock
}

func (m *requirementSvcMock) RunForAllSchedules(ctx context.Context, status scheduledomain.ScheduleStatus) (*requirementdomain.BatchResult, error) {
	args := m.Called(ctx, status)
	result, _ := args.Get(0).(*requirementdomain.BatchResult)
	return result, args.Error(1)
}

type monitorSvcMock struct {
	monitordomain.Service
	mock.Mock
}

func (m *monitorSvcMock) EvaluateInventory(ctx context.Context) ([]alertdomain.Alert, error) {
	args := m.Called(ctx)
	alerts, _ := args.Get(0).([]alertdomain.Alert)
	return alerts, args.Error(1)
}

func (m *monitorSvcMock) EvaluateDeliveryRisk(ctx context.Context) ([]alertdomain.Alert, error) {
	args := m.Called(ctx)
	alerts, _ := args.Get(0).([]alertdomain.Alert)
	return alerts, args.Error(1)
}

func (m *monitorSvcMock) SweepScheduleConflicts(ctx context.Context) (monitordomain.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(monitordomain.SweepResult), args.Error(1)
}

func (m *monitorSvcMock) SweepCapacity(ctx context.Context) (monitordomain.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(monitordomain.SweepResult), args.Error(1)
}

type lockerMock struct {
	mock.Mock
}

func (m *lockerMock) Acquire(ctx context.Context, key string, ttl time.Duration) (*ratelimit.Lease, error) {
	args := m.Called(ctx, key, ttl)
	lease, _ := args.Get(0).(*ratelimit.Lease)
	return lease, args.Error(1)
}

func (m *lockerMock) Extend(ctx context.Context, lease *ratelimit.Lease, ttl time.Duration) error {
	args := m.Called(ctx, lease, ttl)
	return args.Error(0)
}

func (m *lockerMock) Release(ctx context.Context, lease *ratelimit.Lease) error {
	args := m.Called(ctx, lease)
	return args.Error(0)
}

type testScheduler struct {
	*Scheduler
	alerts       *alertSvcMock
	requirements *requirementSvcMock
	monitor      *monitorSvcMock
	registry     *prometheus.Registry
}

func newTestScheduler(t *testing.T, cfg Config) *testScheduler {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "mrpledger", Environment: "test"})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ts := &testScheduler{
		alerts:       &alertSvcMock{},
		requirements: &requirementSvcMock{},
		monitor:      &monitorSvcMock{},
		registry:     registry,
	}
	s, err := New(Params{
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          clock.NewFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
		AlertSvc:       ts.alerts,
		RequirementSvc: ts.requirements,
		MonitorSvc:     ts.monitor,
		Config:         cfg,
	})
	require.NoError(t, err)
	ts.Scheduler = s
	return ts
}

func (ts *testScheduler) expectAllJobs() {
	ts.alerts.On("AutoResolveOldAlerts", mock.Anything).Return(2, nil).Once()
	ts.requirements.On("RunForAllSchedules", mock.Anything, scheduledomain.ScheduleStatusPlanned).
		Return(&requirementdomain.BatchResult{Processed: 1, Succeeded: []snowflake.ID{1}}, nil).Once()
	ts.monitor.On("EvaluateInventory", mock.Anything).Return([]alertdomain.Alert{{}}, nil).Once()
	ts.monitor.On("SweepScheduleConflicts", mock.Anything).Return(monitordomain.SweepResult{Evaluated: 1}, nil).Once()
	ts.monitor.On("EvaluateDeliveryRisk", mock.Anything).Return([]alertdomain.Alert{}, nil).Once()
	ts.monitor.On("SweepCapacity", mock.Anything).Return(monitordomain.SweepResult{Evaluated: 1, Raised: 1}, nil).Once()
}

func (ts *testScheduler) assertExpectations(t *testing.T) {
	ts.alerts.AssertExpectations(t)
	ts.requirements.AssertExpectations(t)
	ts.monitor.AssertExpectations(t)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, scheduledomain.ScheduleStatusPlanned, cfg.RefreshStatus)
}

func TestRunOnceRunsEveryJobByDefault(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	ts.expectAllJobs()

	require.NoError(t, ts.RunOnce(context.Background()))
	ts.assertExpectations(t)

	labels := map[string]string{"service": "mrpledger", "env": "test", "job": JobCapacity}
	assert.Equal(t, float64(1), getCounterValue(t, ts.registry, "mrpledger_scheduler_job_runs_total", labels))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	ts := newTestScheduler(t, Config{EnabledJobs: []string{"AUTO_RESOLVE_ALERTS", " capacity "}})
	ts.alerts.On("AutoResolveOldAlerts", mock.Anything).Return(0, nil).Once()
	ts.monitor.On("SweepCapacity", mock.Anything).Return(monitordomain.SweepResult{}, nil).Once()

	require.NoError(t, ts.RunOnce(context.Background()))
	ts.assertExpectations(t)
	ts.requirements.AssertNotCalled(t, "RunForAllSchedules", mock.Anything, mock.Anything)
	ts.monitor.AssertNotCalled(t, "EvaluateInventory", mock.Anything)
}

func TestRunOnceJoinsJobErrorsAndKeepsGoing(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	boom := errors.New("db down")
	ts.alerts.On("AutoResolveOldAlerts", mock.Anything).Return(0, nil).Once()
	ts.requirements.On("RunForAllSchedules", mock.Anything, scheduledomain.ScheduleStatusPlanned).Return(nil, boom).Once()
	ts.monitor.On("EvaluateInventory", mock.Anything).Return([]alertdomain.Alert{}, nil).Once()
	ts.monitor.On("SweepScheduleConflicts", mock.Anything).Return(monitordomain.SweepResult{Evaluated: 2, Failed: 1}, boom).Once()
	ts.monitor.On("EvaluateDeliveryRisk", mock.Anything).Return([]alertdomain.Alert{}, nil).Once()
	ts.monitor.On("SweepCapacity", mock.Anything).Return(monitordomain.SweepResult{}, nil).Once()

	err := ts.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobRefreshRequirements+": db down")
	assert.Contains(t, err.Error(), JobScheduleConflicts+": db down")
	ts.assertExpectations(t)
}

func TestRefreshRequirementsToleratesScheduleFailures(t *testing.T) {
	ts := newTestScheduler(t, Config{EnabledJobs: []string{JobRefreshRequirements}, RefreshStatus: scheduledomain.ScheduleStatusApproved})
	ts.requirements.On("RunForAllSchedules", mock.Anything, scheduledomain.ScheduleStatusApproved).Return(&requirementdomain.BatchResult{
		Processed: 2,
		Succeeded: []snowflake.ID{1},
		Failed:    []requirementdomain.BatchFailure{{ScheduleID: 2, Error: "empty_bom"}},
	}, nil).Once()

	require.NoError(t, ts.RunOnce(context.Background()))
	ts.assertExpectations(t)
}

func TestRunOnceDefersWhenLockHeld(t *testing.T) {
	ts := newTestScheduler(t, Config{LockTTL: time.Minute})
	locker := &lockerMock{}
	locker.On("Acquire", mock.Anything, runLockKey, time.Minute).Return(nil, nil).Once()
	ts.locker = locker

	require.NoError(t, ts.RunOnce(context.Background()))
	locker.AssertExpectations(t)
	ts.alerts.AssertNotCalled(t, "AutoResolveOldAlerts", mock.Anything)

	labels := map[string]string{
		"service": "mrpledger",
		"env":     "test",
		"job":     "run_once",
		"reason":  obsmetrics.SchedulerBatchDeferredReasonLockHeld,
	}
	assert.Equal(t, float64(1), getCounterValue(t, ts.registry, "mrpledger_scheduler_batch_deferred_total", labels))
}

func TestRunOnceReleasesLockAfterJobs(t *testing.T) {
	ts := newTestScheduler(t, Config{LockTTL: time.Minute})
	ts.expectAllJobs()
	locker := &lockerMock{}
	lease := &ratelimit.Lease{Key: runLockKey, Token: "token-1"}
	locker.On("Acquire", mock.Anything, runLockKey, time.Minute).Return(lease, nil).Once()
	locker.On("Extend", mock.Anything, lease, time.Minute).Return(nil).Times(5)
	locker.On("Release", mock.Anything, lease).Return(nil).Once()
	ts.locker = locker

	require.NoError(t, ts.RunOnce(context.Background()))
	locker.AssertExpectations(t)
	ts.assertExpectations(t)
}

func TestRunOnceFailsWhenLockBackendFails(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	locker := &lockerMock{}
	locker.On("Acquire", mock.Anything, runLockKey, mock.Anything).Return(nil, errors.New("redis unreachable")).Once()
	ts.locker = locker

	assert.Error(t, ts.RunOnce(context.Background()))
	ts.alerts.AssertNotCalled(t, "AutoResolveOldAlerts", mock.Anything)
}

func TestRunOnceStopsWhenLeaseLost(t *testing.T) {
	ts := newTestScheduler(t, Config{LockTTL: time.Minute, EnabledJobs: []string{JobAutoResolveAlerts, JobInventorySweep}})
	ts.alerts.On("AutoResolveOldAlerts", mock.Anything).Return(0, nil).Once()
	lease := &ratelimit.Lease{Key: runLockKey, Token: "token-2"}
	locker := &lockerMock{}
	locker.On("Acquire", mock.Anything, runLockKey, time.Minute).Return(lease, nil).Once()
	locker.On("Extend", mock.Anything, lease, time.Minute).Return(ratelimit.ErrLeaseLost).Once()
	ts.locker = locker

	require.NoError(t, ts.RunOnce(context.Background()))
	locker.AssertExpectations(t)
	locker.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	ts.monitor.AssertNotCalled(t, "EvaluateInventory", mock.Anything)

	labels := map[string]string{
		"service": "mrpledger",
		"env":     "test",
		"job":     "run_once",
		"reason":  obsmetrics.SchedulerBatchDeferredReasonLeaseLost,
	}
	assert.Equal(t, float64(1), getCounterValue(t, ts.registry, "mrpledger_scheduler_batch_deferred_total", labels))
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	ts := newTestScheduler(t, Config{})

	err := ts.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "mrpledger",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, ts.registry, "mrpledger_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "mrpledger",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, ts.registry, "mrpledger_scheduler_job_errors_total", errorLabels))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

func TestJobRunTracksFailedSchedulesAndAlerts(t *testing.T) {
	ts := newTestScheduler(t, Config{})
	ctx, run, owner := ts.ensureJobRun(context.Background(), JobRefreshRequirements)
	require.True(t, owner)

	_, nested, owner := ts.ensureJobRun(ctx, JobRefreshRequirements)
	assert.False(t, owner)
	assert.Same(t, run, nested)

	actorType, actorID := obscontext.ActorFromContext(ctx)
	assert.Equal(t, "scheduler", actorType)
	assert.Equal(t, JobRefreshRequirements, actorID)

	ts.requirements.On("RunForAllSchedules", mock.Anything, scheduledomain.ScheduleStatusPlanned).
		Return(&requirementdomain.BatchResult{
			Processed: 3,
			Succeeded: []snowflake.ID{1},
			Failed: []requirementdomain.BatchFailure{
				{ScheduleID: 2, Error: "empty_bom"},
				{ScheduleID: 3, Error: "product_not_found"},
			},
		}, nil).Once()
	require.NoError(t, ts.RefreshRequirementsJob(ctx))
	assert.Equal(t, 1, run.processed)
	assert.Equal(t, 2, run.errors)
	assert.Equal(t, []snowflake.ID{2, 3}, run.failedSchedule)

	ts.monitor.On("SweepCapacity", mock.Anything).Return(monitordomain.SweepResult{Evaluated: 4, Raised: 2, Failed: 1}, nil).Once()
	require.NoError(t, ts.CapacityJob(ctx))
	assert.Equal(t, 4, run.processed)
	assert.Equal(t, 2, run.alertsRaised)
}
