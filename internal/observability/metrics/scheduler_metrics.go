package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	"gorm.io/gorm"
)

const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonInsufficientStock    = "insufficient_inventory"
	SchedulerJobReasonConfiguration        = "configuration"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerBatchDeferredReasonLockHeld  = "lock_held"
	SchedulerBatchDeferredReasonLeaseLost = "lease_lost"
)

const (
	LockResourceSchedulerRun = "scheduler_run"
	LockResourcePartStock    = "part_stock"
)

// SchedulerMetrics captures health signals of the periodic planning jobs.
type SchedulerMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobLastSuccess   *prometheus.GaugeVec
	batchProcessed   *prometheus.CounterVec
	batchDeferred    *prometheus.CounterVec
	alertsRaised     *prometheus.CounterVec
	scheduleFailures *prometheus.CounterVec
	runLoopLag       prometheus.Observer
	dbLockWait       *prometheus.HistogramVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

var (
	jobLatencyBuckets  = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	lockLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// schedulerCollectors builds collectors that share the service/env const
// labels and registers each one as it is created.
type schedulerCollectors struct {
	registerer prometheus.Registerer
	labels     prometheus.Labels
}

func (c schedulerCollectors) counter(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help, ConstLabels: c.labels}, labels)
	c.registerer.MustRegister(vec)
	return vec
}

func (c schedulerCollectors) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets, ConstLabels: c.labels}, labels)
	c.registerer.MustRegister(vec)
	return vec
}

func (c schedulerCollectors) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: c.labels}, labels)
	c.registerer.MustRegister(vec)
	return vec
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	c := schedulerCollectors{
		registerer: registerer,
		labels: prometheus.Labels{
			"service": labelOr(cfg.ServiceName, "mrpledger"),
			"env":     labelOr(cfg.Environment, "unknown"),
		},
	}

	dbLockWait := c.histogram("mrpledger_db_lock_wait_seconds",
		"Time spent acquiring part row locks or the scheduler run lease.", lockLatencyBuckets, "resource")
	runLoopLag := c.histogram("mrpledger_scheduler_runloop_lag_seconds",
		"Scheduler run loop lag beyond the configured interval.", jobLatencyBuckets)

	return &SchedulerMetrics{
		jobRuns: c.counter("mrpledger_scheduler_job_runs_total",
			"Scheduler job runs by name.", "job"),
		jobDuration: c.histogram("mrpledger_scheduler_job_duration_seconds",
			"Scheduler job latency.", jobLatencyBuckets, "job"),
		jobTimeouts: c.counter("mrpledger_scheduler_job_timeouts_total",
			"Scheduler jobs that hit their deadline.", "job"),
		jobErrors: c.counter("mrpledger_scheduler_job_errors_total",
			"Scheduler job errors by low-cardinality reason.", "job", "reason"),
		jobLastSuccess: c.gauge("mrpledger_scheduler_job_last_success_timestamp_seconds",
			"Unix time of the last job run that finished without error.", "job"),
		batchProcessed: c.counter("mrpledger_scheduler_batch_processed_total",
			"Parts, schedules, orders or alerts processed by scheduler jobs.", "job", "resource"),
		batchDeferred: c.counter("mrpledger_scheduler_batch_deferred_total",
			"Scheduler runs deferred by low-cardinality reason.", "job", "reason"),
		alertsRaised: c.counter("mrpledger_scheduler_alerts_raised_total",
			"Alerts created or refreshed by scheduler sweeps.", "job"),
		scheduleFailures: c.counter("mrpledger_scheduler_schedule_failures_total",
			"Schedules a planning job skipped because their calculation failed.", "job"),
		runLoopLag: runLoopLag.WithLabelValues(),
		dbLockWait: dbLockWait,
		lockWaitObserver: map[string]prometheus.Observer{
			LockResourceSchedulerRun: dbLockWait.WithLabelValues(LockResourceSchedulerRun),
			LockResourcePartStock:    dbLockWait.WithLabelValues(LockResourcePartStock),
		},
	}
}

func labelOr(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// AddAlertsRaised counts alerts a job created or refreshed.
func (m *SchedulerMetrics) AddAlertsRaised(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alertsRaised.WithLabelValues(job).Add(float64(count))
}

// AddScheduleFailures counts schedules skipped by a planning job.
func (m *SchedulerMetrics) AddScheduleFailures(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.scheduleFailures.WithLabelValues(job).Add(float64(count))
}

// MarkJobSuccess stamps the last clean finish of job.
func (m *SchedulerMetrics) MarkJobSuccess(job string, at time.Time) {
	if m == nil {
		return
	}
	m.jobLastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError counts err under its ClassifySchedulerJobReason bucket.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m != nil {
		m.batchDeferred.WithLabelValues(job, reason).Inc()
	}
}

// ObserveRunLoopLag records how late a tick started. Early ticks count as zero.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(duration, 0).Seconds())
	}
}

func (m *SchedulerMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	observer, ok := m.lockWaitObserver[resource]
	if !ok {
		observer = m.dbLockWait.WithLabelValues(resource)
	}
	observer.Observe(duration.Seconds())
}

func isCancellation(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// ClassifySchedulerErrorType returns a coarse error type for job logs.
func ClassifySchedulerErrorType(err error) string {
	switch {
	case err == nil:
		return SchedulerErrorTypeUnknown
	case isCancellation(err):
		return SchedulerErrorTypeDeadlineExceeded
	case isDBError(err):
		return SchedulerErrorTypeDB
	default:
		return SchedulerErrorTypeBusinessRule
	}
}

// IsSchedulerErrorRetryable reports whether the next tick can be expected to
// succeed. Bad BOM or shortage data never heals on its own.
func IsSchedulerErrorRetryable(err error) bool {
	return err != nil && (isCancellation(err) || isDBError(err))
}

// ClassifySchedulerJobReason maps job errors to the jobErrors reason label.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if isCancellation(err) {
		return SchedulerJobReasonDeadlineExceeded
	}
	switch apperror.KindOf(err) {
	case apperror.KindInsufficientInventory:
		return SchedulerJobReasonInsufficientStock
	case apperror.KindConfiguration:
		return SchedulerJobReasonConfiguration
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return SchedulerJobReasonDBLockTimeout
		case "40001":
			return SchedulerJobReasonSerializationFailure
		case "23505":
			return SchedulerJobReasonUniqueViolation
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SchedulerJobReasonUniqueViolation
	}
	return SchedulerJobReasonUnknown
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if apperror.KindOf(err) == apperror.KindTransaction {
		return true
	}
	for _, target := range []error{
		gorm.ErrInvalidDB,
		gorm.ErrInvalidTransaction,
		gorm.ErrInvalidData,
		gorm.ErrMissingWhereClause,
		gorm.ErrDuplicatedKey,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
