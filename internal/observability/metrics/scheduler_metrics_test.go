package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "configuration",
			err:  fmt.Errorf("schedule 7: %w", apperror.Configuration("empty_bom", "product has no bom")),
			want: SchedulerJobReasonConfiguration,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "mrpledger",
		Environment: "test",
	})

	metrics.AddBatchProcessed("refresh_requirements", "schedules", 3)
	metrics.AddBatchProcessed("refresh_requirements", "schedules", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("refresh_requirements", "schedules"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncJobErrorUsesReason(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{Environment: "test"})

	metrics.IncJobError("auto_resolve_alerts", &pgconn.PgError{Code: "40001"})
	metrics.IncJobError("auto_resolve_alerts", nil)

	got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("auto_resolve_alerts", SchedulerJobReasonSerializationFailure))
	if got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestObserveRunLoopLagClampsNegative(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})
	metrics.ObserveRunLoopLag(-time.Second)
	metrics.ObserveDBLockWait(LockResourcePartStock, 5*time.Millisecond)

	if n := testutil.CollectAndCount(registry, "mrpledger_scheduler_runloop_lag_seconds"); n != 1 {
		t.Fatalf("expected lag histogram to be collected, got %d", n)
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	if !IsSchedulerErrorRetryable(apperror.Transaction(errors.New("conn reset"))) {
		t.Fatalf("expected transaction failures to be retryable")
	}
	if IsSchedulerErrorRetryable(apperror.Validation("invalid_units", "bad")) {
		t.Fatalf("validation errors are not retryable")
	}
}

func TestPlanningCountersIgnoreEmptyRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{Environment: "test"})

	metrics.AddAlertsRaised("inventory_sweep", 2)
	metrics.AddAlertsRaised("inventory_sweep", 0)
	metrics.AddScheduleFailures("refresh_requirements", 1)
	metrics.AddScheduleFailures("refresh_requirements", -1)

	if got := testutil.ToFloat64(metrics.alertsRaised.WithLabelValues("inventory_sweep")); got != 2 {
		t.Fatalf("expected 2 alerts raised, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.scheduleFailures.WithLabelValues("refresh_requirements")); got != 1 {
		t.Fatalf("expected 1 schedule failure, got %v", got)
	}
}

func TestMarkJobSuccessStoresUnixTime(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	metrics.MarkJobSuccess("delivery_risk", at)

	if got := testutil.ToFloat64(metrics.jobLastSuccess.WithLabelValues("delivery_risk")); got != float64(at.Unix()) {
		t.Fatalf("expected %d, got %v", at.Unix(), got)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var metrics *SchedulerMetrics
	metrics.IncJobRun("noop")
	metrics.AddAlertsRaised("noop", 1)
	metrics.MarkJobSuccess("noop", time.Now())
	metrics.ObserveDBLockWait(LockResourceSchedulerRun, time.Second)
}
