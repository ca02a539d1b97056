package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ProductionSchedule, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]ProductionSchedule, error)
	ListOverlapping(ctx context.Context, db *gorm.DB, workstationID string, start, end time.Time, excludeID snowflake.ID) ([]ProductionSchedule, error)
	ListCompletedSince(ctx context.Context, db *gorm.DB, productID snowflake.ID, workstationID string, since time.Time) ([]ProductionSchedule, error)
	// MarkCompleted moves a non-terminal schedule to completed and reports
	// whether a row changed.
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, actualUnits int64, at time.Time) (bool, error)
	ListOpenOrdersDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]CustomerOrder, error)
	HasActiveScheduleForProduct(ctx context.Context, db *gorm.DB, productID snowflake.ID, until time.Time) (bool, error)
}

type ListFilter struct {
	Statuses []ScheduleStatus
}

// Service exposes the scheduling read model used for planning.
type Service interface {
	GetSchedule(ctx context.Context, id snowflake.ID) (*ProductionSchedule, error)
	ListSchedules(ctx context.Context, statuses ...ScheduleStatus) ([]ProductionSchedule, error)
	ListOpenSchedules(ctx context.Context) ([]ProductionSchedule, error)
	ListOverlapping(ctx context.Context, schedule ProductionSchedule) ([]ProductionSchedule, error)
	// HistoricalDailyAverage returns the mean daily output of completed runs
	// for the product on the workstation since the given time. Zero means no
	// history.
	HistoricalDailyAverage(ctx context.Context, productID snowflake.ID, workstationID string, since time.Time) (float64, error)
	ListOpenOrdersDueBetween(ctx context.Context, from, to time.Time) ([]CustomerOrder, error)
	HasActiveScheduleForProduct(ctx context.Context, productID snowflake.ID, until time.Time) (bool, error)
}

// OpenStatuses are the schedule states that still consume planning capacity.
var OpenStatuses = []ScheduleStatus{
	ScheduleStatusPlanned,
	ScheduleStatusApproved,
	ScheduleStatusInProgress,
	ScheduleStatusOnHold,
	ScheduleStatusDelayed,
}

var (
	ErrInvalidSchedule   = apperror.Validation("invalid_schedule", "schedule id is required")
	ErrInvalidStatus     = apperror.Validation("invalid_schedule_status", "unknown schedule status")
	ErrScheduleNotFound  = apperror.NotFound("schedule_not_found", "production schedule not found")
	ErrScheduleCompleted = apperror.Conflict("schedule_already_completed", "production schedule is already completed")
	ErrScheduleCancelled = apperror.Conflict("schedule_cancelled", "production schedule is cancelled")
)
