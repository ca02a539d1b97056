package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// SumAllocated totals allocated quantity per part across requirement rows
	// whose schedule is not in exclude.
	SumAllocated(ctx context.Context, db *gorm.DB, partNumbers []string, exclude []snowflake.ID) (map[string]int64, error)
	ReplaceForSchedule(ctx context.Context, tx *gorm.DB, scheduleID snowflake.ID, rows []MaterialRequirement) error
	ListBySchedule(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID) ([]MaterialRequirement, error)
}

type Service interface {
	CalculateRequirements(ctx context.Context, scheduleID snowflake.ID) (*Calculation, error)
	CreateMaterialRequirements(ctx context.Context, scheduleID snowflake.ID) (*Calculation, error)
	RunForAllSchedules(ctx context.Context, status scheduledomain.ScheduleStatus) (*BatchResult, error)
	AllocateAcrossSchedules(ctx context.Context, scheduleIDs []snowflake.ID) (*AllocationPlan, error)
	ListRequirements(ctx context.Context, scheduleID snowflake.ID) ([]MaterialRequirement, error)
}

var (
	ErrNoSchedules      = apperror.Validation("no_schedules", "at least one schedule id is required")
	ErrQuantityOverflow = apperror.Validation("quantity_overflow", "requirement exceeds the supported quantity range")
	ErrPartMissing      = apperror.Configuration("bom_part_missing", "bill of materials references an unknown part")
)
