package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/apperror"
)

// Service gathers live planning data, runs the alert rules over it and
// records whatever they raise.
type Service interface {
	// EvaluateInventory checks every part at or below its reorder point.
	EvaluateInventory(ctx context.Context) ([]alertdomain.Alert, error)
	EvaluateScheduleConflicts(ctx context.Context, scheduleID snowflake.ID) (*alertdomain.Alert, error)
	EvaluateCapacity(ctx context.Context, scheduleID snowflake.ID) (*alertdomain.Alert, error)
	// EvaluateDeliveryRisk covers open orders due inside the risk window and
	// open schedules with unallocated material.
	EvaluateDeliveryRisk(ctx context.Context) ([]alertdomain.Alert, error)
	RecordCostVariance(ctx context.Context, req CostVarianceRequest) (*alertdomain.Alert, error)
	RecordQualityInspection(ctx context.Context, req QualityInspectionRequest) (*alertdomain.Alert, error)

	SweepScheduleConflicts(ctx context.Context) (SweepResult, error)
	SweepCapacity(ctx context.Context) (SweepResult, error)
}

type CostVarianceRequest struct {
	Reference     string          `json:"reference"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	ActualCost    decimal.Decimal `json:"actual_cost"`
}

type QualityInspectionRequest struct {
	Reference      string `json:"reference"`
	InspectedUnits int64  `json:"inspected_units"`
	DefectiveUnits int64  `json:"defective_units"`
}

// SweepResult summarises one pass over the open schedules.
type SweepResult struct {
	Evaluated int `json:"evaluated"`
	Raised    int `json:"raised"`
	Failed    int `json:"failed"`
}

var (
	ErrInvalidReference  = apperror.Validation("invalid_reference", "reference is required")
	ErrInvalidCost       = apperror.Validation("invalid_cost", "estimated cost must be positive and actual cost non-negative")
	ErrInvalidInspection = apperror.Validation("invalid_inspection", "inspected units must be positive and defective units within range")
)
