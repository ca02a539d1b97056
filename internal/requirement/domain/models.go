package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type AllocationStatus string

const (
	AllocationStatusAllocated   AllocationStatus = "allocated"
	AllocationStatusPartial     AllocationStatus = "partial"
	AllocationStatusUnallocated AllocationStatus = "unallocated"
)

// AllocationStatusFor classifies how much of required was set aside.
func AllocationStatusFor(required, allocated int64) AllocationStatus {
	switch {
	case allocated >= required:
		return AllocationStatusAllocated
	case allocated > 0:
		return AllocationStatusPartial
	default:
		return AllocationStatusUnallocated
	}
}

// MaterialRequirement rows are replaced wholesale each time a schedule's
// requirements are persisted.
type MaterialRequirement struct {
	ID                snowflake.ID     `json:"id" gorm:"primaryKey"`
	ScheduleID        snowflake.ID     `json:"schedule_id" gorm:"not null;index:ix_material_requirements_schedule"`
	PartNumber        string           `json:"part_number" gorm:"type:varchar(64);not null;index:ix_material_requirements_part"`
	RequiredQuantity  int64            `json:"required_quantity" gorm:"not null"`
	AllocatedQuantity int64            `json:"allocated_quantity" gorm:"not null;default:0"`
	Status            AllocationStatus `json:"status" gorm:"type:varchar(16);not null"`
	CreatedAt         time.Time        `json:"created_at" gorm:"not null"`
}

func (MaterialRequirement) TableName() string { return "material_requirements" }

type ShortageStatus string

const (
	ShortageStatusSufficient ShortageStatus = "sufficient"
	ShortageStatusShortage   ShortageStatus = "shortage"
	ShortageStatusCritical   ShortageStatus = "critical"
)

type Result struct {
	PartNumber           string          `json:"part_number"`
	Description          string          `json:"description"`
	QuantityPerUnit      int64           `json:"quantity_per_unit"`
	GrossRequirement     int64           `json:"gross_requirement"`
	CurrentStock         int64           `json:"current_stock"`
	AllocatedElsewhere   int64           `json:"allocated_elsewhere"`
	AvailableStock       int64           `json:"available_stock"`
	NetRequirement       int64           `json:"net_requirement"`
	Status               ShortageStatus  `json:"status"`
	SafetyStock          int64           `json:"safety_stock"`
	LeadTimeDays         int             `json:"lead_time_days"`
	Supplier             string          `json:"supplier"`
	UnitCost             decimal.Decimal `json:"unit_cost"`
	PlannedOrderQuantity int64           `json:"planned_order_quantity"`
	PlannedOrderDate     time.Time       `json:"planned_order_date"`
	OrderDateInPast      bool            `json:"order_date_in_past"`
	EstimatedOrderCost   decimal.Decimal `json:"estimated_order_cost"`
	Warnings             []string        `json:"warnings"`
	Recommendations      []string        `json:"recommendations"`
}

type Summary struct {
	TotalParts          int             `json:"total_parts"`
	Sufficient          int             `json:"sufficient"`
	Shortage            int             `json:"shortage"`
	Critical            int             `json:"critical"`
	TotalNetRequirement int64           `json:"total_net_requirement"`
	EstimatedOrderCost  decimal.Decimal `json:"estimated_order_cost"`
	CanProceed          bool            `json:"can_proceed"`
}

type Calculation struct {
	ScheduleID   snowflake.ID `json:"schedule_id"`
	ProductID    snowflake.ID `json:"product_id"`
	DurationDays int64        `json:"duration_days"`
	TotalUnits   int64        `json:"total_units"`
	Results      []Result     `json:"results"`
	Summary      Summary      `json:"summary"`
}

type BatchFailure struct {
	ScheduleID snowflake.ID `json:"schedule_id"`
	Error      string       `json:"error"`
}

type BatchResult struct {
	Processed int            `json:"processed"`
	Succeeded []snowflake.ID `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

type ScheduleAllocation struct {
	ScheduleID       snowflake.ID `json:"schedule_id"`
	PlannedOrderDate time.Time    `json:"planned_order_date"`
	Required         int64        `json:"required"`
	Allocated        int64        `json:"allocated"`
	Shortfall        int64        `json:"shortfall"`
}

type PartAllocation struct {
	PartNumber  string               `json:"part_number"`
	Pool        int64                `json:"pool"`
	Remaining   int64                `json:"remaining"`
	Allocations []ScheduleAllocation `json:"allocations"`
}

type AllocationPlan struct {
	Parts  []PartAllocation `json:"parts"`
	Failed []BatchFailure   `json:"failed"`
}
