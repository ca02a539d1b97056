package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ScheduleStatus string

const (
	ScheduleStatusPlanned    ScheduleStatus = "planned"
	ScheduleStatusApproved   ScheduleStatus = "approved"
	ScheduleStatusInProgress ScheduleStatus = "in_progress"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
	ScheduleStatusOnHold     ScheduleStatus = "on_hold"
	ScheduleStatusDelayed    ScheduleStatus = "delayed"
)

func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusPlanned,
		ScheduleStatusApproved,
		ScheduleStatusInProgress,
		ScheduleStatusCompleted,
		ScheduleStatusCancelled,
		ScheduleStatusOnHold,
		ScheduleStatusDelayed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the schedule no longer consumes material.
func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleStatusCompleted || s == ScheduleStatusCancelled
}

type ProductionSchedule struct {
	ID                   snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProductID            snowflake.ID   `json:"product_id" gorm:"not null;index:ix_schedules_product"`
	UnitsToProducePerDay int64          `json:"units_to_produce_per_day" gorm:"not null"`
	StartDate            time.Time      `json:"start_date" gorm:"not null"`
	EndDate              time.Time      `json:"end_date" gorm:"not null"`
	WorkstationID        string         `json:"workstation_id" gorm:"type:varchar(64);not null;default:'';index:ix_schedules_workstation"`
	ShiftNumber          int            `json:"shift_number" gorm:"not null;default:1"`
	Status               ScheduleStatus `json:"status" gorm:"type:varchar(32);not null;index:ix_schedules_status"`
	ActualUnitsProduced  *int64         `json:"actual_units_produced,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time      `json:"updated_at" gorm:"not null"`
}

func (ProductionSchedule) TableName() string { return "production_schedules" }

// DurationDays counts calendar days covered by the schedule, inclusive of
// both ends. A partial day rounds up.
func (s ProductionSchedule) DurationDays() int64 {
	span := s.EndDate.Sub(s.StartDate)
	if span <= 0 {
		return 1
	}
	return int64(math.Ceil(span.Hours()/24)) + 1
}

func (s ProductionSchedule) TotalUnits() int64 {
	return s.UnitsToProducePerDay * s.DurationDays()
}

// Overlaps reports whether the two schedules share at least one instant.
func (s ProductionSchedule) Overlaps(other ProductionSchedule) bool {
	return !s.StartDate.After(other.EndDate) && !other.StartDate.After(s.EndDate)
}

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type CustomerOrder struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null;index:ix_customer_orders_product"`
	Quantity  int64        `json:"quantity" gorm:"not null"`
	DueDate   time.Time    `json:"due_date" gorm:"not null"`
	Status    OrderStatus  `json:"status" gorm:"type:varchar(32);not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (CustomerOrder) TableName() string { return "customer_orders" }
