package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
)

type MovementType string

const (
	MovementTypeIn         MovementType = "in"
	MovementTypeOut        MovementType = "out"
	MovementTypeAdjustment MovementType = "adjustment"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeIn, MovementTypeOut, MovementTypeAdjustment:
		return true
	default:
		return false
	}
}

// Delta returns the signed stock change for quantity. In and out carry an
// unsigned magnitude; adjustments are already signed.
func (t MovementType) Delta(quantity int64) int64 {
	switch t {
	case MovementTypeIn:
		return quantity
	case MovementTypeOut:
		return -quantity
	case MovementTypeAdjustment:
		return quantity
	default:
		return 0
	}
}

// Movement is an immutable ledger entry. For one part, ordered by
// (created_at, id), each PreviousStock equals the prior NewStock.
type Movement struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	PartNumber    string       `json:"part_number" gorm:"type:varchar(64);not null;index:ix_movements_part_created,priority:1"`
	MovementType  MovementType `json:"movement_type" gorm:"type:varchar(16);not null"`
	Quantity      int64        `json:"quantity" gorm:"not null"`
	Reference     *string      `json:"reference,omitempty" gorm:"type:varchar(128)"`
	Reason        *string      `json:"reason,omitempty" gorm:"type:text"`
	PreviousStock int64        `json:"previous_stock" gorm:"not null"`
	NewStock      int64        `json:"new_stock" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;index:ix_movements_part_created,priority:2"`
}

func (Movement) TableName() string { return "inventory_movements" }

// StockRow is the locked view of a part's stock inside a ledger transaction.
type StockRow struct {
	PartNumber   string
	Description  string
	CurrentStock int64
	StockVersion int64
	ReorderPoint int64
	SafetyStock  int64
	LeadTimeDays int
	Supplier     string
}

type MovementRequest struct {
	PartNumber string       `json:"part_number"`
	Type       MovementType `json:"movement_type"`
	Quantity   int64        `json:"quantity"`
	Reference  *string      `json:"reference"`
	Reason     *string      `json:"reason"`
}

type ReceiveItem struct {
	PartNumber string  `json:"part_number"`
	Quantity   int64   `json:"quantity"`
	Reference  *string `json:"reference"`
	Reason     *string `json:"reason"`
}

type DecrementResult struct {
	ScheduleID    snowflake.ID        `json:"schedule_id"`
	UnitsProduced int64               `json:"units_produced"`
	Movements     []Movement          `json:"movements"`
	Alerts        []alertdomain.Alert `json:"alerts"`
}

type DateRange struct {
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// InsufficientInventoryError reports the first part that cannot cover a
// requested decrease.
type InsufficientInventoryError struct {
	PartNumber string `json:"part_number"`
	Required   int64  `json:"required"`
	Available  int64  `json:"available"`
	Shortage   int64  `json:"shortage"`
}

func NewInsufficientInventoryError(partNumber string, required, available int64) *InsufficientInventoryError {
	return &InsufficientInventoryError{
		PartNumber: partNumber,
		Required:   required,
		Available:  available,
		Shortage:   required - available,
	}
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: required %d, available %d, short %d",
		e.PartNumber, e.Required, e.Available, e.Shortage)
}

func (e *InsufficientInventoryError) ErrorKind() apperror.Kind {
	return apperror.KindInsufficientInventory
}

// AsPart exposes the locked row in catalog form for trigger rules.
func (r StockRow) AsPart() catalogdomain.Part {
	return catalogdomain.Part{
		PartNumber:   r.PartNumber,
		Description:  r.Description,
		CurrentStock: r.CurrentStock,
		StockVersion: r.StockVersion,
		Supplier:     r.Supplier,
		ReorderPoint: r.ReorderPoint,
		SafetyStock:  r.SafetyStock,
		LeadTimeDays: r.LeadTimeDays,
	}
}
