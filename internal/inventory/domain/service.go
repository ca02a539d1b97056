package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	"gorm.io/gorm"
)

type Repository interface {
	// LockStock reads the stock rows for the given parts in ascending part
	// number order, taking row locks where the dialect supports them.
	LockStock(ctx context.Context, tx *gorm.DB, partNumbers []string) ([]StockRow, error)
	// CompareAndSwapStock writes newStock only if the row still carries
	// expectedVersion.
	CompareAndSwapStock(ctx context.Context, tx *gorm.DB, partNumber string, newStock, expectedVersion int64, at time.Time) (bool, error)
	InsertMovement(ctx context.Context, tx *gorm.DB, movement *Movement) error
	ListMovements(ctx context.Context, db *gorm.DB, partNumber string, dateRange DateRange) ([]Movement, error)
	ListMovementsChronological(ctx context.Context, db *gorm.DB, partNumber string) ([]Movement, error)
}

type Service interface {
	DecrementForProduction(ctx context.Context, scheduleID snowflake.ID, actualUnitsProduced int64) (*DecrementResult, error)
	RecordMovement(ctx context.Context, req MovementRequest) (*Movement, error)
	// AdjustInventory sets stock to newQuantity. It returns nil when the
	// stock already equals newQuantity.
	AdjustInventory(ctx context.Context, partNumber string, newQuantity int64, reason string) (*Movement, error)
	ReceiveInventory(ctx context.Context, items []ReceiveItem) ([]Movement, error)
	GetInventoryHistory(ctx context.Context, partNumber string, dateRange DateRange) ([]Movement, error)
	VerifyLedgerChain(ctx context.Context, partNumber string) error
}

var (
	ErrInvalidUnits        = apperror.Validation("invalid_units", "actual units produced must be positive")
	ErrInvalidQuantity     = apperror.Validation("invalid_quantity", "quantity must be positive")
	ErrInvalidAdjustment   = apperror.Validation("invalid_adjustment", "adjustment quantity must be non-zero")
	ErrNegativeTarget      = apperror.Validation("negative_target_quantity", "new quantity must not be negative")
	ErrInvalidMovementType = apperror.Validation("invalid_movement_type", "unknown movement type")
	ErrMissingReason       = apperror.Validation("missing_reason", "a reason is required")
	ErrEmptyReceipt        = apperror.Validation("empty_receipt", "at least one item is required")
	ErrInvalidTimeRange    = apperror.Validation("invalid_time_range", "from must not be after to")
	ErrQuantityOverflow    = apperror.Validation("quantity_overflow", "quantity exceeds the supported range")
	ErrLedgerChainBroken   = apperror.Conflict("ledger_chain_broken", "movement history is inconsistent")

	// ErrStaleStock signals a lost compare-and-swap; the unit of work is
	// replayed with fresh stock.
	ErrStaleStock = errors.New("stale_stock_version")
)
