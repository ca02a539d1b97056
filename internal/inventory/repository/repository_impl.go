package repository

import (
	"context"
	"slices"
	"time"

	"github.com/smallbiznis/mrpledger/internal/inventory/domain"
	"github.com/smallbiznis/mrpledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockStock(ctx context.Context, tx *gorm.DB, partNumbers []string) ([]domain.StockRow, error) {
	keys := slices.Clone(partNumbers)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	if len(keys) == 0 {
		return nil, nil
	}

	var rows []domain.StockRow
	err := tx.WithContext(ctx).Raw(
		`SELECT part_number, description, current_stock, stock_version,
		        reorder_point, safety_stock, lead_time_days, supplier
		 FROM parts
		 WHERE part_number IN ?
		 ORDER BY part_number ASC`+db.ForUpdate(tx),
		keys,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CompareAndSwapStock(ctx context.Context, tx *gorm.DB, partNumber string, newStock, expectedVersion int64, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE parts
		 SET current_stock = ?, stock_version = stock_version + 1, updated_at = ?
		 WHERE part_number = ? AND stock_version = ?`,
		newStock,
		at,
		partNumber,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertMovement(ctx context.Context, tx *gorm.DB, movement *domain.Movement) error {
	if movement == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(movement).Error
}

func (r *repo) ListMovements(ctx context.Context, db *gorm.DB, partNumber string, dateRange domain.DateRange) ([]domain.Movement, error) {
	stmt := db.WithContext(ctx).Where("part_number = ?", partNumber)
	if dateRange.From != nil {
		stmt = stmt.Where("created_at >= ?", dateRange.From.UTC())
	}
	if dateRange.To != nil {
		stmt = stmt.Where("created_at <= ?", dateRange.To.UTC())
	}
	var movements []domain.Movement
	if err := stmt.Order("created_at DESC, id DESC").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repo) ListMovementsChronological(ctx context.Context, db *gorm.DB, partNumber string) ([]domain.Movement, error) {
	var movements []domain.Movement
	err := db.WithContext(ctx).
		Where("part_number = ?", partNumber).
		Order("created_at ASC, id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
