package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ProductionSchedule, error) {
	var schedules []domain.ProductionSchedule
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return &schedules[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.ProductionSchedule, error) {
	stmt := db.WithContext(ctx).Model(&domain.ProductionSchedule{})
	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", filter.Statuses)
	}
	var schedules []domain.ProductionSchedule
	if err := stmt.Order("start_date ASC, id ASC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *repo) ListOverlapping(ctx context.Context, db *gorm.DB, workstationID string, start, end time.Time, excludeID snowflake.ID) ([]domain.ProductionSchedule, error) {
	workstationID = strings.TrimSpace(workstationID)
	if workstationID == "" {
		return nil, nil
	}
	var schedules []domain.ProductionSchedule
	err := db.WithContext(ctx).
		Where("workstation_id = ?", workstationID).
		Where("id <> ?", excludeID).
		Where("status NOT IN ?", []domain.ScheduleStatus{domain.ScheduleStatusCompleted, domain.ScheduleStatusCancelled}).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Order("start_date ASC, id ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *repo) ListCompletedSince(ctx context.Context, db *gorm.DB, productID snowflake.ID, workstationID string, since time.Time) ([]domain.ProductionSchedule, error) {
	var schedules []domain.ProductionSchedule
	err := db.WithContext(ctx).
		Where("product_id = ? AND workstation_id = ?", productID, workstationID).
		Where("status = ?", domain.ScheduleStatusCompleted).
		Where("completed_at >= ?", since).
		Where("actual_units_produced IS NOT NULL").
		Order("completed_at ASC, id ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, actualUnits int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE production_schedules
		 SET status = ?, actual_units_produced = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		domain.ScheduleStatusCompleted,
		actualUnits,
		at,
		at,
		id,
		domain.ScheduleStatusCompleted,
		domain.ScheduleStatusCancelled,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListOpenOrdersDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.CustomerOrder, error) {
	var orders []domain.CustomerOrder
	err := db.WithContext(ctx).
		Where("status = ?", domain.OrderStatusOpen).
		Where("due_date >= ? AND due_date <= ?", from, to).
		Order("due_date ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) HasActiveScheduleForProduct(ctx context.Context, db *gorm.DB, productID snowflake.ID, until time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ProductionSchedule{}).
		Where("product_id = ?", productID).
		Where("status <> ?", domain.ScheduleStatusCancelled).
		Where("start_date <= ?", until).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
