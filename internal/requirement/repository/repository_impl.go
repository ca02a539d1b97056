package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/requirement/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// SumAllocated only counts schedules that are still open; completed runs
// have already drawn their material from stock.
func (r *repo) SumAllocated(ctx context.Context, db *gorm.DB, partNumbers []string, exclude []snowflake.ID) (map[string]int64, error) {
	out := make(map[string]int64, len(partNumbers))
	if len(partNumbers) == 0 {
		return out, nil
	}

	stmt := db.WithContext(ctx).
		Table("material_requirements AS mr").
		Select("mr.part_number AS part_number, COALESCE(SUM(mr.allocated_quantity), 0) AS allocated").
		Joins("JOIN production_schedules ps ON ps.id = mr.schedule_id").
		Where("mr.part_number IN ?", partNumbers).
		Where("ps.status IN ?", scheduledomain.OpenStatuses)
	if len(exclude) > 0 {
		stmt = stmt.Where("mr.schedule_id NOT IN ?", exclude)
	}

	var rows []struct {
		PartNumber string
		Allocated  int64
	}
	if err := stmt.Group("mr.part_number").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PartNumber] = row.Allocated
	}
	return out, nil
}

func (r *repo) ReplaceForSchedule(ctx context.Context, tx *gorm.DB, scheduleID snowflake.ID, rows []domain.MaterialRequirement) error {
	if err := tx.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Delete(&domain.MaterialRequirement{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

func (r *repo) ListBySchedule(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID) ([]domain.MaterialRequirement, error) {
	var rows []domain.MaterialRequirement
	err := db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("part_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
