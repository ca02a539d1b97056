package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/alert/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const severityOrder = `CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 WHEN 'info' THEN 2 ELSE 3 END`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert relies on the unique active_key index. When an active alert with the
// same key exists its descriptive fields are refreshed and the stored row is
// returned with created=false.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, alert *domain.Alert) (*domain.Alert, bool, error) {
	if alert == nil || alert.ActiveKey == nil {
		return nil, false, domain.ErrInvalidAlert
	}
	var stored *domain.Alert
	// Create writes the conflicting row's key back into alert, so keep ours.
	id := alert.ID
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "active_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"severity",
				"title",
				"description",
				"metadata",
				"updated_at",
			}),
		}).Create(alert).Error
		if err != nil {
			return err
		}
		found, err := r.FindActiveByKey(ctx, tx, *alert.ActiveKey)
		if err != nil {
			return err
		}
		stored = found
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, gorm.ErrRecordNotFound
	}
	return stored, stored.ID == id, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Alert, error) {
	var alerts []domain.Alert
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&alerts).Error; err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

func (r *repo) FindActiveByKey(ctx context.Context, db *gorm.DB, activeKey string) (*domain.Alert, error) {
	var alerts []domain.Alert
	err := db.WithContext(ctx).
		Where("active_key = ? AND status = ?", activeKey, domain.StatusActive).
		Limit(1).
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, resolution string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE alerts
		 SET status = ?, active_key = NULL, resolved_at = ?, resolution = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusResolved,
		at,
		resolution,
		at,
		id,
		domain.StatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Dismiss(ctx context.Context, db *gorm.DB, id snowflake.ID, reason *string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE alerts
		 SET status = ?, active_key = NULL, dismissed_at = ?, dismissal_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusDismissed,
		at,
		reason,
		at,
		id,
		domain.StatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Alert, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Alert{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		stmt = stmt.Where("alert_type = ?", filter.Type)
	}
	if filter.Severity != "" {
		stmt = stmt.Where("severity = ?", filter.Severity)
	}
	if filter.Reference != nil {
		stmt = stmt.Where("reference = ?", strings.TrimSpace(*filter.Reference))
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at <= ?", filter.To.UTC())
	}

	stmt = stmt.Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []domain.Alert
	err := filter.Apply(stmt.Order(severityOrder).Order("created_at DESC").Order("id DESC")).
		Find(&alerts).Error
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (r *repo) ListActiveOlderThan(ctx context.Context, db *gorm.DB, severity domain.Severity, before time.Time) ([]domain.Alert, error) {
	var alerts []domain.Alert
	err := db.WithContext(ctx).
		Where("status = ? AND severity = ? AND created_at < ?", domain.StatusActive, severity, before).
		Order("created_at ASC, id ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
