package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	"github.com/smallbiznis/mrpledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the alert or refreshes the active alert sharing its key.
	Upsert(ctx context.Context, db *gorm.DB, alert *Alert) (*Alert, bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Alert, error)
	FindActiveByKey(ctx context.Context, db *gorm.DB, activeKey string) (*Alert, error)
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, resolution string, at time.Time) (bool, error)
	Dismiss(ctx context.Context, db *gorm.DB, id snowflake.ID, reason *string, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Alert, int64, error)
	ListActiveOlderThan(ctx context.Context, db *gorm.DB, severity Severity, before time.Time) ([]Alert, error)
}

type ListFilter struct {
	pagination.Pagination
	Type      AlertType
	Severity  Severity
	Reference *string
	Status    Status
	From      *time.Time
	To        *time.Time
}

type CreateRequest struct {
	Type        AlertType      `json:"alert_type"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Reference   *string        `json:"reference"`
	Metadata    map[string]any `json:"metadata"`
}

type ListRequest struct {
	pagination.Pagination
	Type      AlertType  `form:"type"`
	Severity  Severity   `form:"severity"`
	Reference *string    `form:"reference"`
	Status    Status     `form:"status"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListResponse struct {
	pagination.PageInfo
	Alerts []Alert `json:"alerts"`
}

type Service interface {
	// CreateAlert returns the stored alert and whether a new row was created.
	CreateAlert(ctx context.Context, req CreateRequest) (*Alert, bool, error)
	ResolveAlert(ctx context.Context, id snowflake.ID, resolution string) (*Alert, error)
	DismissAlert(ctx context.Context, id snowflake.ID, reason *string) (*Alert, error)
	GetAlert(ctx context.Context, id snowflake.ID) (*Alert, error)
	GetActiveAlerts(ctx context.Context, req ListRequest) (ListResponse, error)
	// ResolveByReference resolves the active alert of the given type for the
	// reference, if any.
	ResolveByReference(ctx context.Context, alertType AlertType, reference string, resolution string) (*Alert, error)
	AutoResolveOldAlerts(ctx context.Context) (int, error)
}

// Notifier delivers critical alerts to people. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

var (
	ErrInvalidAlert      = apperror.Validation("invalid_alert", "alert id is required")
	ErrInvalidType       = apperror.Validation("invalid_alert_type", "unknown alert type")
	ErrInvalidSeverity   = apperror.Validation("invalid_alert_severity", "unknown alert severity")
	ErrInvalidStatus     = apperror.Validation("invalid_alert_status", "unknown alert status")
	ErrInvalidTitle      = apperror.Validation("invalid_alert_title", "alert title is required")
	ErrInvalidTimeRange  = apperror.Validation("invalid_time_range", "from must not be after to")
	ErrMissingResolution = apperror.Validation("missing_resolution", "resolution notes are required")
	ErrAlertNotFound     = apperror.NotFound("alert_not_found", "alert not found")
	ErrAlertNotActive    = apperror.Conflict("alert_not_active", "alert is no longer active")
)
