package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem    ActorType = "system"
	ActorTypeUser      ActorType = "user"
	ActorTypeAPI       ActorType = "api"
	ActorTypeScheduler ActorType = "scheduler"
)

const (
	ActionInventoryAdjusted = "inventory.adjusted"
	ActionAlertResolved     = "alert.resolved"
	ActionAlertDismissed    = "alert.dismissed"
	ActionAlertAutoResolved = "alert.auto_resolved"
)

const (
	TargetPart  = "part"
	TargetAlert = "alert"
)

// AuditLog is an append-only record of a manual or system action on stock or
// alerts.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:varchar(32);not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:varchar(128)"`
	Action     string            `json:"action" gorm:"type:varchar(64);not null;index:ix_audit_logs_action"`
	TargetType string            `json:"target_type" gorm:"type:varchar(64);not null;index:ix_audit_logs_target"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:varchar(128);index:ix_audit_logs_target"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:json"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry describes one action to record. Actor fields are optional; the actor
// carried by the context is used when they are empty.
type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  ActorType
	ActorID    string
	Metadata   map[string]any
}

type ListFilter struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, int64, error)
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string     `form:"action"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	ActorType  string     `form:"actor_type"`
	StartAt    *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Record appends entry using tx when it is non-nil, so the entry commits
	// or rolls back with the caller's unit of work.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
