package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertTypeShortage         AlertType = "shortage"
	AlertTypeReorder          AlertType = "reorder"
	AlertTypeScheduleConflict AlertType = "schedule_conflict"
	AlertTypeCostOverrun      AlertType = "cost_overrun"
	AlertTypeCapacityWarning  AlertType = "capacity_warning"
	AlertTypeQualityIssue     AlertType = "quality_issue"
	AlertTypeDeliveryRisk     AlertType = "delivery_risk"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeShortage,
		AlertTypeReorder,
		AlertTypeScheduleConflict,
		AlertTypeCostOverrun,
		AlertTypeCapacityWarning,
		AlertTypeQualityIssue,
		AlertTypeDeliveryRisk:
		return true
	default:
		return false
	}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// Rank orders severities for listing; lower ranks first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusDismissed:
		return true
	default:
		return false
	}
}

// Alert is a planning or inventory signal. ActiveKey is set while the alert is
// active and cleared on the terminal transition; its unique index keeps one
// active alert per type and reference.
type Alert struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	AlertType       AlertType         `json:"alert_type" gorm:"type:varchar(32);not null;index:ix_alerts_type_reference"`
	Severity        Severity          `json:"severity" gorm:"type:varchar(16);not null"`
	Title           string            `json:"title" gorm:"type:text;not null"`
	Description     string            `json:"description" gorm:"type:text;not null;default:''"`
	Reference       *string           `json:"reference,omitempty" gorm:"type:varchar(128);index:ix_alerts_type_reference"`
	ActiveKey       *string           `json:"-" gorm:"type:varchar(200);uniqueIndex:ux_alerts_active_key"`
	Status          Status            `json:"status" gorm:"type:varchar(16);not null;index:ix_alerts_status"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:json"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"not null"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	Resolution      *string           `json:"resolution,omitempty" gorm:"type:text"`
	DismissedAt     *time.Time        `json:"dismissed_at,omitempty"`
	DismissalReason *string           `json:"dismissal_reason,omitempty" gorm:"type:text"`
}

func (Alert) TableName() string { return "alerts" }

// ActiveKeyFor builds the dedup key for an active alert.
func ActiveKeyFor(alertType AlertType, reference *string) string {
	ref := ""
	if reference != nil {
		ref = *reference
	}
	return string(alertType) + "|" + ref
}

// Candidate is an alert a trigger rule wants raised. Rules return candidates;
// the service decides whether they become new rows or refresh existing ones.
type Candidate struct {
	Type        AlertType
	Severity    Severity
	Title       string
	Description string
	Reference   *string
	Metadata    map[string]any
}

func (c Candidate) Request() CreateRequest {
	return CreateRequest{
		Type:        c.Type,
		Severity:    c.Severity,
		Title:       c.Title,
		Description: c.Description,
		Reference:   c.Reference,
		Metadata:    c.Metadata,
	}
}
