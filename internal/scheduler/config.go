package scheduler

import (
	"time"

	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/smallbiznis/mrpledger/internal/ratelimit"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
)

const (
	JobAutoResolveAlerts   = "auto_resolve_alerts"
	JobRefreshRequirements = "refresh_requirements"
	JobInventorySweep      = "inventory_sweep"
	JobScheduleConflicts   = "schedule_conflicts"
	JobDeliveryRisk        = "delivery_risk"
	JobCapacity            = "capacity"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	// EnabledJobs restricts the run to the named jobs. Empty enables all.
	EnabledJobs []string
	// RefreshStatus selects the schedules whose requirements are recomputed.
	RefreshStatus scheduledomain.ScheduleStatus
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		JobTimeout:    30 * time.Second,
		LockTTL:       2 * time.Minute,
		RefreshStatus: scheduledomain.ScheduleStatusPlanned,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RefreshStatus == "" {
		c.RefreshStatus = defaults.RefreshStatus
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.Scheduler.IntervalSec) * time.Second,
		LockTTL:     ratelimit.LockTTL(cfg),
		EnabledJobs: cfg.Scheduler.Jobs,
	}
}
