package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanningConfig carries the tunable thresholds used by requirement
// planning, the inventory ledger and alert triggers.
type PlanningConfig struct {
	CriticalShortageRatio    float64       `mapstructure:"criticalShortageRatio"`
	OrderingCost             float64       `mapstructure:"orderingCost"`
	HoldingCostRate          float64       `mapstructure:"holdingCostRate"`
	EOQMaxMultiplier         float64       `mapstructure:"eoqMaxMultiplier"`
	CapacityWarningThreshold float64       `mapstructure:"capacityWarningThreshold"`
	CapacityLookbackDays     int           `mapstructure:"capacityLookbackDays"`
	CostVarianceWarning      float64       `mapstructure:"costVarianceWarning"`
	CostVarianceCritical     float64       `mapstructure:"costVarianceCritical"`
	DefectRateThreshold      float64       `mapstructure:"defectRateThreshold"`
	DeliveryRiskWindowDays   int           `mapstructure:"deliveryRiskWindowDays"`
	AutoResolveInfoAfter     time.Duration `mapstructure:"autoResolveInfoAfter"`
	MaxStockRetries          int           `mapstructure:"maxStockRetries"`
}

func DefaultPlanningConfig() PlanningConfig {
	return PlanningConfig{
		CriticalShortageRatio:    0.5,
		OrderingCost:             50,
		HoldingCostRate:          0.25,
		EOQMaxMultiplier:         3,
		CapacityWarningThreshold: 0.10,
		CapacityLookbackDays:     30,
		CostVarianceWarning:      0.10,
		CostVarianceCritical:     0.25,
		DefectRateThreshold:      0.05,
		DeliveryRiskWindowDays:   7,
		AutoResolveInfoAfter:     72 * time.Hour,
		MaxStockRetries:          3,
	}
}

type PlanningConfigHolder struct {
	current atomic.Value // holds PlanningConfig
}

// NewStaticPlanningConfig returns a holder pinned to cfg, without file
// watching.
func NewStaticPlanningConfig(cfg PlanningConfig) *PlanningConfigHolder {
	holder := &PlanningConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPlanningConfigHolder() (*PlanningConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("planning")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/mrpledger/config")
	v.AddConfigPath("/etc/mrpledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MRPLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPlanningDefaults(v, DefaultPlanningConfig())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PlanningConfig
	if err := v.UnmarshalKey("planning", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanningConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlanningConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanningConfig
		if err := v.UnmarshalKey("planning", &updated); err != nil {
			log.Printf("[planning-config] reload failed: %v", err)
			return
		}
		if err := validatePlanningConfig(updated); err != nil {
			log.Printf("[planning-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[planning-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Get returns the active configuration. A nil holder yields the defaults.
func (h *PlanningConfigHolder) Get() PlanningConfig {
	if h == nil {
		return DefaultPlanningConfig()
	}
	cfg, ok := h.current.Load().(PlanningConfig)
	if !ok {
		return DefaultPlanningConfig()
	}
	return cfg
}

func setPlanningDefaults(v *viper.Viper, d PlanningConfig) {
	v.SetDefault("planning.criticalShortageRatio", d.CriticalShortageRatio)
	v.SetDefault("planning.orderingCost", d.OrderingCost)
	v.SetDefault("planning.holdingCostRate", d.HoldingCostRate)
	v.SetDefault("planning.eoqMaxMultiplier", d.EOQMaxMultiplier)
	v.SetDefault("planning.capacityWarningThreshold", d.CapacityWarningThreshold)
	v.SetDefault("planning.capacityLookbackDays", d.CapacityLookbackDays)
	v.SetDefault("planning.costVarianceWarning", d.CostVarianceWarning)
	v.SetDefault("planning.costVarianceCritical", d.CostVarianceCritical)
	v.SetDefault("planning.defectRateThreshold", d.DefectRateThreshold)
	v.SetDefault("planning.deliveryRiskWindowDays", d.DeliveryRiskWindowDays)
	v.SetDefault("planning.autoResolveInfoAfter", d.AutoResolveInfoAfter)
	v.SetDefault("planning.maxStockRetries", d.MaxStockRetries)
}

func validatePlanningConfig(cfg PlanningConfig) error {
	if cfg.CriticalShortageRatio <= 0 || cfg.CriticalShortageRatio > 1 {
		return errors.New("planning.criticalShortageRatio must be in (0, 1]")
	}
	if cfg.OrderingCost < 0 || cfg.HoldingCostRate < 0 {
		return errors.New("planning ordering and holding costs cannot be negative")
	}
	if cfg.EOQMaxMultiplier < 1 {
		return errors.New("planning.eoqMaxMultiplier must be at least 1")
	}
	if cfg.CapacityWarningThreshold < 0 {
		return errors.New("planning.capacityWarningThreshold cannot be negative")
	}
	if cfg.CostVarianceWarning <= 0 || cfg.CostVarianceCritical < cfg.CostVarianceWarning {
		return fmt.Errorf("planning cost variance thresholds invalid: warning=%v critical=%v", cfg.CostVarianceWarning, cfg.CostVarianceCritical)
	}
	if cfg.DefectRateThreshold <= 0 || cfg.DefectRateThreshold >= 1 {
		return errors.New("planning.defectRateThreshold must be in (0, 1)")
	}
	if cfg.DeliveryRiskWindowDays <= 0 || cfg.CapacityLookbackDays <= 0 {
		return errors.New("planning windows must be positive")
	}
	if cfg.AutoResolveInfoAfter <= 0 {
		return errors.New("planning.autoResolveInfoAfter must be positive")
	}
	if cfg.MaxStockRetries < 1 {
		return errors.New("planning.maxStockRetries must be at least 1")
	}
	return nil
}
