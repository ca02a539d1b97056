package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanningConfigIsValid(t *testing.T) {
	cfg := DefaultPlanningConfig()
	require.NoError(t, validatePlanningConfig(cfg))
	assert.Equal(t, 0.5, cfg.CriticalShortageRatio)
	assert.Equal(t, 0.10, cfg.CapacityWarningThreshold)
	assert.Equal(t, 72*time.Hour, cfg.AutoResolveInfoAfter)
}

func TestValidatePlanningConfigRejectsBadThresholds(t *testing.T) {
	cfg := DefaultPlanningConfig()
	cfg.CriticalShortageRatio = 0
	assert.Error(t, validatePlanningConfig(cfg))

	cfg = DefaultPlanningConfig()
	cfg.CostVarianceCritical = 0.05
	assert.Error(t, validatePlanningConfig(cfg))

	cfg = DefaultPlanningConfig()
	cfg.MaxStockRetries = 0
	assert.Error(t, validatePlanningConfig(cfg))
}

func TestPlanningConfigHolderGet(t *testing.T) {
	var nilHolder *PlanningConfigHolder
	assert.Equal(t, DefaultPlanningConfig(), nilHolder.Get())

	custom := DefaultPlanningConfig()
	custom.CriticalShortageRatio = 0.75
	holder := NewStaticPlanningConfig(custom)
	assert.Equal(t, 0.75, holder.Get().CriticalShortageRatio)
}

func TestNewPlanningConfigHolderFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPlanningConfigHolder()
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanningConfig(), holder.Get())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, splitList(" a@x.io, ,b@x.io "))
	assert.Empty(t, splitList(""))
}
