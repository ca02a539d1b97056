package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateEOQ(t *testing.T) {
	assert.Zero(t, CalculateEOQ(0, 50, 1))
	assert.Zero(t, CalculateEOQ(1000, 0, 1))
	assert.Zero(t, CalculateEOQ(1000, 50, -1))
	assert.InDelta(t, 316.23, CalculateEOQ(1000, 50, 1), 0.01)
	assert.Equal(t, 1.0, CalculateEOQ(0.001, 1, 1000))

	prev := 0.0
	for _, demand := range []float64{10, 100, 1000, 10000} {
		eoq := CalculateEOQ(demand, 50, 2)
		assert.Greater(t, eoq, prev)
		prev = eoq
	}
}

func TestZScoreUsesHighestLevelNotAbove(t *testing.T) {
	assert.Equal(t, 0.0, ZScore(0.3))
	assert.Equal(t, 1.65, ZScore(0.95))
	assert.Equal(t, 1.65, ZScore(0.96))
	assert.Equal(t, 2.33, ZScore(0.995))
	assert.Equal(t, 3.09, ZScore(1))
}

func TestCalculateSafetyStock(t *testing.T) {
	// 1.65 * 0.2 * 10 * sqrt(4) = 6.6
	assert.Equal(t, int64(7), CalculateSafetyStock(10, 4, 0.95))
	assert.Zero(t, CalculateSafetyStock(0, 4, 0.95))
	assert.Zero(t, CalculateSafetyStock(10, 0, 0.95))
	assert.Zero(t, CalculateSafetyStock(10, 4, 0.5))
}

func TestPlannedOrderQuantity(t *testing.T) {
	policy := OrderPolicy{OrderingCost: 50, HoldingCostRate: 0.25, MaxMultiplier: 3}

	qty, eoq := policy.PlannedOrderQuantity(0, 10, 5, decimal.NewFromInt(4))
	assert.Zero(t, qty)
	assert.False(t, eoq)

	// D = 100*365/5 = 7300, H = 1, EOQ = sqrt(730000) ~ 854.4 > 3 * 110.
	qty, eoq = policy.PlannedOrderQuantity(100, 10, 5, decimal.NewFromInt(4))
	assert.Equal(t, int64(110), qty)
	assert.False(t, eoq)

	// D = 100*365/5 = 7300, H = 25, EOQ = sqrt(29200) ~ 170.9, within [110, 330].
	qty, eoq = policy.PlannedOrderQuantity(100, 10, 5, decimal.NewFromInt(100))
	assert.Equal(t, int64(171), qty)
	assert.True(t, eoq)

	qty, _ = policy.PlannedOrderQuantity(40, 5, 0, decimal.Zero)
	assert.Equal(t, int64(45), qty)
}

func TestClassifyShortage(t *testing.T) {
	assert.Equal(t, ShortageStatusSufficient, ClassifyShortage(200, 0, 0.5))
	assert.Equal(t, ShortageStatusShortage, ClassifyShortage(200, 50, 0.5))
	assert.Equal(t, ShortageStatusCritical, ClassifyShortage(200, 100, 0.5))
	assert.Equal(t, ShortageStatusCritical, ClassifyShortage(200, 200, 0.5))
}

func TestAllocationStatusFor(t *testing.T) {
	assert.Equal(t, AllocationStatusAllocated, AllocationStatusFor(10, 10))
	assert.Equal(t, AllocationStatusPartial, AllocationStatusFor(10, 4))
	assert.Equal(t, AllocationStatusUnallocated, AllocationStatusFor(10, 0))
}
