package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// serviceLevelZ maps tabulated service levels to their normal-distribution
// z-scores, ascending by level.
var serviceLevelZ = []struct {
	level float64
	z     float64
}{
	{0.50, 0},
	{0.80, 0.84},
	{0.85, 1.04},
	{0.90, 1.28},
	{0.95, 1.65},
	{0.975, 1.96},
	{0.99, 2.33},
	{0.999, 3.09},
}

// demandVariability is the assumed coefficient of variation of daily demand.
const demandVariability = 0.2

// CalculateEOQ returns the economic order quantity. Any non-positive input
// yields zero; otherwise the result is at least one unit.
func CalculateEOQ(annualDemand, orderingCost, holdingCostPerUnit float64) float64 {
	if annualDemand <= 0 || orderingCost <= 0 || holdingCostPerUnit <= 0 {
		return 0
	}
	return math.Max(1, math.Sqrt(2*annualDemand*orderingCost/holdingCostPerUnit))
}

// ZScore returns the z-score of the highest tabulated service level not
// above serviceLevel.
func ZScore(serviceLevel float64) float64 {
	z := 0.0
	for _, entry := range serviceLevelZ {
		if entry.level > serviceLevel {
			break
		}
		z = entry.z
	}
	return z
}

func CalculateSafetyStock(avgDailyDemand float64, leadTimeDays int, serviceLevel float64) int64 {
	if avgDailyDemand <= 0 || leadTimeDays <= 0 {
		return 0
	}
	ss := ZScore(serviceLevel) * demandVariability * avgDailyDemand * math.Sqrt(float64(leadTimeDays))
	return int64(math.Ceil(ss))
}

// OrderPolicy carries the cost parameters used to size planned orders.
type OrderPolicy struct {
	OrderingCost    float64
	HoldingCostRate float64
	MaxMultiplier   float64
}

// PlannedOrderQuantity covers the net requirement plus safety stock, rounding
// up to the EOQ when it stays within MaxMultiplier of that minimum. The
// second return reports whether the EOQ was adopted.
func (p OrderPolicy) PlannedOrderQuantity(net, safetyStock int64, leadTimeDays int, unitCost decimal.Decimal) (int64, bool) {
	if net <= 0 {
		return 0, false
	}
	minimum := net + max(safetyStock, 0)

	annualDemand := float64(net) * 365 / float64(max(1, leadTimeDays))
	holding := unitCost.InexactFloat64() * p.HoldingCostRate
	eoq := math.Ceil(CalculateEOQ(annualDemand, p.OrderingCost, holding))
	if eoq >= float64(minimum) && eoq <= p.MaxMultiplier*float64(minimum) {
		return int64(eoq), true
	}
	return minimum, false
}

// ClassifyShortage maps a net requirement onto the shortage scale.
func ClassifyShortage(gross, net int64, criticalRatio float64) ShortageStatus {
	switch {
	case net <= 0:
		return ShortageStatusSufficient
	case float64(net) >= criticalRatio*float64(gross):
		return ShortageStatusCritical
	default:
		return ShortageStatusShortage
	}
}
