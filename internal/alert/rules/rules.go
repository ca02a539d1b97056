// Package rules holds the alert trigger rules. Every rule is a pure function
// of its input; persistence and deduplication belong to the alert service.
package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mrpledger/internal/alert/domain"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
)

// Input is the closed set of trigger inputs accepted by Evaluate.
type Input interface {
	isInput()
}

type InventoryInput struct {
	Part catalogdomain.Part
}

type ReorderInput struct {
	Part     catalogdomain.Part
	NewStock int64
}

// RequirementLine is the allocation state of one part for a schedule.
type RequirementLine struct {
	PartNumber string
	Required   int64
	Allocated  int64
}

type ScheduleConflictInput struct {
	Target       scheduledomain.ProductionSchedule
	Others       []scheduledomain.ProductionSchedule
	Requirements []RequirementLine
}

type CapacityInput struct {
	Schedule      scheduledomain.ProductionSchedule
	HistoricalAvg float64
	Threshold     float64
}

type CostVarianceInput struct {
	Reference string
	Estimated decimal.Decimal
	Actual    decimal.Decimal
	Warning   decimal.Decimal
	Critical  decimal.Decimal
}

type QualityInput struct {
	Reference string
	Inspected int64
	Defective int64
	Threshold float64
}

type OrderDeliveryInput struct {
	Order       scheduledomain.CustomerOrder
	HasSchedule bool
	Now         time.Time
	Window      time.Duration
}

type ScheduleDeliveryInput struct {
	Schedule     scheduledomain.ProductionSchedule
	Requirements []RequirementLine
}

func (InventoryInput) isInput()        {}
func (ReorderInput) isInput()          {}
func (ScheduleConflictInput) isInput() {}
func (CapacityInput) isInput()         {}
func (CostVarianceInput) isInput()     {}
func (QualityInput) isInput()          {}
func (OrderDeliveryInput) isInput()    {}
func (ScheduleDeliveryInput) isInput() {}

// Evaluate dispatches the input to its rule.
func Evaluate(in Input) []domain.Candidate {
	switch v := in.(type) {
	case InventoryInput:
		return Inventory(v.Part)
	case ReorderInput:
		return single(Reorder(v.Part, v.NewStock))
	case ScheduleConflictInput:
		return single(ScheduleConflict(v.Target, v.Others, v.Requirements))
	case CapacityInput:
		return single(Capacity(v.Schedule, v.HistoricalAvg, v.Threshold))
	case CostVarianceInput:
		return single(CostVariance(v.Reference, v.Estimated, v.Actual, v.Warning, v.Critical))
	case QualityInput:
		return single(Quality(v.Reference, v.Inspected, v.Defective, v.Threshold))
	case OrderDeliveryInput:
		return single(DeliveryRiskForOrder(v.Order, v.HasSchedule, v.Now, v.Window))
	case ScheduleDeliveryInput:
		return single(DeliveryRiskForSchedule(v.Schedule, v.Requirements))
	default:
		return nil
	}
}

func single(c domain.Candidate, ok bool) []domain.Candidate {
	if !ok {
		return nil
	}
	return []domain.Candidate{c}
}

// Inventory raises a critical shortage at zero stock and a reorder warning at
// or below the reorder point or the safety stock.
func Inventory(part catalogdomain.Part) []domain.Candidate {
	var out []domain.Candidate
	ref := part.PartNumber
	if part.CurrentStock <= 0 {
		out = append(out, domain.Candidate{
			Type:        domain.AlertTypeShortage,
			Severity:    domain.SeverityCritical,
			Title:       fmt.Sprintf("Out of stock: %s", part.PartNumber),
			Description: fmt.Sprintf("%s has no stock on hand.", describePart(part)),
			Reference:   &ref,
			Metadata:    stockMetadata(part, part.CurrentStock),
		})
	}
	switch {
	case part.CurrentStock <= part.ReorderPoint:
		out = append(out, domain.Candidate{
			Type:        domain.AlertTypeReorder,
			Severity:    domain.SeverityWarning,
			Title:       fmt.Sprintf("Reorder point reached: %s", part.PartNumber),
			Description: fmt.Sprintf("%s stock %d is at or below reorder point %d.", describePart(part), part.CurrentStock, part.ReorderPoint),
			Reference:   &ref,
			Metadata:    stockMetadata(part, part.CurrentStock),
		})
	case part.CurrentStock <= part.SafetyStock:
		out = append(out, domain.Candidate{
			Type:        domain.AlertTypeReorder,
			Severity:    domain.SeverityWarning,
			Title:       fmt.Sprintf("Below safety stock: %s", part.PartNumber),
			Description: fmt.Sprintf("%s stock %d is at or below safety stock %d.", describePart(part), part.CurrentStock, part.SafetyStock),
			Reference:   &ref,
			Metadata:    stockMetadata(part, part.CurrentStock),
		})
	}
	return out
}

// RecommendedReorderQuantity covers lead-time usage plus safety stock and at
// least lifts stock back to the reorder point.
func RecommendedReorderQuantity(part catalogdomain.Part, newStock int64) int64 {
	leadTime := float64(max(1, part.LeadTimeDays))
	dailyUsage := math.Max(1, float64(part.ReorderPoint-part.SafetyStock)/leadTime)
	coverage := float64(part.LeadTimeDays)*dailyUsage + float64(part.SafetyStock) - float64(newStock)
	toReorderPoint := float64(part.ReorderPoint - newStock)
	return int64(math.Ceil(math.Max(math.Max(coverage, toReorderPoint), 0)))
}

// Reorder is the post-movement check run by the ledger.
func Reorder(part catalogdomain.Part, newStock int64) (domain.Candidate, bool) {
	if newStock > part.ReorderPoint {
		return domain.Candidate{}, false
	}
	severity := domain.SeverityWarning
	if newStock <= part.SafetyStock {
		severity = domain.SeverityCritical
	}
	qty := RecommendedReorderQuantity(part, newStock)
	ref := part.PartNumber
	meta := stockMetadata(part, newStock)
	meta["recommended_quantity"] = qty
	return domain.Candidate{
		Type:     domain.AlertTypeReorder,
		Severity: severity,
		Title:    fmt.Sprintf("Reorder %s", part.PartNumber),
		Description: fmt.Sprintf("%s stock %d is at or below reorder point %d. Recommended order quantity: %d from %s (lead time %d days).",
			describePart(part), newStock, part.ReorderPoint, qty, supplierName(part), part.LeadTimeDays),
		Reference: &ref,
		Metadata:  meta,
	}, true
}

// ScheduleConflict reports workstation overlaps with other live schedules and
// material that could not be allocated to the target schedule.
func ScheduleConflict(target scheduledomain.ProductionSchedule, others []scheduledomain.ProductionSchedule, requirements []RequirementLine) (domain.Candidate, bool) {
	var overlapping []string
	if target.WorkstationID != "" {
		for _, other := range others {
			if other.ID == target.ID || other.Status.Terminal() {
				continue
			}
			if other.WorkstationID != target.WorkstationID || !target.Overlaps(other) {
				continue
			}
			overlapping = append(overlapping, other.ID.String())
		}
	}

	var short []string
	unallocated := false
	for _, req := range requirements {
		if req.Allocated < req.Required {
			short = append(short, req.PartNumber)
			if req.Allocated <= 0 {
				unallocated = true
			}
		}
	}

	if len(overlapping) == 0 && len(short) == 0 {
		return domain.Candidate{}, false
	}

	severity := domain.SeverityWarning
	if unallocated {
		severity = domain.SeverityCritical
	}
	description := fmt.Sprintf("Schedule %s has conflicts.", target.ID)
	if len(overlapping) > 0 {
		description += fmt.Sprintf(" Workstation %s is double-booked with %d schedule(s).", target.WorkstationID, len(overlapping))
	}
	if len(short) > 0 {
		description += fmt.Sprintf(" %d part(s) are not fully allocated.", len(short))
	}

	ref := target.ID.String()
	return domain.Candidate{
		Type:        domain.AlertTypeScheduleConflict,
		Severity:    severity,
		Title:       fmt.Sprintf("Schedule conflict: %s", target.ID),
		Description: description,
		Reference:   &ref,
		Metadata: map[string]any{
			"workstation_id":        target.WorkstationID,
			"overlapping_schedules": overlapping,
			"unallocated_parts":     short,
			"start_date":            target.StartDate.Format(time.RFC3339),
			"end_date":              target.EndDate.Format(time.RFC3339),
		},
	}, true
}

// Capacity warns when the planned daily rate exceeds the historical average
// by more than threshold. No history means nothing to compare against.
func Capacity(schedule scheduledomain.ProductionSchedule, historicalAvg, threshold float64) (domain.Candidate, bool) {
	if historicalAvg <= 0 {
		return domain.Candidate{}, false
	}
	rate := float64(schedule.UnitsToProducePerDay)
	limit := historicalAvg * (1 + threshold)
	if rate <= limit {
		return domain.Candidate{}, false
	}
	ref := schedule.ID.String()
	excess := (rate/historicalAvg - 1) * 100
	return domain.Candidate{
		Type:     domain.AlertTypeCapacityWarning,
		Severity: domain.SeverityWarning,
		Title:    fmt.Sprintf("Capacity warning: schedule %s", schedule.ID),
		Description: fmt.Sprintf("Planned rate %d/day on %s is %.1f%% above the historical average of %.1f/day.",
			schedule.UnitsToProducePerDay, schedule.WorkstationID, excess, historicalAvg),
		Reference: &ref,
		Metadata: map[string]any{
			"workstation_id":  schedule.WorkstationID,
			"planned_rate":    schedule.UnitsToProducePerDay,
			"historical_avg":  historicalAvg,
			"threshold_ratio": threshold,
		},
	}, true
}

// CostVariance compares actual against estimated cost. Thresholds are ratios
// of the estimate.
func CostVariance(reference string, estimated, actual, warning, critical decimal.Decimal) (domain.Candidate, bool) {
	if !estimated.IsPositive() {
		return domain.Candidate{}, false
	}
	variance := actual.Sub(estimated).Abs().Div(estimated)
	if !variance.GreaterThan(warning) {
		return domain.Candidate{}, false
	}
	severity := domain.SeverityWarning
	if variance.GreaterThan(critical) {
		severity = domain.SeverityCritical
	}
	direction := "over"
	if actual.LessThan(estimated) {
		direction = "under"
	}
	percent := variance.Mul(decimal.NewFromInt(100)).StringFixed(1)
	ref := reference
	return domain.Candidate{
		Type:        domain.AlertTypeCostOverrun,
		Severity:    severity,
		Title:       fmt.Sprintf("Cost variance: %s", reference),
		Description: fmt.Sprintf("Actual cost %s is %s%% %s the estimate of %s.", actual.StringFixed(2), percent, direction, estimated.StringFixed(2)),
		Reference:   &ref,
		Metadata: map[string]any{
			"estimated":    estimated.String(),
			"actual":       actual.String(),
			"variance_pct": percent,
		},
	}, true
}

// Quality flags a defect rate above threshold, critical above twice it.
func Quality(reference string, inspected, defective int64, threshold float64) (domain.Candidate, bool) {
	if inspected <= 0 || defective <= 0 {
		return domain.Candidate{}, false
	}
	rate := float64(defective) / float64(inspected)
	if rate <= threshold {
		return domain.Candidate{}, false
	}
	severity := domain.SeverityWarning
	if rate > 2*threshold {
		severity = domain.SeverityCritical
	}
	ref := reference
	return domain.Candidate{
		Type:        domain.AlertTypeQualityIssue,
		Severity:    severity,
		Title:       fmt.Sprintf("Quality issue: %s", reference),
		Description: fmt.Sprintf("%d of %d inspected units defective (%.1f%%, threshold %.1f%%).", defective, inspected, rate*100, threshold*100),
		Reference:   &ref,
		Metadata: map[string]any{
			"inspected":   inspected,
			"defective":   defective,
			"defect_rate": rate,
		},
	}, true
}

// DeliveryRiskForOrder flags an open order due within window that has no
// production planned for it.
func DeliveryRiskForOrder(order scheduledomain.CustomerOrder, hasSchedule bool, now time.Time, window time.Duration) (domain.Candidate, bool) {
	if hasSchedule || order.Status != scheduledomain.OrderStatusOpen {
		return domain.Candidate{}, false
	}
	remaining := order.DueDate.Sub(now)
	if remaining > window {
		return domain.Candidate{}, false
	}
	severity := domain.SeverityWarning
	if remaining <= window/2 {
		severity = domain.SeverityCritical
	}
	days := int64(math.Ceil(remaining.Hours() / 24))
	ref := order.ID.String()
	return domain.Candidate{
		Type:        domain.AlertTypeDeliveryRisk,
		Severity:    severity,
		Title:       fmt.Sprintf("Delivery risk: order %s", order.ID),
		Description: fmt.Sprintf("Order %s for %d units is due in %d day(s) with no production scheduled.", order.ID, order.Quantity, days),
		Reference:   &ref,
		Metadata: map[string]any{
			"product_id": order.ProductID.String(),
			"due_date":   order.DueDate.Format(time.RFC3339),
			"quantity":   order.Quantity,
		},
	}, true
}

// DeliveryRiskForSchedule flags a live schedule whose material is not fully
// allocated.
func DeliveryRiskForSchedule(schedule scheduledomain.ProductionSchedule, requirements []RequirementLine) (domain.Candidate, bool) {
	if schedule.Status.Terminal() {
		return domain.Candidate{}, false
	}
	var missing int64
	var parts []string
	for _, req := range requirements {
		if req.Allocated < req.Required {
			missing += req.Required - req.Allocated
			parts = append(parts, req.PartNumber)
		}
	}
	if len(parts) == 0 {
		return domain.Candidate{}, false
	}
	ref := schedule.ID.String()
	return domain.Candidate{
		Type:        domain.AlertTypeDeliveryRisk,
		Severity:    domain.SeverityWarning,
		Title:       fmt.Sprintf("Delivery risk: schedule %s", schedule.ID),
		Description: fmt.Sprintf("Schedule %s is missing %d unit(s) across %d part(s); production may be delayed.", schedule.ID, missing, len(parts)),
		Reference:   &ref,
		Metadata: map[string]any{
			"unallocated_parts": parts,
			"missing_units":     missing,
			"start_date":        schedule.StartDate.Format(time.RFC3339),
		},
	}, true
}

func describePart(part catalogdomain.Part) string {
	if part.Description == "" {
		return part.PartNumber
	}
	return fmt.Sprintf("%s (%s)", part.PartNumber, part.Description)
}

func supplierName(part catalogdomain.Part) string {
	if part.Supplier == "" {
		return "the usual supplier"
	}
	return part.Supplier
}

func stockMetadata(part catalogdomain.Part, stock int64) map[string]any {
	return map[string]any{
		"current_stock": stock,
		"reorder_point": part.ReorderPoint,
		"safety_stock":  part.SafetyStock,
		"supplier":      part.Supplier,
	}
}
