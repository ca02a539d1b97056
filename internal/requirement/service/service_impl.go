package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"github.com/smallbiznis/mrpledger/internal/clock"
	"github.com/smallbiznis/mrpledger/internal/config"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"github.com/smallbiznis/mrpledger/internal/requirement/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	CatalogSvc  catalogdomain.Service
	ScheduleSvc scheduledomain.Service
	AlertSvc    alertdomain.Service
	Planning    *config.PlanningConfigHolder
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	catalogSvc  catalogdomain.Service
	scheduleSvc scheduledomain.Service
	alertSvc    alertdomain.Service
	planning    *config.PlanningConfigHolder
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("requirement.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogSvc:  p.CatalogSvc,
		scheduleSvc: p.ScheduleSvc,
		alertSvc:    p.AlertSvc,
		planning:    p.Planning,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CalculateRequirements(ctx context.Context, scheduleID snowflake.ID) (*domain.Calculation, error) {
	schedule, err := s.scheduleSvc.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	calc, err := s.calculate(ctx, *schedule, []snowflake.ID{schedule.ID})
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordRequirementRun(ctx, overallStatus(calc.Summary))
	return calc, nil
}

// CreateMaterialRequirements replaces the schedule's persisted requirement
// rows with a fresh calculation and raises shortage alerts for parts that
// cannot be covered.
func (s *Service) CreateMaterialRequirements(ctx context.Context, scheduleID snowflake.ID) (*domain.Calculation, error) {
	schedule, err := s.scheduleSvc.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	calc, err := s.calculate(ctx, *schedule, []snowflake.ID{schedule.ID})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rows := make([]domain.MaterialRequirement, 0, len(calc.Results))
	for _, result := range calc.Results {
		allocated := min(result.GrossRequirement, result.AvailableStock)
		rows = append(rows, domain.MaterialRequirement{
			ID:                s.genID.Generate(),
			ScheduleID:        schedule.ID,
			PartNumber:        result.PartNumber,
			RequiredQuantity:  result.GrossRequirement,
			AllocatedQuantity: allocated,
			Status:            domain.AllocationStatusFor(result.GrossRequirement, allocated),
			CreatedAt:         now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.ReplaceForSchedule(ctx, tx, schedule.ID, rows)
	})
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordRequirementRun(ctx, overallStatus(calc.Summary))

	for _, result := range calc.Results {
		if result.Status == domain.ShortageStatusSufficient {
			continue
		}
		candidate := shortageCandidate(*schedule, result)
		if _, _, err := s.alertSvc.CreateAlert(ctx, candidate.Request()); err != nil {
			s.log.Warn("shortage alert failed",
				zap.String("schedule_id", schedule.ID.String()),
				zap.String("part_number", result.PartNumber),
				zap.Error(err),
			)
		}
	}

	s.log.Info("material requirements stored",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Int("parts", calc.Summary.TotalParts),
		zap.Int("shortage", calc.Summary.Shortage),
		zap.Int("critical", calc.Summary.Critical),
	)
	return calc, nil
}

// RunForAllSchedules persists requirements for every schedule in status.
// An empty status means planned. Failures are collected per schedule.
func (s *Service) RunForAllSchedules(ctx context.Context, status scheduledomain.ScheduleStatus) (*domain.BatchResult, error) {
	if status == "" {
		status = scheduledomain.ScheduleStatusPlanned
	}
	schedules, err := s.scheduleSvc.ListSchedules(ctx, status)
	if err != nil {
		return nil, err
	}

	result := &domain.BatchResult{
		Succeeded: []snowflake.ID{},
		Failed:    []domain.BatchFailure{},
	}
	for _, schedule := range schedules {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		if _, err := s.CreateMaterialRequirements(ctx, schedule.ID); err != nil {
			s.log.Warn("requirement run failed for schedule",
				zap.String("schedule_id", schedule.ID.String()),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, domain.BatchFailure{ScheduleID: schedule.ID, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, schedule.ID)
	}

	s.log.Info("requirement run finished",
		zap.String("status", string(status)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

type claim struct {
	scheduleID snowflake.ID
	orderDate  time.Time
	required   int64
}

// AllocateAcrossSchedules plans how the free stock of each part would be
// shared between the given schedules, earliest planned order first. Nothing
// is persisted.
func (s *Service) AllocateAcrossSchedules(ctx context.Context, scheduleIDs []snowflake.ID) (*domain.AllocationPlan, error) {
	ids := uniqueIDs(scheduleIDs)
	if len(ids) == 0 {
		return nil, domain.ErrNoSchedules
	}

	plan := &domain.AllocationPlan{
		Parts:  []domain.PartAllocation{},
		Failed: []domain.BatchFailure{},
	}
	var calcs []*domain.Calculation
	for _, id := range ids {
		schedule, err := s.scheduleSvc.GetSchedule(ctx, id)
		if err == nil {
			var calc *domain.Calculation
			calc, err = s.calculate(ctx, *schedule, ids)
			if err == nil {
				calcs = append(calcs, calc)
				continue
			}
		}
		plan.Failed = append(plan.Failed, domain.BatchFailure{ScheduleID: id, Error: err.Error()})
	}

	claims := map[string][]claim{}
	pools := map[string]int64{}
	for _, calc := range calcs {
		for _, result := range calc.Results {
			claims[result.PartNumber] = append(claims[result.PartNumber], claim{
				scheduleID: calc.ScheduleID,
				orderDate:  result.PlannedOrderDate,
				required:   result.GrossRequirement,
			})
			pools[result.PartNumber] = max(0, result.CurrentStock-result.AllocatedElsewhere)
		}
	}

	partNumbers := make([]string, 0, len(claims))
	for partNumber := range claims {
		partNumbers = append(partNumbers, partNumber)
	}
	slices.Sort(partNumbers)

	for _, partNumber := range partNumbers {
		queue := claims[partNumber]
		slices.SortStableFunc(queue, func(a, b claim) int {
			return a.orderDate.Compare(b.orderDate)
		})

		remaining := pools[partNumber]
		allocation := domain.PartAllocation{
			PartNumber:  partNumber,
			Pool:        remaining,
			Allocations: make([]domain.ScheduleAllocation, 0, len(queue)),
		}
		for _, c := range queue {
			granted := min(c.required, remaining)
			remaining -= granted
			allocation.Allocations = append(allocation.Allocations, domain.ScheduleAllocation{
				ScheduleID:       c.scheduleID,
				PlannedOrderDate: c.orderDate,
				Required:         c.required,
				Allocated:        granted,
				Shortfall:        c.required - granted,
			})
		}
		allocation.Remaining = remaining
		plan.Parts = append(plan.Parts, allocation)
	}
	return plan, nil
}

func (s *Service) ListRequirements(ctx context.Context, scheduleID snowflake.ID) ([]domain.MaterialRequirement, error) {
	if _, err := s.scheduleSvc.GetSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBySchedule(ctx, s.db, scheduleID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.MaterialRequirement{}
	}
	return rows, nil
}

// calculate computes one schedule's requirements. Allocations held by the
// schedules in exclude are treated as free stock.
func (s *Service) calculate(ctx context.Context, schedule scheduledomain.ProductionSchedule, exclude []snowflake.ID) (*domain.Calculation, error) {
	lines, err := s.catalogSvc.GetBom(ctx, schedule.ProductID)
	if err != nil {
		return nil, err
	}
	usage := catalogdomain.AggregateBom(lines)
	partNumbers := make([]string, 0, len(usage))
	for _, u := range usage {
		partNumbers = append(partNumbers, u.PartNumber)
	}

	parts, err := s.catalogSvc.GetParts(ctx, partNumbers)
	if err != nil {
		return nil, err
	}
	allocated, err := s.repo.SumAllocated(ctx, s.db, partNumbers, exclude)
	if err != nil {
		return nil, err
	}

	cfg := s.planning.Get()
	policy := domain.OrderPolicy{
		OrderingCost:    cfg.OrderingCost,
		HoldingCostRate: cfg.HoldingCostRate,
		MaxMultiplier:   cfg.EOQMaxMultiplier,
	}
	now := s.clock.Now()

	totalUnits, ok := catalogdomain.ScaleQuantity(schedule.UnitsToProducePerDay, schedule.DurationDays())
	if !ok {
		return nil, fmt.Errorf("%w: schedule %s", domain.ErrQuantityOverflow, schedule.ID)
	}
	calc := &domain.Calculation{
		ScheduleID:   schedule.ID,
		ProductID:    schedule.ProductID,
		DurationDays: schedule.DurationDays(),
		TotalUnits:   totalUnits,
		Results:      make([]domain.Result, 0, len(usage)),
	}
	for _, u := range usage {
		part, ok := parts[u.PartNumber]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPartMissing, u.PartNumber)
		}

		gross, ok := catalogdomain.ScaleQuantity(u.QuantityNeeded, calc.TotalUnits)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuantityOverflow, u.PartNumber)
		}
		available := max(0, part.CurrentStock-allocated[u.PartNumber])
		net := max(0, gross-available)
		orderQty, eoqAdopted := policy.PlannedOrderQuantity(net, part.SafetyStock, part.LeadTimeDays, part.UnitCost)
		orderDate := schedule.StartDate.AddDate(0, 0, -part.LeadTimeDays)

		result := domain.Result{
			PartNumber:           part.PartNumber,
			Description:          part.Description,
			QuantityPerUnit:      u.QuantityNeeded,
			GrossRequirement:     gross,
			CurrentStock:         part.CurrentStock,
			AllocatedElsewhere:   allocated[u.PartNumber],
			AvailableStock:       available,
			NetRequirement:       net,
			Status:               domain.ClassifyShortage(gross, net, cfg.CriticalShortageRatio),
			SafetyStock:          part.SafetyStock,
			LeadTimeDays:         part.LeadTimeDays,
			Supplier:             part.Supplier,
			UnitCost:             part.UnitCost,
			PlannedOrderQuantity: orderQty,
			PlannedOrderDate:     orderDate,
			OrderDateInPast:      net > 0 && orderDate.Before(now),
			EstimatedOrderCost:   part.UnitCost.Mul(decimal.NewFromInt(orderQty)),
		}
		result.Warnings, result.Recommendations = advise(result, eoqAdopted)
		calc.Results = append(calc.Results, result)
	}

	calc.Summary = summarize(calc.Results)
	return calc, nil
}

func advise(r domain.Result, eoqAdopted bool) ([]string, []string) {
	warnings := []string{}
	recommendations := []string{}

	switch r.Status {
	case domain.ShortageStatusCritical:
		warnings = append(warnings, fmt.Sprintf("Critical shortage of %s: %d of %d required units are not covered by stock.",
			r.PartNumber, r.NetRequirement, r.GrossRequirement))
	case domain.ShortageStatusShortage:
		warnings = append(warnings, fmt.Sprintf("Shortage of %s: %d more units needed.", r.PartNumber, r.NetRequirement))
	}
	if r.OrderDateInPast {
		warnings = append(warnings, fmt.Sprintf("Order date %s for %s has passed; expedite with %s.",
			r.PlannedOrderDate.Format(dateLayout), r.PartNumber, supplierOf(r)))
	}
	if after := r.AvailableStock - r.GrossRequirement; r.SafetyStock > 0 && after < r.SafetyStock {
		warnings = append(warnings, fmt.Sprintf("Stock of %s after production (%d) falls below safety stock %d.",
			r.PartNumber, max(after, 0), r.SafetyStock))
	}

	if r.PlannedOrderQuantity > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Order %d units of %s from %s by %s.",
			r.PlannedOrderQuantity, r.PartNumber, supplierOf(r), r.PlannedOrderDate.Format(dateLayout)))
		if eoqAdopted {
			recommendations = append(recommendations, "Order quantity rounded up to the economic order quantity.")
		}
	}
	return warnings, recommendations
}

func summarize(results []domain.Result) domain.Summary {
	summary := domain.Summary{
		TotalParts:         len(results),
		EstimatedOrderCost: decimal.Zero,
	}
	for _, r := range results {
		switch r.Status {
		case domain.ShortageStatusSufficient:
			summary.Sufficient++
		case domain.ShortageStatusShortage:
			summary.Shortage++
		case domain.ShortageStatusCritical:
			summary.Critical++
		}
		summary.TotalNetRequirement += r.NetRequirement
		summary.EstimatedOrderCost = summary.EstimatedOrderCost.Add(r.EstimatedOrderCost)
	}
	summary.CanProceed = summary.Shortage == 0 && summary.Critical == 0
	return summary
}

func overallStatus(summary domain.Summary) string {
	switch {
	case summary.Critical > 0:
		return string(domain.ShortageStatusCritical)
	case summary.Shortage > 0:
		return string(domain.ShortageStatusShortage)
	default:
		return string(domain.ShortageStatusSufficient)
	}
}

func shortageCandidate(schedule scheduledomain.ProductionSchedule, r domain.Result) alertdomain.Candidate {
	severity := alertdomain.SeverityWarning
	if r.Status == domain.ShortageStatusCritical {
		severity = alertdomain.SeverityCritical
	}
	ref := r.PartNumber
	return alertdomain.Candidate{
		Type:     alertdomain.AlertTypeShortage,
		Severity: severity,
		Title:    fmt.Sprintf("Material shortage: %s", r.PartNumber),
		Description: fmt.Sprintf("Schedule %s needs %d units of %s but only %d are available (short %d). Order %d by %s.",
			schedule.ID, r.GrossRequirement, r.PartNumber, r.AvailableStock, r.NetRequirement,
			r.PlannedOrderQuantity, r.PlannedOrderDate.Format(dateLayout)),
		Reference: &ref,
		Metadata: map[string]any{
			"schedule_id":            schedule.ID.String(),
			"gross_requirement":      r.GrossRequirement,
			"available_stock":        r.AvailableStock,
			"net_requirement":        r.NetRequirement,
			"planned_order_quantity": r.PlannedOrderQuantity,
			"planned_order_date":     r.PlannedOrderDate.Format(dateLayout),
		},
	}
}

func supplierOf(r domain.Result) string {
	if r.Supplier == "" {
		return "the usual supplier"
	}
	return r.Supplier
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
