package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/alert/rules"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"github.com/smallbiznis/mrpledger/internal/clock"
	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/smallbiznis/mrpledger/internal/monitor/domain"
	requirementdomain "github.com/smallbiznis/mrpledger/internal/requirement/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	Planning       *config.PlanningConfigHolder
	CatalogSvc     catalogdomain.Service
	ScheduleSvc    scheduledomain.Service
	RequirementSvc requirementdomain.Service
	AlertSvc       alertdomain.Service
}

type Service struct {
	log            *zap.Logger
	clock          clock.Clock
	planning       *config.PlanningConfigHolder
	catalogSvc     catalogdomain.Service
	scheduleSvc    scheduledomain.Service
	requirementSvc requirementdomain.Service
	alertSvc       alertdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:            p.Log.Named("monitor.service"),
		clock:          p.Clock,
		planning:       p.Planning,
		catalogSvc:     p.CatalogSvc,
		scheduleSvc:    p.ScheduleSvc,
		requirementSvc: p.RequirementSvc,
		alertSvc:       p.AlertSvc,
	}
}

func (s *Service) EvaluateInventory(ctx context.Context) ([]alertdomain.Alert, error) {
	parts, err := s.catalogSvc.ListPartsAtOrBelowReorderPoint(ctx)
	if err != nil {
		return nil, err
	}
	var inputs []rules.Input
	for _, part := range parts {
		inputs = append(inputs, rules.InventoryInput{Part: part})
	}
	return s.raise(ctx, inputs...)
}

func (s *Service) EvaluateScheduleConflicts(ctx context.Context, scheduleID snowflake.ID) (*alertdomain.Alert, error) {
	schedule, err := s.scheduleSvc.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Status.Terminal() {
		return nil, nil
	}
	others, err := s.scheduleSvc.ListOverlapping(ctx, *schedule)
	if err != nil {
		return nil, err
	}
	lines, err := s.requirementLines(ctx, schedule.ID)
	if err != nil {
		return nil, err
	}
	return s.raiseOne(ctx, rules.ScheduleConflictInput{Target: *schedule, Others: others, Requirements: lines})
}

// EvaluateCapacity compares the planned daily rate with the trailing average
// of completed runs for the same product on the same workstation.
func (s *Service) EvaluateCapacity(ctx context.Context, scheduleID snowflake.ID) (*alertdomain.Alert, error) {
	schedule, err := s.scheduleSvc.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Status.Terminal() {
		return nil, nil
	}
	cfg := s.planning.Get()
	since := s.clock.Now().AddDate(0, 0, -cfg.CapacityLookbackDays)
	avg, err := s.scheduleSvc.HistoricalDailyAverage(ctx, schedule.ProductID, schedule.WorkstationID, since)
	if err != nil {
		return nil, err
	}
	return s.raiseOne(ctx, rules.CapacityInput{Schedule: *schedule, HistoricalAvg: avg, Threshold: cfg.CapacityWarningThreshold})
}

func (s *Service) EvaluateDeliveryRisk(ctx context.Context) ([]alertdomain.Alert, error) {
	now := s.clock.Now()
	window := time.Duration(s.planning.Get().DeliveryRiskWindowDays) * 24 * time.Hour

	orders, err := s.scheduleSvc.ListOpenOrdersDueBetween(ctx, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	var inputs []rules.Input
	for _, order := range orders {
		covered, err := s.scheduleSvc.HasActiveScheduleForProduct(ctx, order.ProductID, order.DueDate)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, rules.OrderDeliveryInput{Order: order, HasSchedule: covered, Now: now, Window: window})
	}

	schedules, err := s.scheduleSvc.ListOpenSchedules(ctx)
	if err != nil {
		return nil, err
	}
	for _, schedule := range schedules {
		lines, err := s.requirementLines(ctx, schedule.ID)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, rules.ScheduleDeliveryInput{Schedule: schedule, Requirements: lines})
	}
	return s.raise(ctx, inputs...)
}

func (s *Service) RecordCostVariance(ctx context.Context, req domain.CostVarianceRequest) (*alertdomain.Alert, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}
	if !req.EstimatedCost.IsPositive() || req.ActualCost.IsNegative() {
		return nil, domain.ErrInvalidCost
	}
	cfg := s.planning.Get()
	return s.raiseOne(ctx, rules.CostVarianceInput{
		Reference: reference,
		Estimated: req.EstimatedCost,
		Actual:    req.ActualCost,
		Warning:   decimal.NewFromFloat(cfg.CostVarianceWarning),
		Critical:  decimal.NewFromFloat(cfg.CostVarianceCritical),
	})
}

func (s *Service) RecordQualityInspection(ctx context.Context, req domain.QualityInspectionRequest) (*alertdomain.Alert, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}
	if req.InspectedUnits <= 0 || req.DefectiveUnits < 0 || req.DefectiveUnits > req.InspectedUnits {
		return nil, domain.ErrInvalidInspection
	}
	return s.raiseOne(ctx, rules.QualityInput{
		Reference: reference,
		Inspected: req.InspectedUnits,
		Defective: req.DefectiveUnits,
		Threshold: s.planning.Get().DefectRateThreshold,
	})
}

func (s *Service) SweepScheduleConflicts(ctx context.Context) (domain.SweepResult, error) {
	return s.sweep(ctx, "schedule_conflicts", s.EvaluateScheduleConflicts)
}

func (s *Service) SweepCapacity(ctx context.Context) (domain.SweepResult, error) {
	return s.sweep(ctx, "capacity", s.EvaluateCapacity)
}

// sweep runs evaluate for every open schedule. One schedule failing does not
// stop the pass; the failures are joined into the returned error.
func (s *Service) sweep(ctx context.Context, name string, evaluate func(context.Context, snowflake.ID) (*alertdomain.Alert, error)) (domain.SweepResult, error) {
	var result domain.SweepResult
	schedules, err := s.scheduleSvc.ListOpenSchedules(ctx)
	if err != nil {
		return result, err
	}

	var errs []error
	for _, schedule := range schedules {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Evaluated++
		alert, err := evaluate(ctx, schedule.ID)
		if err != nil {
			result.Failed++
			errs = append(errs, err)
			s.log.Warn("sweep evaluation failed",
				zap.String("sweep", name),
				zap.String("schedule_id", schedule.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if alert != nil {
			result.Raised++
		}
	}
	return result, errors.Join(errs...)
}

func (s *Service) requirementLines(ctx context.Context, scheduleID snowflake.ID) ([]rules.RequirementLine, error) {
	rows, err := s.requirementSvc.ListRequirements(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	lines := make([]rules.RequirementLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, rules.RequirementLine{
			PartNumber: row.PartNumber,
			Required:   row.RequiredQuantity,
			Allocated:  row.AllocatedQuantity,
		})
	}
	return lines, nil
}

func (s *Service) raiseOne(ctx context.Context, in rules.Input) (*alertdomain.Alert, error) {
	alerts, err := s.raise(ctx, in)
	if err != nil || len(alerts) == 0 {
		return nil, err
	}
	return &alerts[0], nil
}

func (s *Service) raise(ctx context.Context, inputs ...rules.Input) ([]alertdomain.Alert, error) {
	alerts := []alertdomain.Alert{}
	for _, in := range inputs {
		for _, candidate := range rules.Evaluate(in) {
			alert, _, err := s.alertSvc.CreateAlert(ctx, candidate.Request())
			if err != nil {
				return alerts, err
			}
			alerts = append(alerts, *alert)
		}
	}
	return alerts, nil
}
