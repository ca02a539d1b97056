package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	alertrepository "github.com/smallbiznis/mrpledger/internal/alert/repository"
	alertservice "github.com/smallbiznis/mrpledger/internal/alert/service"
	catalogrepository "github.com/smallbiznis/mrpledger/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/mrpledger/internal/catalog/service"
	"github.com/smallbiznis/mrpledger/internal/clock"
	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/smallbiznis/mrpledger/internal/monitor/domain"
	requirementdomain "github.com/smallbiznis/mrpledger/internal/requirement/domain"
	requirementrepository "github.com/smallbiznis/mrpledger/internal/requirement/repository"
	requirementservice "github.com/smallbiznis/mrpledger/internal/requirement/service"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	schedulerepository "github.com/smallbiznis/mrpledger/internal/schedule/repository"
	scheduleservice "github.com/smallbiznis/mrpledger/internal/schedule/service"
	"github.com/smallbiznis/mrpledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type harness struct {
	fx             *testutil.Fixtures
	svc            domain.Service
	alertSvc       alertdomain.Service
	requirementSvc requirementdomain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	planning := config.NewStaticPlanningConfig(config.DefaultPlanningConfig())

	alertSvc := alertservice.New(alertservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: alertrepository.Provide(), Planning: planning,
	})
	catalogSvc := catalogservice.New(catalogservice.Params{DB: db, Log: log, Repo: catalogrepository.Provide()})
	scheduleSvc := scheduleservice.New(scheduleservice.Params{DB: db, Log: log, Repo: schedulerepository.Provide()})
	requirementSvc := requirementservice.New(requirementservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        requirementrepository.Provide(),
		CatalogSvc:  catalogSvc,
		ScheduleSvc: scheduleSvc,
		AlertSvc:    alertSvc,
		Planning:    planning,
	})

	return &harness{
		fx: testutil.NewFixtures(t, db, node, testNow),
		svc: New(Params{
			Log:            log,
			Clock:          clk,
			Planning:       planning,
			CatalogSvc:     catalogSvc,
			ScheduleSvc:    scheduleSvc,
			RequirementSvc: requirementSvc,
			AlertSvc:       alertSvc,
		}),
		alertSvc:       alertSvc,
		requirementSvc: requirementSvc,
	}
}

func (h *harness) activeAlerts(t *testing.T, alertType alertdomain.AlertType) []alertdomain.Alert {
	t.Helper()
	resp, err := h.alertSvc.GetActiveAlerts(context.Background(), alertdomain.ListRequest{Type: alertType})
	require.NoError(t, err)
	return resp.Alerts
}

func TestEvaluateInventoryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fx.Part("P-EMPTY", 0)
	h.fx.Part("P-LOW", 5, testutil.WithReorder(10, 2))
	h.fx.Part("P-OK", 100, testutil.WithReorder(10, 2))

	alerts, err := h.svc.EvaluateInventory(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts, 3)

	_, err = h.svc.EvaluateInventory(ctx)
	require.NoError(t, err)
	assert.Len(t, h.activeAlerts(t, alertdomain.AlertTypeShortage), 1)
	assert.Len(t, h.activeAlerts(t, alertdomain.AlertTypeReorder), 2)
}

func TestEvaluateScheduleConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fx.Part("P-100", 1000)
	product := h.fx.Product("CHAIR", testutil.Line("P-100", 1))
	target := h.fx.Schedule(product.ID, 10, testNow, 3)
	h.fx.Schedule(product.ID, 10, testNow.AddDate(0, 0, 2), 2)
	alone := h.fx.Schedule(product.ID, 10, testNow, 3, testutil.WithWorkstation("WS-2"))

	alert, err := h.svc.EvaluateScheduleConflicts(ctx, target.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertdomain.AlertTypeScheduleConflict, alert.AlertType)
	assert.Equal(t, alertdomain.SeverityWarning, alert.Severity)
	require.NotNil(t, alert.Reference)
	assert.Equal(t, target.ID.String(), *alert.Reference)

	alert, err = h.svc.EvaluateScheduleConflicts(ctx, alone.ID)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestEvaluateScheduleConflictsFlagsUnallocatedMaterial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fx.Part("P-100", 0)
	product := h.fx.Product("CHAIR", testutil.Line("P-100", 1))
	schedule := h.fx.Schedule(product.ID, 10, testNow, 1)

	_, err := h.requirementSvc.CreateMaterialRequirements(ctx, schedule.ID)
	require.NoError(t, err)

	alert, err := h.svc.EvaluateScheduleConflicts(ctx, schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertdomain.SeverityCritical, alert.Severity)
}

func TestEvaluateCapacity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.fx.Product("CHAIR")
	h.fx.Schedule(product.ID, 100, testNow.AddDate(0, 0, -10), 1, testutil.WithCompletion(100, testNow.AddDate(0, 0, -9)))
	busy := h.fx.Schedule(product.ID, 120, testNow, 1)
	steady := h.fx.Schedule(product.ID, 105, testNow.AddDate(0, 0, 1), 1)
	fresh := h.fx.Schedule(product.ID, 500, testNow, 1, testutil.WithWorkstation("WS-NEW"))

	alert, err := h.svc.EvaluateCapacity(ctx, busy.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertdomain.AlertTypeCapacityWarning, alert.AlertType)

	alert, err = h.svc.EvaluateCapacity(ctx, steady.ID)
	require.NoError(t, err)
	assert.Nil(t, alert)

	alert, err = h.svc.EvaluateCapacity(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Nil(t, alert, "no history, no comparison")

	result, err := h.svc.SweepCapacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SweepResult{Evaluated: 3, Raised: 1}, result)
}

func TestEvaluateDeliveryRisk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	covered := h.fx.Product("COVERED")
	uncovered := h.fx.Product("UNCOVERED")
	h.fx.Schedule(covered.ID, 10, testNow, 1)
	h.fx.Order(covered.ID, 10, testNow.AddDate(0, 0, 2))
	urgent := h.fx.Order(uncovered.ID, 10, testNow.AddDate(0, 0, 2))
	h.fx.Order(uncovered.ID, 10, testNow.AddDate(0, 0, 30))

	alerts, err := h.svc.EvaluateDeliveryRisk(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alertdomain.AlertTypeDeliveryRisk, alerts[0].AlertType)
	assert.Equal(t, alertdomain.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, urgent.ID.String(), *alerts[0].Reference)
}

func TestRecordCostVariance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alert, err := h.svc.RecordCostVariance(ctx, domain.CostVarianceRequest{
		Reference:     "PO-1",
		EstimatedCost: decimal.NewFromInt(100),
		ActualCost:    decimal.NewFromInt(130),
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertdomain.AlertTypeCostOverrun, alert.AlertType)
	assert.Equal(t, alertdomain.SeverityCritical, alert.Severity)

	alert, err = h.svc.RecordCostVariance(ctx, domain.CostVarianceRequest{
		Reference:     "PO-2",
		EstimatedCost: decimal.NewFromInt(100),
		ActualCost:    decimal.RequireFromString("105.50"),
	})
	require.NoError(t, err)
	assert.Nil(t, alert)

	_, err = h.svc.RecordCostVariance(ctx, domain.CostVarianceRequest{Reference: "PO-3", ActualCost: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidCost)
	_, err = h.svc.RecordCostVariance(ctx, domain.CostVarianceRequest{EstimatedCost: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestRecordQualityInspection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alert, err := h.svc.RecordQualityInspection(ctx, domain.QualityInspectionRequest{Reference: "LOT-1", InspectedUnits: 100, DefectiveUnits: 8})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertdomain.SeverityWarning, alert.Severity)

	alert, err = h.svc.RecordQualityInspection(ctx, domain.QualityInspectionRequest{Reference: "LOT-2", InspectedUnits: 100, DefectiveUnits: 11})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertdomain.SeverityCritical, alert.Severity)

	alert, err = h.svc.RecordQualityInspection(ctx, domain.QualityInspectionRequest{Reference: "LOT-3", InspectedUnits: 100, DefectiveUnits: 2})
	require.NoError(t, err)
	assert.Nil(t, alert)

	_, err = h.svc.RecordQualityInspection(ctx, domain.QualityInspectionRequest{Reference: "LOT-4", InspectedUnits: 10, DefectiveUnits: 11})
	assert.ErrorIs(t, err, domain.ErrInvalidInspection)
}

func TestSweepSkipsTerminalSchedules(t *testing.T) {
	h := newHarness(t)
	product := h.fx.Product("CHAIR")
	h.fx.Schedule(product.ID, 10, testNow, 2)
	h.fx.Schedule(product.ID, 10, testNow, 2, testutil.WithStatus(scheduledomain.ScheduleStatusCancelled))

	result, err := h.svc.SweepScheduleConflicts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Zero(t, result.Raised)
}
