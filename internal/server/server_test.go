package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	auditdomain "github.com/smallbiznis/mrpledger/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"github.com/smallbiznis/mrpledger/internal/config"
	inventorydomain "github.com/smallbiznis/mrpledger/internal/inventory/domain"
	monitordomain "github.com/smallbiznis/mrpledger/internal/monitor/domain"
	requirementdomain "github.com/smallbiznis/mrpledger/internal/requirement/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// -- Mocks --

type catalogSvcMock struct {
	catalogdomain.Service
	mock.Mock
}

func (m *catalogSvcMock) GetPart(ctx context.Context, partNumber string) (*catalogdomain.Part, error) {
	args := m.Called(ctx, partNumber)
	part, _ := args.Get(0).(*catalogdomain.Part)
	return part, args.Error(1)
}

type requirementSvcMock struct {
	requirementdomain.Service
	mock.Mock
}

func (m *requirementSvcMock) CalculateRequirements(ctx context.Context, scheduleID snowflake.ID) (*requirementdomain.Calculation, error) {
	args := m.Called(ctx, scheduleID)
	calc, _ := args.Get(0).(*requirementdomain.Calculation)
	return calc, args.Error(1)
}

func (m *requirementSvcMock) AllocateAcrossSchedules(ctx context.Context, scheduleIDs []snowflake.ID) (*requirementdomain.AllocationPlan, error) {
	args := m.Called(ctx, scheduleIDs)
	plan, _ := args.Get(0).(*requirementdomain.AllocationPlan)
	return plan, args.Error(1)
}

func (m *requirementSvcMock) RunForAllSchedules(ctx context.Context, status scheduledomain.ScheduleStatus) (*requirementdomain.BatchResult, error) {
	args := m.Called(ctx, status)
	result, _ := args.Get(0).(*requirementdomain.BatchResult)
	return result, args.Error(1)
}

type inventorySvcMock struct {
	inventorydomain.Service
	mock.Mock
}

func (m *inventorySvcMock) DecrementForProduction(ctx context.Context, scheduleID snowflake.ID, units int64) (*inventorydomain.DecrementResult, error) {
	args := m.Called(ctx, scheduleID, units)
	result, _ := args.Get(0).(*inventorydomain.DecrementResult)
	return result, args.Error(1)
}

func (m *inventorySvcMock) VerifyLedgerChain(ctx context.Context, partNumber string) error {
	return m.Called(ctx, partNumber).Error(0)
}

type alertSvcMock struct {
	alertdomain.Service
	mock.Mock
}

func (m *alertSvcMock) CreateAlert(ctx context.Context, req alertdomain.CreateRequest) (*alertdomain.Alert, bool, error) {
	args := m.Called(ctx, req)
	alert, _ := args.Get(0).(*alertdomain.Alert)
	return alert, args.Bool(1), args.Error(2)
}

func (m *alertSvcMock) ResolveAlert(ctx context.Context, id snowflake.ID, resolution string) (*alertdomain.Alert, error) {
	args := m.Called(ctx, id, resolution)
	alert, _ := args.Get(0).(*alertdomain.Alert)
	return alert, args.Error(1)
}

type monitorSvcMock struct {
	monitordomain.Service
	mock.Mock
}

type auditSvcMock struct {
	auditdomain.Service
	mock.Mock
}

func (m *auditSvcMock) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

type testServer struct {
	*Server
	catalog      *catalogSvcMock
	requirements *requirementSvcMock
	inventory    *inventorySvcMock
	alerts       *alertSvcMock
	monitor      *monitorSvcMock
	audit        *auditSvcMock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		catalog:      &catalogSvcMock{},
		requirements: &requirementSvcMock{},
		inventory:    &inventorySvcMock{},
		alerts:       &alertSvcMock{},
		monitor:      &monitorSvcMock{},
		audit:        &auditSvcMock{},
	}
	ts.Server = NewServer(ServerParams{
		Gin:            engine,
		Cfg:            config.Config{AppVersion: "test"},
		CatalogSvc:     ts.catalog,
		RequirementSvc: ts.requirements,
		InventorySvc:   ts.inventory,
		AlertSvc:       ts.alerts,
		MonitorSvc:     ts.monitor,
		AuditSvc:       ts.audit,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Engine().ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func errorField(t *testing.T, payload map[string]any, key string) any {
	t.Helper()
	errObj, ok := payload["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", payload)
	return errObj[key]
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec, payload := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
}

func TestUnknownRouteReturnsNotFoundEnvelope(t *testing.T) {
	ts := newTestServer(t)
	rec, payload := ts.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorField(t, payload, "type"))
}

func TestCompleteScheduleMapsInsufficientInventory(t *testing.T) {
	ts := newTestServer(t)
	shortage := inventorydomain.NewInsufficientInventoryError("P-100", 30, 12)
	ts.inventory.On("DecrementForProduction", mock.Anything, snowflake.ID(42), int64(10)).
		Return(nil, shortage).Once()

	rec, payload := ts.do(t, http.MethodPost, "/api/schedules/42/complete", gin.H{"actual_units_produced": 10})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_inventory", errorField(t, payload, "type"))
	details, ok := errorField(t, payload, "details").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "P-100", details["part_number"])
	assert.Equal(t, float64(18), details["shortage"])
	ts.inventory.AssertExpectations(t)
}

func TestCompleteScheduleReturnsResult(t *testing.T) {
	ts := newTestServer(t)
	ts.inventory.On("DecrementForProduction", mock.Anything, snowflake.ID(42), int64(10)).
		Return(&inventorydomain.DecrementResult{ScheduleID: 42}, nil).Once()

	rec, payload := ts.do(t, http.MethodPost, "/api/schedules/42/complete", gin.H{"actual_units_produced": 10})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, payload, "data")
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"not found", scheduledomain.ErrScheduleNotFound, http.StatusNotFound, "not_found"},
		{"configuration", catalogdomain.ErrEmptyBom, http.StatusUnprocessableEntity, "configuration_error"},
		{"conflict", scheduledomain.ErrScheduleCompleted, http.StatusConflict, "conflict"},
		{"validation", inventorydomain.ErrInvalidUnits, http.StatusBadRequest, "validation_error"},
		{"transaction", apperror.Transaction(errors.New("disk full")), http.StatusInternalServerError, "transaction_error"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.requirements.On("CalculateRequirements", mock.Anything, snowflake.ID(7)).Return(nil, tc.err).Once()

			rec, payload := ts.do(t, http.MethodPost, "/api/schedules/7/requirements/calculate", nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.typ, errorField(t, payload, "type"))
		})
	}
}

func TestInvalidScheduleIDIsValidationError(t *testing.T) {
	ts := newTestServer(t)
	rec, payload := ts.do(t, http.MethodPost, "/api/schedules/abc/requirements/calculate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorField(t, payload, "type"))
	ts.requirements.AssertNotCalled(t, "CalculateRequirements", mock.Anything, mock.Anything)
}

func TestAllocateParsesScheduleIDs(t *testing.T) {
	ts := newTestServer(t)
	ts.requirements.On("AllocateAcrossSchedules", mock.Anything, []snowflake.ID{3, 1}).
		Return(&requirementdomain.AllocationPlan{}, nil).Once()

	rec, _ := ts.do(t, http.MethodPost, "/api/requirements/allocate", gin.H{"schedule_ids": []string{"3", "1"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.requirements.AssertExpectations(t)

	rec, _ = ts.do(t, http.MethodPost, "/api/requirements/allocate", gin.H{"schedule_ids": []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunRequirementsAcceptsEmptyBody(t *testing.T) {
	ts := newTestServer(t)
	ts.requirements.On("RunForAllSchedules", mock.Anything, scheduledomain.ScheduleStatus("")).
		Return(&requirementdomain.BatchResult{}, nil).Once()

	rec, _ := ts.do(t, http.MethodPost, "/api/requirements/run", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.requirements.AssertExpectations(t)
}

func TestCreateAlertDistinguishesNewFromDeduplicated(t *testing.T) {
	ts := newTestServer(t)
	req := alertdomain.CreateRequest{
		Type:     alertdomain.AlertTypeShortage,
		Severity: alertdomain.SeverityWarning,
		Title:    "Low stock",
	}
	ts.alerts.On("CreateAlert", mock.Anything, mock.Anything).Return(&alertdomain.Alert{ID: 1}, true, nil).Once()
	ts.alerts.On("CreateAlert", mock.Anything, mock.Anything).Return(&alertdomain.Alert{ID: 1}, false, nil).Once()

	rec, _ := ts.do(t, http.MethodPost, "/api/alerts", req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, "/api/alerts", req)
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.alerts.AssertExpectations(t)
}

func TestResolveInactiveAlertIsConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.alerts.On("ResolveAlert", mock.Anything, snowflake.ID(9), "fixed").Return(nil, alertdomain.ErrAlertNotActive).Once()

	rec, payload := ts.do(t, http.MethodPost, "/api/alerts/9/resolve", gin.H{"resolution": " fixed "})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "alert_not_active", errorField(t, payload, "code"))
}

func TestVerifyLedger(t *testing.T) {
	ts := newTestServer(t)
	ts.inventory.On("VerifyLedgerChain", mock.Anything, "P-1").Return(nil).Once()
	ts.inventory.On("VerifyLedgerChain", mock.Anything, "P-2").Return(inventorydomain.ErrLedgerChainBroken).Once()

	rec, _ := ts.do(t, http.MethodGet, "/api/inventory/P-1/verify", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/api/inventory/P-2/verify", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetPartNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.On("GetPart", mock.Anything, "P-404").Return(nil, catalogdomain.ErrPartNotFound).Once()

	rec, payload := ts.do(t, http.MethodGet, "/api/parts/P-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "part_not_found", errorField(t, payload, "code"))
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(inventorydomain.ErrInvalidQuantity)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_quantity", code)

	typ, _ = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", typ)
}

func TestListAuditLogs(t *testing.T) {
	ts := newTestServer(t)
	ts.audit.On("List", mock.Anything, mock.MatchedBy(func(req auditdomain.ListAuditLogRequest) bool {
		return req.TargetType == "part" && req.TargetID == "P-1"
	})).Return(auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{{Action: auditdomain.ActionInventoryAdjusted}}}, nil).Once()
	ts.audit.On("List", mock.Anything, mock.Anything).Return(auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange).Once()

	rec, payload := ts.do(t, http.MethodGet, "/api/audit-logs?target_type=part&target_id=P-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := payload["data"].(map[string]any)
	assert.Len(t, data["audit_logs"], 1)

	rec, payload = ts.do(t, http.MethodGet, "/api/audit-logs", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorField(t, payload, "type"))
	ts.audit.AssertExpectations(t)
}
