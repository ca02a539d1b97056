package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"github.com/smallbiznis/mrpledger/internal/schedule/repository"
	"github.com/smallbiznis/mrpledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var day0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) (domain.Service, *testutil.Fixtures, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})
	return svc, testutil.NewFixtures(t, db, testutil.Node(t), day0), db
}

func TestDurationDays(t *testing.T) {
	s := domain.ProductionSchedule{StartDate: day0, EndDate: day0, UnitsToProducePerDay: 100}
	assert.Equal(t, int64(1), s.DurationDays())
	assert.Equal(t, int64(100), s.TotalUnits())

	s.EndDate = day0.Add(2 * 24 * time.Hour)
	assert.Equal(t, int64(3), s.DurationDays())

	s.EndDate = day0.Add(25 * time.Hour)
	assert.Equal(t, int64(3), s.DurationDays(), "partial days round up")
}

func TestGetSchedule(t *testing.T) {
	svc, fx, _ := setup(t)
	fx.Part("P-1", 1)
	product := fx.Product("W", testutil.Line("P-1", 1))
	created := fx.Schedule(product.ID, 10, day0, 2)

	got, err := svc.GetSchedule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.ScheduleStatusPlanned, got.Status)

	_, err = svc.GetSchedule(context.Background(), created.ID+1)
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
	_, err = svc.GetSchedule(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
}

func TestListOverlappingIgnoresTerminalAndOtherStations(t *testing.T) {
	svc, fx, _ := setup(t)
	fx.Part("P-1", 1)
	product := fx.Product("W", testutil.Line("P-1", 1))

	target := fx.Schedule(product.ID, 10, day0, 3)
	overlap := fx.Schedule(product.ID, 10, day0.AddDate(0, 0, 2), 2)
	fx.Schedule(product.ID, 10, day0, 3, testutil.WithStatus(domain.ScheduleStatusCancelled))
	fx.Schedule(product.ID, 10, day0, 3, testutil.WithWorkstation("WS-2"))
	fx.Schedule(product.ID, 10, day0.AddDate(0, 0, 5), 1)

	got, err := svc.ListOverlapping(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overlap.ID, got[0].ID)
}

func TestHistoricalDailyAverage(t *testing.T) {
	svc, fx, _ := setup(t)
	fx.Part("P-1", 1)
	product := fx.Product("W", testutil.Line("P-1", 1))

	// 200 units over 2 days and 90 over 1 day: (100 + 90) / 2
	fx.Schedule(product.ID, 100, day0.AddDate(0, 0, -10), 2, testutil.WithCompletion(200, day0.AddDate(0, 0, -8)))
	fx.Schedule(product.ID, 100, day0.AddDate(0, 0, -5), 1, testutil.WithCompletion(90, day0.AddDate(0, 0, -4)))
	fx.Schedule(product.ID, 100, day0.AddDate(0, 0, -60), 1, testutil.WithCompletion(500, day0.AddDate(0, 0, -59)))
	fx.Schedule(product.ID, 100, day0.AddDate(0, 0, -5), 1, testutil.WithCompletion(999, day0.AddDate(0, 0, -4)), testutil.WithWorkstation("WS-9"))

	avg, err := svc.HistoricalDailyAverage(context.Background(), product.ID, "WS-1", day0.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.InDelta(t, 95.0, avg, 0.001)

	none, err := svc.HistoricalDailyAverage(context.Background(), product.ID, "WS-7", day0.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestMarkCompletedOnlyOnce(t *testing.T) {
	_, fx, db := setup(t)
	fx.Part("P-1", 1)
	product := fx.Product("W", testutil.Line("P-1", 1))
	s := fx.Schedule(product.ID, 10, day0, 1)
	repo := repository.Provide()

	ok, err := repo.MarkCompleted(context.Background(), db, s.ID, 10, day0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkCompleted(context.Background(), db, s.ID, 10, day0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrdersAndScheduleCoverage(t *testing.T) {
	svc, fx, _ := setup(t)
	fx.Part("P-1", 1)
	covered := fx.Product("A", testutil.Line("P-1", 1))
	uncovered := fx.Product("B", testutil.Line("P-1", 1))
	fx.Schedule(covered.ID, 10, day0.AddDate(0, 0, 1), 1)
	fx.Order(covered.ID, 5, day0.AddDate(0, 0, 3))
	fx.Order(uncovered.ID, 5, day0.AddDate(0, 0, 4))
	fx.Order(uncovered.ID, 5, day0.AddDate(0, 0, 30))

	orders, err := svc.ListOpenOrdersDueBetween(context.Background(), day0, day0.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	has, err := svc.HasActiveScheduleForProduct(context.Background(), covered.ID, day0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.True(t, has)
	has, err = svc.HasActiveScheduleForProduct(context.Background(), uncovered.ID, day0.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.False(t, has)
}
