package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Fixtures inserts catalog and scheduling rows directly, bypassing services.
type Fixtures struct {
	t    testing.TB
	db   *gorm.DB
	node *snowflake.Node
	now  time.Time
}

func NewFixtures(t testing.TB, db *gorm.DB, node *snowflake.Node, now time.Time) *Fixtures {
	return &Fixtures{t: t, db: db, node: node, now: now.UTC()}
}

type PartOption func(*catalogdomain.Part)

func WithReorder(reorderPoint, safetyStock int64) PartOption {
	return func(p *catalogdomain.Part) {
		p.ReorderPoint = reorderPoint
		p.SafetyStock = safetyStock
	}
}

func WithLeadTime(days int) PartOption {
	return func(p *catalogdomain.Part) { p.LeadTimeDays = days }
}

func WithUnitCost(cost string) PartOption {
	return func(p *catalogdomain.Part) { p.UnitCost = decimal.RequireFromString(cost) }
}

func (f *Fixtures) Part(partNumber string, stock int64, opts ...PartOption) catalogdomain.Part {
	f.t.Helper()
	part := catalogdomain.Part{
		PartNumber:   partNumber,
		Description:  "test part " + partNumber,
		CurrentStock: stock,
		UnitCost:     decimal.NewFromInt(1),
		Supplier:     "Acme",
		Category:     "test",
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	for _, opt := range opts {
		opt(&part)
	}
	require.NoError(f.t, f.db.Create(&part).Error)
	return part
}

// Product creates a product whose BOM consumes quantities per part number.
// Lines are inserted in argument order, so duplicates stay separate rows.
func (f *Fixtures) Product(code string, lines ...catalogdomain.PartUsage) catalogdomain.Product {
	f.t.Helper()
	product := catalogdomain.Product{
		ID:        f.node.Generate(),
		Code:      code,
		Name:      "product " + code,
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	require.NoError(f.t, f.db.Create(&product).Error)
	for _, line := range lines {
		bom := catalogdomain.ProductBomLine{
			ID:             f.node.Generate(),
			ProductID:      product.ID,
			PartNumber:     line.PartNumber,
			QuantityNeeded: line.QuantityNeeded,
		}
		require.NoError(f.t, f.db.Create(&bom).Error)
	}
	return product
}

func Line(partNumber string, quantity int64) catalogdomain.PartUsage {
	return catalogdomain.PartUsage{PartNumber: partNumber, QuantityNeeded: quantity}
}

type ScheduleOption func(*scheduledomain.ProductionSchedule)

func WithWorkstation(id string) ScheduleOption {
	return func(s *scheduledomain.ProductionSchedule) { s.WorkstationID = id }
}

func WithStatus(status scheduledomain.ScheduleStatus) ScheduleOption {
	return func(s *scheduledomain.ProductionSchedule) { s.Status = status }
}

func WithCompletion(units int64, at time.Time) ScheduleOption {
	return func(s *scheduledomain.ProductionSchedule) {
		s.Status = scheduledomain.ScheduleStatusCompleted
		s.ActualUnitsProduced = &units
		completed := at.UTC()
		s.CompletedAt = &completed
	}
}

// Schedule creates a planned schedule running from start for days calendar
// days, inclusive.
func (f *Fixtures) Schedule(productID snowflake.ID, unitsPerDay int64, start time.Time, days int, opts ...ScheduleOption) scheduledomain.ProductionSchedule {
	f.t.Helper()
	start = start.UTC()
	schedule := scheduledomain.ProductionSchedule{
		ID:                   f.node.Generate(),
		ProductID:            productID,
		UnitsToProducePerDay: unitsPerDay,
		StartDate:            start,
		EndDate:              start.AddDate(0, 0, max(days-1, 0)),
		WorkstationID:        "WS-1",
		ShiftNumber:          1,
		Status:               scheduledomain.ScheduleStatusPlanned,
		CreatedAt:            f.now,
		UpdatedAt:            f.now,
	}
	for _, opt := range opts {
		opt(&schedule)
	}
	require.NoError(f.t, f.db.Create(&schedule).Error)
	return schedule
}

func (f *Fixtures) Order(productID snowflake.ID, quantity int64, due time.Time) scheduledomain.CustomerOrder {
	f.t.Helper()
	order := scheduledomain.CustomerOrder{
		ID:        f.node.Generate(),
		ProductID: productID,
		Quantity:  quantity,
		DueDate:   due.UTC(),
		Status:    scheduledomain.OrderStatusOpen,
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	require.NoError(f.t, f.db.Create(&order).Error)
	return order
}

// Stock reads a part's current stock.
func (f *Fixtures) Stock(partNumber string) int64 {
	f.t.Helper()
	var part catalogdomain.Part
	require.NoError(f.t, f.db.Where("part_number = ?", partNumber).First(&part).Error)
	return part.CurrentStock
}
