package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	"github.com/smallbiznis/mrpledger/internal/alert/rules"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	auditdomain "github.com/smallbiznis/mrpledger/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"github.com/smallbiznis/mrpledger/internal/clock"
	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/smallbiznis/mrpledger/internal/inventory/domain"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const productionReason = "production completion"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	CatalogSvc   catalogdomain.Service
	ScheduleRepo scheduledomain.Repository
	AlertSvc     alertdomain.Service
	Planning     *config.PlanningConfigHolder
	AuditSvc     auditdomain.Service          `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics          `optional:"true"`
	SchedMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	catalogSvc   catalogdomain.Service
	scheduleRepo scheduledomain.Repository
	alertSvc     alertdomain.Service
	planning     *config.PlanningConfigHolder
	auditSvc     auditdomain.Service
	obsMetrics   *obsmetrics.Metrics
	schedMetrics *obsmetrics.SchedulerMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("inventory.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		catalogSvc:   p.CatalogSvc,
		scheduleRepo: p.ScheduleRepo,
		alertSvc:     p.AlertSvc,
		planning:     p.Planning,
		auditSvc:     p.AuditSvc,
		obsMetrics:   p.ObsMetrics,
		schedMetrics: p.SchedMetrics,
	}
}

// DecrementForProduction consumes the bill of materials for the units a
// schedule actually produced and completes the schedule, atomically.
func (s *Service) DecrementForProduction(ctx context.Context, scheduleID snowflake.ID, actualUnitsProduced int64) (*domain.DecrementResult, error) {
	if scheduleID == 0 {
		return nil, scheduledomain.ErrInvalidSchedule
	}
	if actualUnitsProduced <= 0 {
		return nil, domain.ErrInvalidUnits
	}

	schedule, err := s.scheduleRepo.FindByID(ctx, s.db, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, scheduledomain.ErrScheduleNotFound
	}
	if err := terminalScheduleError(schedule.Status); err != nil {
		return nil, err
	}

	lines, err := s.catalogSvc.GetBom(ctx, schedule.ProductID)
	if err != nil {
		return nil, err
	}
	usage := catalogdomain.AggregateBom(lines)
	partNumbers := make([]string, 0, len(usage))
	required := make(map[string]int64, len(usage))
	for _, u := range usage {
		qty, ok := catalogdomain.ScaleQuantity(u.QuantityNeeded, actualUnitsProduced)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuantityOverflow, u.PartNumber)
		}
		partNumbers = append(partNumbers, u.PartNumber)
		required[u.PartNumber] = qty
	}
	reference := scheduleID.String()

	var (
		movements []domain.Movement
		locked    map[string]*domain.StockRow
	)
	err = s.withStockTx(ctx, "decrement", func(tx *gorm.DB) error {
		rows, err := s.lockStock(ctx, tx, partNumbers)
		if err != nil {
			return err
		}

		for _, u := range usage {
			row, ok := rows[u.PartNumber]
			if !ok {
				return fmt.Errorf("%w: %s", catalogdomain.ErrPartNotFound, u.PartNumber)
			}
			if row.CurrentStock < required[u.PartNumber] {
				return domain.NewInsufficientInventoryError(u.PartNumber, required[u.PartNumber], row.CurrentStock)
			}
		}

		now := s.clock.Now()
		applied := make([]domain.Movement, 0, len(usage))
		for _, u := range usage {
			mv, err := s.apply(ctx, tx, rows[u.PartNumber], domain.MovementTypeOut, required[u.PartNumber], &reference, strPtr(productionReason), now)
			if err != nil {
				return err
			}
			applied = append(applied, *mv)
		}

		changed, err := s.scheduleRepo.MarkCompleted(ctx, tx, scheduleID, actualUnitsProduced, now)
		if err != nil {
			return err
		}
		if !changed {
			current, err := s.scheduleRepo.FindByID(ctx, tx, scheduleID)
			if err != nil {
				return err
			}
			if current != nil && current.Status == scheduledomain.ScheduleStatusCancelled {
				return scheduledomain.ErrScheduleCancelled
			}
			return scheduledomain.ErrScheduleCompleted
		}

		movements = applied
		locked = rows
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordDecrementFailure(ctx, string(apperror.KindOf(err)))
		s.log.Warn("production decrement rejected",
			zap.String("schedule_id", reference),
			zap.Int64("units", actualUnitsProduced),
			zap.Error(err),
		)
		return nil, err
	}

	result := &domain.DecrementResult{
		ScheduleID:    scheduleID,
		UnitsProduced: actualUnitsProduced,
		Movements:     movements,
		Alerts:        []alertdomain.Alert{},
	}
	for _, mv := range movements {
		s.obsMetrics.RecordMovement(ctx, string(mv.MovementType), mv.Quantity)
		if alert := s.checkReorder(ctx, locked[mv.PartNumber].AsPart(), mv.NewStock); alert != nil {
			result.Alerts = append(result.Alerts, *alert)
		}
	}

	s.log.Info("production decremented",
		zap.String("schedule_id", reference),
		zap.Int64("units", actualUnitsProduced),
		zap.Int("movements", len(movements)),
		zap.Int("alerts", len(result.Alerts)),
	)
	return result, nil
}

func (s *Service) RecordMovement(ctx context.Context, req domain.MovementRequest) (*domain.Movement, error) {
	partNumber := strings.TrimSpace(req.PartNumber)
	if partNumber == "" {
		return nil, catalogdomain.ErrInvalidPartNumber
	}
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidMovementType
	}
	switch req.Type {
	case domain.MovementTypeAdjustment:
		if req.Quantity == 0 {
			return nil, domain.ErrInvalidAdjustment
		}
	default:
		if req.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
	}

	var (
		movement *domain.Movement
		row      *domain.StockRow
	)
	err := s.withStockTx(ctx, "movement", func(tx *gorm.DB) error {
		rows, err := s.lockStock(ctx, tx, []string{partNumber})
		if err != nil {
			return err
		}
		current, ok := rows[partNumber]
		if !ok {
			return catalogdomain.ErrPartNotFound
		}
		mv, err := s.apply(ctx, tx, current, req.Type, req.Quantity, trimmed(req.Reference), trimmed(req.Reason), s.clock.Now())
		if err != nil {
			return err
		}
		movement = mv
		row = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordMovement(ctx, string(movement.MovementType), movement.Quantity)
	s.afterStockChange(ctx, row.AsPart(), movement.PreviousStock, movement.NewStock)
	return movement, nil
}

func (s *Service) AdjustInventory(ctx context.Context, partNumber string, newQuantity int64, reason string) (*domain.Movement, error) {
	partNumber = strings.TrimSpace(partNumber)
	if partNumber == "" {
		return nil, catalogdomain.ErrInvalidPartNumber
	}
	if newQuantity < 0 {
		return nil, domain.ErrNegativeTarget
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrMissingReason
	}

	var (
		movement *domain.Movement
		row      *domain.StockRow
	)
	err := s.withStockTx(ctx, "adjustment", func(tx *gorm.DB) error {
		movement, row = nil, nil
		rows, err := s.lockStock(ctx, tx, []string{partNumber})
		if err != nil {
			return err
		}
		current, ok := rows[partNumber]
		if !ok {
			return catalogdomain.ErrPartNotFound
		}
		delta := newQuantity - current.CurrentStock
		if delta == 0 {
			return nil
		}
		mv, err := s.apply(ctx, tx, current, domain.MovementTypeAdjustment, delta, nil, &reason, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.auditAdjustment(ctx, tx, mv, reason); err != nil {
			return err
		}
		movement = mv
		row = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if movement == nil {
		return nil, nil
	}

	s.obsMetrics.RecordMovement(ctx, string(movement.MovementType), movement.Quantity)
	s.afterStockChange(ctx, row.AsPart(), movement.PreviousStock, movement.NewStock)
	return movement, nil
}

// auditAdjustment writes the audit entry inside the adjustment transaction so
// a manual correction never commits without its trail.
func (s *Service) auditAdjustment(ctx context.Context, tx *gorm.DB, movement *domain.Movement, reason string) error {
	if s.auditSvc == nil {
		return nil
	}
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Action:     auditdomain.ActionInventoryAdjusted,
		TargetType: auditdomain.TargetPart,
		TargetID:   movement.PartNumber,
		Metadata: map[string]any{
			"previous_stock": movement.PreviousStock,
			"new_stock":      movement.NewStock,
			"delta":          movement.Quantity,
			"reason":         reason,
			"movement_id":    movement.ID.String(),
		},
	})
}

func (s *Service) ReceiveInventory(ctx context.Context, items []domain.ReceiveItem) ([]domain.Movement, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyReceipt
	}
	partNumbers := make([]string, 0, len(items))
	for _, item := range items {
		partNumber := strings.TrimSpace(item.PartNumber)
		if partNumber == "" {
			return nil, catalogdomain.ErrInvalidPartNumber
		}
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		partNumbers = append(partNumbers, partNumber)
	}

	var (
		movements []domain.Movement
		locked    map[string]*domain.StockRow
	)
	err := s.withStockTx(ctx, "receive", func(tx *gorm.DB) error {
		rows, err := s.lockStock(ctx, tx, partNumbers)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		applied := make([]domain.Movement, 0, len(items))
		for i, item := range items {
			row, ok := rows[partNumbers[i]]
			if !ok {
				return fmt.Errorf("%w: %s", catalogdomain.ErrPartNotFound, partNumbers[i])
			}
			mv, err := s.apply(ctx, tx, row, domain.MovementTypeIn, item.Quantity, trimmed(item.Reference), trimmed(item.Reason), now)
			if err != nil {
				return err
			}
			applied = append(applied, *mv)
		}
		movements = applied
		locked = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	first := make(map[string]int64, len(locked))
	for _, mv := range movements {
		s.obsMetrics.RecordMovement(ctx, string(mv.MovementType), mv.Quantity)
		if _, ok := first[mv.PartNumber]; !ok {
			first[mv.PartNumber] = mv.PreviousStock
		}
	}
	for partNumber, row := range locked {
		s.afterStockChange(ctx, row.AsPart(), first[partNumber], row.CurrentStock)
	}

	s.log.Info("inventory received", zap.Int("items", len(items)), zap.Int("parts", len(locked)))
	return movements, nil
}

func (s *Service) GetInventoryHistory(ctx context.Context, partNumber string, dateRange domain.DateRange) ([]domain.Movement, error) {
	partNumber = strings.TrimSpace(partNumber)
	if partNumber == "" {
		return nil, catalogdomain.ErrInvalidPartNumber
	}
	if dateRange.From != nil && dateRange.To != nil && dateRange.From.After(*dateRange.To) {
		return nil, domain.ErrInvalidTimeRange
	}
	if _, err := s.catalogSvc.GetPart(ctx, partNumber); err != nil {
		return nil, err
	}

	movements, err := s.repo.ListMovements(ctx, s.db, partNumber, dateRange)
	if err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []domain.Movement{}
	}
	return movements, nil
}

// VerifyLedgerChain replays a part's movements oldest first and checks that
// every entry starts where the previous one ended.
func (s *Service) VerifyLedgerChain(ctx context.Context, partNumber string) error {
	partNumber = strings.TrimSpace(partNumber)
	if partNumber == "" {
		return catalogdomain.ErrInvalidPartNumber
	}
	part, err := s.catalogSvc.GetPart(ctx, partNumber)
	if err != nil {
		return err
	}
	movements, err := s.repo.ListMovementsChronological(ctx, s.db, partNumber)
	if err != nil {
		return err
	}

	for i, mv := range movements {
		if mv.NewStock != mv.PreviousStock+mv.MovementType.Delta(mv.Quantity) {
			return fmt.Errorf("%w: movement %s does not add up", domain.ErrLedgerChainBroken, mv.ID)
		}
		if i > 0 && mv.PreviousStock != movements[i-1].NewStock {
			return fmt.Errorf("%w: movement %s starts at %d, previous ended at %d",
				domain.ErrLedgerChainBroken, mv.ID, mv.PreviousStock, movements[i-1].NewStock)
		}
	}
	if n := len(movements); n > 0 && movements[n-1].NewStock != part.CurrentStock {
		return fmt.Errorf("%w: last movement ends at %d, stock is %d",
			domain.ErrLedgerChainBroken, movements[n-1].NewStock, part.CurrentStock)
	}
	return nil
}

// withStockTx runs fn in a transaction, replaying it when a stock write
// loses its version check.
func (s *Service) withStockTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	maxRetries := max(s.planning.Get().MaxStockRetries, 0)
	for attempt := 0; ; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStaleStock) {
			return apperror.Transaction(err)
		}
		if attempt >= maxRetries {
			return apperror.Transaction(fmt.Errorf("%s: gave up after %d retries: %w", op, attempt, err))
		}
		s.obsMetrics.RecordStockRetry(ctx, op)
		s.log.Debug("stock version conflict, retrying", zap.String("operation", op), zap.Int("attempt", attempt+1))
	}
}

func (s *Service) lockStock(ctx context.Context, tx *gorm.DB, partNumbers []string) (map[string]*domain.StockRow, error) {
	start := time.Now()
	rows, err := s.repo.LockStock(ctx, tx, partNumbers)
	s.schedMetrics.ObserveDBLockWait(obsmetrics.LockResourcePartStock, time.Since(start))
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.StockRow, len(rows))
	for i := range rows {
		out[rows[i].PartNumber] = &rows[i]
	}
	return out, nil
}

// apply writes one movement against a locked row and advances the row in
// memory, so repeated parts in a single unit of work chain correctly.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, row *domain.StockRow, movementType domain.MovementType, quantity int64, reference, reason *string, at time.Time) (*domain.Movement, error) {
	if movementType != domain.MovementTypeAdjustment && quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if quantity == math.MinInt64 {
		return nil, domain.ErrQuantityOverflow
	}
	delta := movementType.Delta(quantity)
	if delta > 0 && row.CurrentStock > math.MaxInt64-delta {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuantityOverflow, row.PartNumber)
	}
	newStock := row.CurrentStock + delta
	if newStock < 0 {
		return nil, domain.NewInsufficientInventoryError(row.PartNumber, -delta, row.CurrentStock)
	}

	ok, err := s.repo.CompareAndSwapStock(ctx, tx, row.PartNumber, newStock, row.StockVersion, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrStaleStock
	}

	movement := &domain.Movement{
		ID:            s.genID.Generate(),
		PartNumber:    row.PartNumber,
		MovementType:  movementType,
		Quantity:      quantity,
		Reference:     reference,
		Reason:        reason,
		PreviousStock: row.CurrentStock,
		NewStock:      newStock,
		CreatedAt:     at,
	}
	if err := s.repo.InsertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}

	row.CurrentStock = newStock
	row.StockVersion++
	return movement, nil
}

func (s *Service) afterStockChange(ctx context.Context, part catalogdomain.Part, previous, current int64) {
	switch {
	case current < previous:
		s.checkReorder(ctx, part, current)
	case current > previous:
		s.resolveReplenished(ctx, part, current)
	}
}

// checkReorder raises or refreshes the reorder alert after a committed
// decrease. Alert failures never undo the movement.
func (s *Service) checkReorder(ctx context.Context, part catalogdomain.Part, newStock int64) *alertdomain.Alert {
	candidate, ok := rules.Reorder(part, newStock)
	if !ok {
		return nil
	}
	alert, _, err := s.alertSvc.CreateAlert(ctx, candidate.Request())
	if err != nil {
		s.log.Warn("reorder alert failed", zap.String("part_number", part.PartNumber), zap.Error(err))
		return nil
	}
	return alert
}

func (s *Service) resolveReplenished(ctx context.Context, part catalogdomain.Part, newStock int64) {
	if newStock <= part.ReorderPoint {
		return
	}
	resolution := fmt.Sprintf("Replenished: stock %d is above reorder point %d", newStock, part.ReorderPoint)
	for _, alertType := range []alertdomain.AlertType{alertdomain.AlertTypeReorder, alertdomain.AlertTypeShortage} {
		if _, err := s.alertSvc.ResolveByReference(ctx, alertType, part.PartNumber, resolution); err != nil {
			s.log.Warn("replenishment resolve failed",
				zap.String("part_number", part.PartNumber),
				zap.String("alert_type", string(alertType)),
				zap.Error(err),
			)
		}
	}
}

func terminalScheduleError(status scheduledomain.ScheduleStatus) error {
	switch status {
	case scheduledomain.ScheduleStatusCompleted:
		return scheduledomain.ErrScheduleCompleted
	case scheduledomain.ScheduleStatusCancelled:
		return scheduledomain.ErrScheduleCancelled
	default:
		return nil
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}

func strPtr(v string) *string { return &v }
