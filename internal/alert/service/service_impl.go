package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/alert/domain"
	auditdomain "github.com/smallbiznis/mrpledger/internal/audit/domain"
	"github.com/smallbiznis/mrpledger/internal/clock"
	"github.com/smallbiznis/mrpledger/internal/config"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"github.com/smallbiznis/mrpledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const notifyTimeout = 10 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Planning   *config.PlanningConfigHolder
	Notifier   domain.Notifier     `optional:"true"`
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	planning   *config.PlanningConfigHolder
	notifier   domain.Notifier
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("alert.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		planning:   p.Planning,
		notifier:   p.Notifier,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateAlert(ctx context.Context, req domain.CreateRequest) (*domain.Alert, bool, error) {
	if !req.Type.Valid() {
		return nil, false, domain.ErrInvalidType
	}
	if !req.Severity.Valid() {
		return nil, false, domain.ErrInvalidSeverity
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, false, domain.ErrInvalidTitle
	}

	reference := normalizeReference(req.Reference)
	activeKey := domain.ActiveKeyFor(req.Type, reference)
	now := s.clock.Now()

	alert := &domain.Alert{
		ID:          s.genID.Generate(),
		AlertType:   req.Type,
		Severity:    req.Severity,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Reference:   reference,
		ActiveKey:   &activeKey,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(req.Metadata) > 0 {
		alert.Metadata = datatypes.JSONMap(req.Metadata)
	}

	stored, created, err := s.repo.Upsert(ctx, s.db, alert)
	if err != nil {
		return nil, false, err
	}

	s.obsMetrics.RecordAlertRaised(ctx, string(stored.AlertType), string(stored.Severity), created)
	s.log.Info("alert raised",
		zap.String("alert_id", stored.ID.String()),
		zap.String("alert_type", string(stored.AlertType)),
		zap.String("severity", string(stored.Severity)),
		zap.String("active_key", activeKey),
		zap.Bool("created", created),
	)

	if stored.Severity == domain.SeverityCritical {
		s.notify(ctx, *stored)
	}
	return stored, created, nil
}

func (s *Service) ResolveAlert(ctx context.Context, id snowflake.ID, resolution string) (*domain.Alert, error) {
	if id == 0 {
		return nil, domain.ErrInvalidAlert
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, domain.ErrMissingResolution
	}
	alert, err := s.transition(ctx, id, func(tx *gorm.DB, at time.Time) (bool, error) {
		return s.repo.Resolve(ctx, tx, id, resolution, at)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, auditdomain.ActionAlertResolved, alert, map[string]any{"resolution": resolution})
	return alert, nil
}

func (s *Service) DismissAlert(ctx context.Context, id snowflake.ID, reason *string) (*domain.Alert, error) {
	if id == 0 {
		return nil, domain.ErrInvalidAlert
	}
	reason = normalizeReference(reason)
	alert, err := s.transition(ctx, id, func(tx *gorm.DB, at time.Time) (bool, error) {
		return s.repo.Dismiss(ctx, tx, id, reason, at)
	})
	if err != nil {
		return nil, err
	}
	meta := map[string]any{}
	if reason != nil {
		meta["reason"] = *reason
	}
	s.audit(ctx, auditdomain.ActionAlertDismissed, alert, meta)
	return alert, nil
}

// transition applies a conditional terminal update. Zero affected rows means
// another caller already moved the alert out of active.
func (s *Service) transition(ctx context.Context, id snowflake.ID, apply func(tx *gorm.DB, at time.Time) (bool, error)) (*domain.Alert, error) {
	var updated *domain.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrAlertNotFound
		}
		if current.Status != domain.StatusActive {
			return domain.ErrAlertNotActive
		}
		ok, err := apply(tx, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlertNotActive
		}
		updated, err = s.repo.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordAlertTransition(ctx, string(updated.AlertType), string(updated.Status))
	s.log.Info("alert transitioned",
		zap.String("alert_id", updated.ID.String()),
		zap.String("alert_type", string(updated.AlertType)),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *Service) GetAlert(ctx context.Context, id snowflake.ID) (*domain.Alert, error) {
	if id == 0 {
		return nil, domain.ErrInvalidAlert
	}
	alert, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, domain.ErrAlertNotFound
	}
	return alert, nil
}

func (s *Service) GetActiveAlerts(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	status := req.Status
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}
	if req.Type != "" && !req.Type.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidType
	}
	if req.Severity != "" && !req.Severity.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidSeverity
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}

	page := req.Pagination.Normalize()
	alerts, total, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Pagination: page,
		Type:       req.Type,
		Severity:   req.Severity,
		Reference:  normalizeReference(req.Reference),
		Status:     status,
		From:       req.From,
		To:         req.To,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return domain.ListResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Alerts:   alerts,
	}, nil
}

func (s *Service) ResolveByReference(ctx context.Context, alertType domain.AlertType, reference string, resolution string) (*domain.Alert, error) {
	if !alertType.Valid() {
		return nil, domain.ErrInvalidType
	}
	ref := strings.TrimSpace(reference)
	existing, err := s.repo.FindActiveByKey(ctx, s.db, domain.ActiveKeyFor(alertType, &ref))
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	alert, err := s.ResolveAlert(ctx, existing.ID, resolution)
	if errors.Is(err, domain.ErrAlertNotActive) {
		return nil, nil
	}
	return alert, err
}

// AutoResolveOldAlerts resolves info alerts that stayed active past the
// configured age. Alerts resolved concurrently by someone else are skipped.
func (s *Service) AutoResolveOldAlerts(ctx context.Context) (int, error) {
	maxAge := s.planning.Get().AutoResolveInfoAfter
	now := s.clock.Now()
	stale, err := s.repo.ListActiveOlderThan(ctx, s.db, domain.SeverityInfo, now.Add(-maxAge))
	if err != nil {
		return 0, err
	}

	resolved := 0
	var errs []error
	for _, alert := range stale {
		ok, err := s.repo.Resolve(ctx, s.db, alert.ID, "Auto-resolved after "+maxAge.String()+" without action", now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		resolved++
		alert.Status = domain.StatusResolved
		s.obsMetrics.RecordAlertTransition(ctx, string(alert.AlertType), string(domain.StatusResolved))
		s.audit(ctx, auditdomain.ActionAlertAutoResolved, &alert, nil)
	}
	if resolved > 0 {
		s.log.Info("auto-resolved info alerts", zap.Int("count", resolved))
	}
	return resolved, errors.Join(errs...)
}

func (s *Service) notify(ctx context.Context, alert domain.Alert) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, alert); err != nil {
		s.log.Warn("alert notification failed",
			zap.String("alert_id", alert.ID.String()),
			zap.String("alert_type", string(alert.AlertType)),
			zap.Error(err),
		)
	}
}

func (s *Service) audit(ctx context.Context, action string, alert *domain.Alert, metadata map[string]any) {
	if s.auditSvc == nil || alert == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["alert_type"] = string(alert.AlertType)
	if alert.Reference != nil {
		metadata["reference"] = *alert.Reference
	}
	entry := auditdomain.Entry{
		Action:     action,
		TargetType: auditdomain.TargetAlert,
		TargetID:   alert.ID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, nil, entry); err != nil {
		s.log.Warn("alert audit failed", zap.String("alert_id", entry.TargetID), zap.Error(err))
	}
}

func normalizeReference(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
