package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("schedule.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetSchedule(ctx context.Context, id snowflake.ID) (*domain.ProductionSchedule, error) {
	if id == 0 {
		return nil, domain.ErrInvalidSchedule
	}
	schedule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, domain.ErrScheduleNotFound
	}
	return schedule, nil
}

func (s *Service) ListSchedules(ctx context.Context, statuses ...domain.ScheduleStatus) ([]domain.ProductionSchedule, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
	}
	return s.repo.List(ctx, s.db, domain.ListFilter{Statuses: statuses})
}

func (s *Service) ListOpenSchedules(ctx context.Context) ([]domain.ProductionSchedule, error) {
	return s.repo.List(ctx, s.db, domain.ListFilter{Statuses: domain.OpenStatuses})
}

func (s *Service) ListOverlapping(ctx context.Context, schedule domain.ProductionSchedule) ([]domain.ProductionSchedule, error) {
	return s.repo.ListOverlapping(ctx, s.db, schedule.WorkstationID, schedule.StartDate, schedule.EndDate, schedule.ID)
}

func (s *Service) HistoricalDailyAverage(ctx context.Context, productID snowflake.ID, workstationID string, since time.Time) (float64, error) {
	history, err := s.repo.ListCompletedSince(ctx, s.db, productID, workstationID, since)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, nil
	}
	var total float64
	for _, run := range history {
		total += float64(*run.ActualUnitsProduced) / float64(run.DurationDays())
	}
	return total / float64(len(history)), nil
}

func (s *Service) ListOpenOrdersDueBetween(ctx context.Context, from, to time.Time) ([]domain.CustomerOrder, error) {
	return s.repo.ListOpenOrdersDueBetween(ctx, s.db, from, to)
}

func (s *Service) HasActiveScheduleForProduct(ctx context.Context, productID snowflake.ID, until time.Time) (bool, error) {
	return s.repo.HasActiveScheduleForProduct(ctx, s.db, productID, until)
}
