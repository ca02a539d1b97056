package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/cache"
	"github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"github.com/smallbiznis/mrpledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.CatalogCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.CatalogCache
}

func New(p Params) domain.Service {
	c := p.Cache
	if c == nil {
		c = cache.NewCatalogCache()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		cache: c,
	}
}

func (s *Service) GetPart(ctx context.Context, partNumber string) (*domain.Part, error) {
	partNumber = strings.TrimSpace(partNumber)
	if partNumber == "" {
		return nil, domain.ErrInvalidPartNumber
	}
	part, err := s.repo.FindPart(ctx, s.db, partNumber)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, domain.ErrPartNotFound
	}
	return part, nil
}

// GetParts loads parts keyed by part number. Missing parts are absent from
// the map; callers decide whether that is an error.
func (s *Service) GetParts(ctx context.Context, partNumbers []string) (map[string]domain.Part, error) {
	parts, err := s.repo.FindParts(ctx, s.db, partNumbers)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Part, len(parts))
	for _, part := range parts {
		out[part.PartNumber] = part
	}
	return out, nil
}

func (s *Service) ListParts(ctx context.Context, req domain.ListPartsRequest) (domain.ListPartsResponse, error) {
	page := req.Pagination.Normalize()
	parts, total, err := s.repo.ListParts(ctx, s.db, domain.ListPartsFilter{
		Pagination: page,
		Category:   req.Category,
		Supplier:   req.Supplier,
	})
	if err != nil {
		return domain.ListPartsResponse{}, err
	}
	return domain.ListPartsResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Parts:    parts,
	}, nil
}

func (s *Service) ListPartsAtOrBelowReorderPoint(ctx context.Context) ([]domain.Part, error) {
	return s.repo.ListPartsAtOrBelowReorderPoint(ctx, s.db)
}

func (s *Service) GetProduct(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	if id == 0 {
		return nil, domain.ErrInvalidProduct
	}
	if cached, ok := s.cache.GetProduct(id.String()); ok {
		return &cached, nil
	}
	product, err := s.repo.FindProduct(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	s.cache.SetProduct(id.String(), *product)
	return product, nil
}

func (s *Service) GetBom(ctx context.Context, productID snowflake.ID) ([]domain.ProductBomLine, error) {
	if productID == 0 {
		return nil, domain.ErrInvalidProduct
	}
	if cached, ok := s.cache.GetBom(productID.String()); ok {
		return cached, nil
	}

	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	lines, err := s.repo.ListBomLines(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyBom
	}
	s.cache.SetBom(productID.String(), lines)
	return lines, nil
}

func (s *Service) InvalidateBom(productID snowflake.ID) {
	s.cache.Invalidate(productID.String())
	s.log.Debug("bom cache invalidated", zap.String("product_id", productID.String()))
}
