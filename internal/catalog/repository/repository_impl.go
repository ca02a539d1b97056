package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindPart(ctx context.Context, db *gorm.DB, partNumber string) (*domain.Part, error) {
	var parts []domain.Part
	err := db.WithContext(ctx).Raw(
		`SELECT part_number, description, current_stock, stock_version, unit_cost, supplier,
		        reorder_point, safety_stock, lead_time_days, category, created_at, updated_at
		 FROM parts
		 WHERE part_number = ?
		 LIMIT 1`,
		partNumber,
	).Scan(&parts).Error
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return &parts[0], nil
}

func (r *repo) FindParts(ctx context.Context, db *gorm.DB, partNumbers []string) ([]domain.Part, error) {
	if len(partNumbers) == 0 {
		return nil, nil
	}
	var parts []domain.Part
	err := db.WithContext(ctx).
		Where("part_number IN ?", partNumbers).
		Order("part_number ASC").
		Find(&parts).Error
	if err != nil {
		return nil, err
	}
	return parts, nil
}

func (r *repo) ListParts(ctx context.Context, db *gorm.DB, filter domain.ListPartsFilter) ([]domain.Part, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Part{})
	if category := strings.TrimSpace(filter.Category); category != "" {
		stmt = stmt.Where("category = ?", category)
	}
	if supplier := strings.TrimSpace(filter.Supplier); supplier != "" {
		stmt = stmt.Where("supplier = ?", supplier)
	}

	stmt = stmt.Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var parts []domain.Part
	if err := filter.Apply(stmt.Order("part_number ASC")).Find(&parts).Error; err != nil {
		return nil, 0, err
	}
	return parts, total, nil
}

func (r *repo) ListPartsAtOrBelowReorderPoint(ctx context.Context, db *gorm.DB) ([]domain.Part, error) {
	var parts []domain.Part
	err := db.WithContext(ctx).
		Where("current_stock <= reorder_point").
		Order("part_number ASC").
		Find(&parts).Error
	if err != nil {
		return nil, err
	}
	return parts, nil
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var products []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at, updated_at
		 FROM products
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&products).Error
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

func (r *repo) ListBomLines(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]domain.ProductBomLine, error) {
	var lines []domain.ProductBomLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, part_number, quantity_needed
		 FROM product_bom_lines
		 WHERE product_id = ?
		 ORDER BY part_number ASC, id ASC`,
		productID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
