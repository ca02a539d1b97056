package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	"github.com/smallbiznis/mrpledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	FindPart(ctx context.Context, db *gorm.DB, partNumber string) (*Part, error)
	FindParts(ctx context.Context, db *gorm.DB, partNumbers []string) ([]Part, error)
	ListParts(ctx context.Context, db *gorm.DB, filter ListPartsFilter) ([]Part, int64, error)
	ListPartsAtOrBelowReorderPoint(ctx context.Context, db *gorm.DB) ([]Part, error)
	FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	ListBomLines(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]ProductBomLine, error)
}

type ListPartsFilter struct {
	pagination.Pagination
	Category string
	Supplier string
}

type ListPartsRequest struct {
	pagination.Pagination
	Category string `form:"category"`
	Supplier string `form:"supplier"`
}

type ListPartsResponse struct {
	pagination.PageInfo
	Parts []Part `json:"parts"`
}

// Service is the read side of the catalog. Authoring parts, products and
// BOMs happens elsewhere.
type Service interface {
	GetPart(ctx context.Context, partNumber string) (*Part, error)
	GetParts(ctx context.Context, partNumbers []string) (map[string]Part, error)
	ListParts(ctx context.Context, req ListPartsRequest) (ListPartsResponse, error)
	ListPartsAtOrBelowReorderPoint(ctx context.Context) ([]Part, error)
	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
	// GetBom returns the product's BOM lines. A product without lines is a
	// configuration error rather than an empty result.
	GetBom(ctx context.Context, productID snowflake.ID) ([]ProductBomLine, error)
	InvalidateBom(productID snowflake.ID)
}

var (
	ErrInvalidPartNumber = apperror.Validation("invalid_part_number", "part number is required")
	ErrInvalidProduct    = apperror.Validation("invalid_product", "product id is required")
	ErrPartNotFound      = apperror.NotFound("part_not_found", "part not found")
	ErrProductNotFound   = apperror.NotFound("product_not_found", "product not found")
	ErrEmptyBom          = apperror.Configuration("empty_bom", "product has no bill of materials")
)
