package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"gorm.io/gorm"
)

const demoProductCode = "DEMO-CHAIR"

type demoLine struct {
	part     catalogdomain.Part
	quantity int64
}

func demoLines() []demoLine {
	return []demoLine{
		{part: catalogdomain.Part{PartNumber: "DEMO-LEG", Description: "Oak leg", CurrentStock: 400, UnitCost: decimal.RequireFromString("3.20"), Supplier: "Northwood Timber", ReorderPoint: 120, SafetyStock: 40, LeadTimeDays: 10, Category: "wood"}, quantity: 4},
		{part: catalogdomain.Part{PartNumber: "DEMO-SEAT", Description: "Molded seat", CurrentStock: 90, UnitCost: decimal.RequireFromString("12.50"), Supplier: "Polyform", ReorderPoint: 40, SafetyStock: 15, LeadTimeDays: 14, Category: "plastic"}, quantity: 1},
		{part: catalogdomain.Part{PartNumber: "DEMO-SCREW", Description: "M6 screw", CurrentStock: 2000, UnitCost: decimal.RequireFromString("0.04"), Supplier: "Fastenal", ReorderPoint: 500, SafetyStock: 200, LeadTimeDays: 3, Category: "hardware"}, quantity: 8},
	}
}

// EnsureDemoCatalog seeds one product with a three-part BOM. It is a no-op
// once the demo product exists.
func EnsureDemoCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, created, err := ensureProductTx(ctx, tx, node)
		if err != nil || !created {
			return err
		}
		now := time.Now().UTC()
		for _, line := range demoLines() {
			part := line.part
			part.CreatedAt = now
			part.UpdatedAt = now
			if err := ensurePartTx(ctx, tx, part); err != nil {
				return err
			}
			bom := catalogdomain.ProductBomLine{
				ID:             node.Generate(),
				ProductID:      product.ID,
				PartNumber:     part.PartNumber,
				QuantityNeeded: line.quantity,
			}
			if err := tx.WithContext(ctx).Create(&bom).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureProductTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (catalogdomain.Product, bool, error) {
	var product catalogdomain.Product
	err := tx.WithContext(ctx).Where("code = ?", demoProductCode).First(&product).Error
	if err == nil {
		return product, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return product, false, err
	}
	now := time.Now().UTC()
	product = catalogdomain.Product{
		ID:        node.Generate(),
		Code:      demoProductCode,
		Name:      "Demo chair",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
		return product, false, err
	}
	return product, true, nil
}

func ensurePartTx(ctx context.Context, tx *gorm.DB, part catalogdomain.Part) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&catalogdomain.Part{}).Where("part_number = ?", part.PartNumber).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&part).Error
}
