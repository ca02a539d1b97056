package domain

import (
	"math"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Part is a stocked material. CurrentStock is owned by the inventory ledger;
// StockVersion increments on every stock write.
type Part struct {
	PartNumber   string          `json:"part_number" gorm:"primaryKey;type:varchar(64)"`
	Description  string          `json:"description" gorm:"type:text;not null;default:''"`
	CurrentStock int64           `json:"current_stock" gorm:"not null;default:0;check:chk_parts_current_stock,current_stock >= 0"`
	StockVersion int64           `json:"-" gorm:"not null;default:0"`
	UnitCost     decimal.Decimal `json:"unit_cost" gorm:"type:numeric(18,4);not null;default:0"`
	Supplier     string          `json:"supplier" gorm:"type:varchar(128);not null;default:''"`
	ReorderPoint int64           `json:"reorder_point" gorm:"not null;default:0"`
	SafetyStock  int64           `json:"safety_stock" gorm:"not null;default:0"`
	LeadTimeDays int             `json:"lead_time_days" gorm:"not null;default:0"`
	Category     string          `json:"category" gorm:"type:varchar(64);not null;default:''"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Part) TableName() string { return "parts" }

type Product struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:varchar(64);not null;uniqueIndex:ux_products_code"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// ProductBomLine states how many units of a part one unit of product consumes.
type ProductBomLine struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID      snowflake.ID `json:"product_id" gorm:"not null;index:ix_bom_lines_product"`
	PartNumber     string       `json:"part_number" gorm:"type:varchar(64);not null"`
	QuantityNeeded int64        `json:"quantity_needed" gorm:"not null;check:chk_bom_lines_quantity,quantity_needed > 0"`
}

func (ProductBomLine) TableName() string { return "product_bom_lines" }

// PartUsage is a BOM line collapsed per part.
type PartUsage struct {
	PartNumber     string `json:"part_number"`
	QuantityNeeded int64  `json:"quantity_needed"`
}

// AggregateBom sums duplicate lines for the same part and returns them in
// ascending part number order, which is also the lock order for stock rows.
func AggregateBom(lines []ProductBomLine) []PartUsage {
	totals := make(map[string]int64, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, seen := totals[line.PartNumber]; !seen {
			order = append(order, line.PartNumber)
		}
		totals[line.PartNumber] += line.QuantityNeeded
	}
	slices.Sort(order)
	out := make([]PartUsage, 0, len(order))
	for _, part := range order {
		out = append(out, PartUsage{PartNumber: part, QuantityNeeded: totals[part]})
	}
	return out
}

// ScaleQuantity multiplies a per-unit quantity by a unit count. ok is false
// when either factor is negative or the product does not fit in int64.
func ScaleQuantity(perUnit, units int64) (int64, bool) {
	if perUnit < 0 || units < 0 {
		return 0, false
	}
	if perUnit != 0 && units > math.MaxInt64/perUnit {
		return 0, false
	}
	return perUnit * units, true
}
