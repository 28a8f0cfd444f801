package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
)

// CogsAllocation is the per-sale decomposition of cost of goods sold.
// Purely derived: the aggregator only sums components supplied by the costing
// and recipe layers, it never invents them.
type CogsAllocation struct {
	ID             int                `gorm:"primary_key" json:"id"`
	BusinessId     string             `gorm:"index;not null" json:"business_id"`
	MenuId         int                `gorm:"index;not null" json:"menu_id"`
	ReferenceType  StockReferenceType `gorm:"type:enum('PU','SA','AD','WA')" json:"reference_type"`
	ReferenceID    int                `gorm:"index" json:"reference_id"`
	QtySold        decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"qty_sold"`
	IngredientCost decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"ingredient_cost"`
	PackagingCost  decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"packaging_cost"`
	LaborCost      decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"labor_cost"`
	OverheadCost   decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"overhead_cost"`
	TotalCogs      decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_cogs"`
	SaleDate       time.Time          `gorm:"index;not null" json:"sale_date"`
	CreatedAt      time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

// CogsSummary is the aggregated decomposition for a period (or one sale).
type CogsSummary struct {
	IngredientCost decimal.Decimal `json:"ingredient_cost"`
	PackagingCost  decimal.Decimal `json:"packaging_cost"`
	LaborCost      decimal.Decimal `json:"labor_cost"`
	OverheadCost   decimal.Decimal `json:"overhead_cost"`
	TotalCogs      decimal.Decimal `json:"total_cogs"`
	QtySold        decimal.Decimal `json:"qty_sold"`
}

// CogsForPeriod sums allocations whose sale date falls in [from, to).
func CogsForPeriod(ctx context.Context, from, to time.Time) (*CogsSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var summary CogsSummary
	err := db.WithContext(ctx).Raw(`
		SELECT
			COALESCE(SUM(ingredient_cost), 0) AS ingredient_cost,
			COALESCE(SUM(packaging_cost), 0) AS packaging_cost,
			COALESCE(SUM(labor_cost), 0) AS labor_cost,
			COALESCE(SUM(overhead_cost), 0) AS overhead_cost,
			COALESCE(SUM(total_cogs), 0) AS total_cogs,
			COALESCE(SUM(qty_sold), 0) AS qty_sold
		FROM cogs_allocations
		WHERE business_id = ? AND sale_date >= ? AND sale_date < ?
	`, businessId, from, to).Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// CogsForSale returns the allocations posted for one sale reference.
func CogsForSale(ctx context.Context, saleReferenceId int) ([]*CogsAllocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var allocations []*CogsAllocation
	err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?",
			businessId, StockReferenceTypeSale, saleReferenceId).
		Order("id").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}
