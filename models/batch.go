package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductionBatch is one production run of a menu item. TotalCost and
// CostPerUnit are derived sums over its cost lines.
type ProductionBatch struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;not null" json:"business_id"`
	MenuId      int             `gorm:"index;not null" json:"menu_id"`
	BatchNumber string          `gorm:"size:100" json:"batch_number"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	TotalCost   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	CostPerUnit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_per_unit"`
	BatchDate   time.Time       `gorm:"index;not null" json:"batch_date"`
	CostLines   []BatchCostLine `gorm:"foreignKey:BatchId" json:"cost_lines"`
	CreatedBy   int             `json:"created_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BatchCostLine is one typed cost component of a batch: qty × unit cost.
type BatchCostLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;not null" json:"business_id"`
	BatchId     int             `gorm:"index;not null" json:"batch_id"`
	LineType    CostLineType    `gorm:"type:enum('Ingredient','Packaging','Labor','Overhead','Other');not null" json:"line_type"`
	Description string          `gorm:"size:255" json:"description"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitCost    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	TotalCost   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductionBatch struct {
	MenuId      int             `json:"menu_id" binding:"required"`
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	BatchDate   time.Time       `json:"batch_date" binding:"required"`
}

type NewBatchCostLine struct {
	LineType    CostLineType    `json:"line_type" binding:"required"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty" binding:"required"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

func CreateProductionBatch(ctx context.Context, input *NewProductionBatch) (*ProductionBatch, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Menu](ctx, businessId, input.MenuId); err != nil {
		return nil, errors.New("menu not found")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	batch := ProductionBatch{
		BusinessId:  businessId,
		MenuId:      input.MenuId,
		BatchNumber: input.BatchNumber,
		Quantity:    input.Quantity,
		BatchDate:   input.BatchDate,
		CreatedBy:   userId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// AddBatchCostLine appends a typed cost line. The caller recomputes the batch
// total in the same transaction.
func AddBatchCostLine(tx *gorm.DB, businessId string, batchId int, input *NewBatchCostLine) (*BatchCostLine, error) {
	if !input.LineType.Valid() {
		return nil, errors.New("invalid cost line type")
	}
	line := BatchCostLine{
		BusinessId:  businessId,
		BatchId:     batchId,
		LineType:    input.LineType,
		Description: input.Description,
		Qty:         input.Qty,
		UnitCost:    input.UnitCost,
		TotalCost:   input.Qty.Mul(input.UnitCost),
	}
	if err := tx.Create(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func GetBatchWithCostLines(tx *gorm.DB, businessId string, id int) (*ProductionBatch, error) {
	var batch ProductionBatch
	err := tx.Preload("CostLines").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// UpdateBatchDerivedCost persists the recomputed totals.
func UpdateBatchDerivedCost(tx *gorm.DB, businessId string, batchId int, totalCost, costPerUnit decimal.Decimal) error {
	return tx.Model(&ProductionBatch{}).
		Where("business_id = ? AND id = ?", businessId, batchId).
		Updates(map[string]interface{}{
			"TotalCost":   totalCost,
			"CostPerUnit": costPerUnit,
		}).Error
}
