package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ingredient struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null" json:"business_id"`
	Name       string `gorm:"size:100;not null" json:"name"`
	Unit       string `gorm:"size:20;not null" json:"unit"`
	// CurrentStock is a projection of the stock ledger; it is only written
	// inside the same transaction as a ledger append (or by the rebuild command).
	CurrentStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`
	MinStock     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_stock"`
	MaxStock     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"max_stock"`
	ReorderPoint decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	// CostPerUnit is derived; written only by the costing policy engine.
	CostPerUnit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_per_unit"`
	// CostReviewFlagged is set when no cost data exists for the active policy.
	// The previous CostPerUnit is retained, never zeroed.
	CostReviewFlagged *bool     `gorm:"not null;default:false" json:"cost_review_flagged"`
	IsActive          *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedBy         int       `json:"created_by"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedBy         int       `json:"updated_by"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewIngredient struct {
	Name         string          `json:"name" binding:"required"`
	Unit         string          `json:"unit" binding:"required"`
	MinStock     decimal.Decimal `json:"min_stock"`
	MaxStock     decimal.Decimal `json:"max_stock"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	CostPerUnit  decimal.Decimal `json:"cost_per_unit"`
}

func (input *NewIngredient) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Ingredient](ctx, businessId, "name", input.Name, id); err != nil {
		return errors.New("ingredient name already exists")
	}
	return nil
}

func CreateIngredient(ctx context.Context, input *NewIngredient) (*Ingredient, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	ingredient := Ingredient{
		BusinessId:   businessId,
		Name:         input.Name,
		Unit:         input.Unit,
		MinStock:     input.MinStock,
		MaxStock:     input.MaxStock,
		ReorderPoint: input.ReorderPoint,
		CostPerUnit:  input.CostPerUnit,
		CreatedBy:    userId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&ingredient).Error; err != nil {
		return nil, err
	}
	return &ingredient, nil
}

// DeactivateIngredient soft-deactivates; ingredients referenced by ledger
// history are never hard-deleted.
func DeactivateIngredient(ctx context.Context, id int) (*Ingredient, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	ingredient, err := utils.FetchModel[Ingredient](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := db.WithContext(ctx).Model(ingredient).Updates(map[string]interface{}{
		"IsActive":  utils.NewFalse(),
		"UpdatedBy": userId,
	}).Error; err != nil {
		return nil, err
	}
	return ingredient, nil
}

// GetIngredientForUpdate loads the ingredient row with a row-level write lock
// held until the transaction commits. Concurrent mutations to the same
// ingredient serialize here; different ingredients proceed independently.
func GetIngredientForUpdate(tx *gorm.DB, businessId string, id int) (*Ingredient, error) {
	var ingredient Ingredient
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).
		First(&ingredient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownIngredient
		}
		return nil, err
	}
	return &ingredient, nil
}

// ApplyStockDelta adds qty to current_stock in-place in the DB (projection
// step). Must run in the same transaction as the ledger append.
func ApplyStockDelta(tx *gorm.DB, businessId string, ingredientId int, qty decimal.Decimal) error {
	result := tx.Model(&Ingredient{}).
		Where("business_id = ? AND id = ?", businessId, ingredientId).
		Update("current_stock", gorm.Expr("current_stock + ?", qty))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUnknownIngredient
	}
	return nil
}

// UpdateIngredientCost persists a recomputed unit cost and clears the review flag.
func UpdateIngredientCost(tx *gorm.DB, businessId string, ingredientId int, cost decimal.Decimal) error {
	return tx.Model(&Ingredient{}).
		Where("business_id = ? AND id = ?", businessId, ingredientId).
		Updates(map[string]interface{}{
			"CostPerUnit":       cost,
			"CostReviewFlagged": utils.NewFalse(),
		}).Error
}

// FlagIngredientCostForReview marks the ingredient's cost as stale without
// touching the retained CostPerUnit.
func FlagIngredientCostForReview(tx *gorm.DB, businessId string, ingredientId int) error {
	return tx.Model(&Ingredient{}).
		Where("business_id = ? AND id = ?", businessId, ingredientId).
		Update("cost_review_flagged", utils.NewTrue()).Error
}

func GetIngredient(ctx context.Context, id int) (*Ingredient, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Ingredient](ctx, businessId, id)
}

// LowStockList returns active ingredients at or below their minimum stock.
func LowStockList(ctx context.Context) ([]*Ingredient, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var ingredients []*Ingredient
	err := db.WithContext(ctx).
		Where("business_id = ? AND is_active = 1 AND current_stock <= min_stock", businessId).
		Order("name").
		Find(&ingredients).Error
	if err != nil {
		return nil, err
	}
	return ingredients, nil
}
