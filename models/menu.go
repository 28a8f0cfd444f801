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

// Menu holds the externally set selling price and the derived cost fields.
// CostPrice, Profit and ProfitMargin are recomputed whenever a recipe line or
// a referenced ingredient cost changes; this engine writes nothing else here.
type Menu struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	Name       string          `gorm:"size:100;not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	CostPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	Profit     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"profit"`
	// ProfitMargin = Profit / Price, defined as 0 when Price is 0.
	ProfitMargin decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"profit_margin"`
	// CostStale is set when any recipe ingredient has no cost data under the
	// active policy. The UI shows "cost unavailable", never a fabricated zero.
	CostStale *bool `gorm:"not null;default:false" json:"cost_stale"`
	// Per-unit non-ingredient COGS components, summed into sale allocations.
	PackagingCostPerUnit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"packaging_cost_per_unit"`
	LaborCostPerUnit     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"labor_cost_per_unit"`
	OverheadCostPerUnit  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overhead_cost_per_unit"`
	RecipeLines          []RecipeLine    `gorm:"foreignKey:MenuId" json:"recipe_lines"`
	IsActive             *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedBy            int             `json:"created_by"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedBy            int             `json:"updated_by"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecipeLine is one (menu, ingredient) pair; unique per pair.
type RecipeLine struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"index;not null" json:"business_id"`
	MenuId           int             `gorm:"uniqueIndex:idx_menu_ingredient;not null" json:"menu_id"`
	IngredientId     int             `gorm:"uniqueIndex:idx_menu_ingredient;not null" json:"ingredient_id"`
	QuantityPerServe decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_per_serve"`
	Unit             string          `gorm:"size:20;not null" json:"unit"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMenu struct {
	Name                 string          `json:"name" binding:"required"`
	Price                decimal.Decimal `json:"price"`
	PackagingCostPerUnit decimal.Decimal `json:"packaging_cost_per_unit"`
	LaborCostPerUnit     decimal.Decimal `json:"labor_cost_per_unit"`
	OverheadCostPerUnit  decimal.Decimal `json:"overhead_cost_per_unit"`
	RecipeLines          []NewRecipeLine `json:"recipe_lines"`
}

type NewRecipeLine struct {
	IngredientId     int             `json:"ingredient_id" binding:"required"`
	QuantityPerServe decimal.Decimal `json:"quantity_per_serve" binding:"required"`
	Unit             string          `json:"unit" binding:"required"`
}

func (input *NewMenu) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateUnique[Menu](ctx, businessId, "name", input.Name, 0); err != nil {
		return errors.New("menu name already exists")
	}
	ingredientIds := make([]int, 0, len(input.RecipeLines))
	for _, line := range input.RecipeLines {
		ingredientIds = append(ingredientIds, line.IngredientId)
	}
	if len(ingredientIds) > 0 {
		if err := utils.ValidateResourcesId[Ingredient](ctx, businessId, ingredientIds); err != nil {
			return errors.New("recipe ingredient not found")
		}
	}
	return nil
}

func CreateMenu(ctx context.Context, input *NewMenu) (*Menu, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	menu := Menu{
		BusinessId:           businessId,
		Name:                 input.Name,
		Price:                input.Price,
		PackagingCostPerUnit: input.PackagingCostPerUnit,
		LaborCostPerUnit:     input.LaborCostPerUnit,
		OverheadCostPerUnit:  input.OverheadCostPerUnit,
		CreatedBy:            userId,
	}
	for _, line := range input.RecipeLines {
		menu.RecipeLines = append(menu.RecipeLines, RecipeLine{
			BusinessId:       businessId,
			IngredientId:     line.IngredientId,
			QuantityPerServe: line.QuantityPerServe,
			Unit:             line.Unit,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&menu).Error; err != nil {
		return nil, err
	}
	return &menu, nil
}

func GetMenuWithRecipe(tx *gorm.DB, businessId string, id int) (*Menu, error) {
	var menu Menu
	err := tx.Preload("RecipeLines").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&menu).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &menu, nil
}

// MenuIdsReferencingIngredients finds menus whose recipes use any of the
// given ingredients, for dependent cost recomputation.
func MenuIdsReferencingIngredients(tx *gorm.DB, businessId string, ingredientIds []int) ([]int, error) {
	if len(ingredientIds) == 0 {
		return nil, nil
	}
	var menuIds []int
	err := tx.Model(&RecipeLine{}).
		Where("business_id = ? AND ingredient_id IN ?", businessId, ingredientIds).
		Distinct("menu_id").
		Pluck("menu_id", &menuIds).Error
	if err != nil {
		return nil, err
	}
	return menuIds, nil
}

// UpdateMenuDerivedCost persists a recomputation. Only derived fields move.
func UpdateMenuDerivedCost(tx *gorm.DB, businessId string, menuId int, cost, profit, margin decimal.Decimal, stale bool) error {
	return tx.Model(&Menu{}).
		Where("business_id = ? AND id = ?", businessId, menuId).
		Updates(map[string]interface{}{
			"CostPrice":    cost,
			"Profit":       profit,
			"ProfitMargin": margin,
			"CostStale":    &stale,
		}).Error
}

// UpsertRecipeLine adds or changes a (menu, ingredient) line. The caller is
// responsible for recomputing the menu's cost in the same transaction.
func UpsertRecipeLine(tx *gorm.DB, businessId string, menuId int, input *NewRecipeLine) (*RecipeLine, error) {
	var line RecipeLine
	err := tx.
		Where("business_id = ? AND menu_id = ? AND ingredient_id = ?", businessId, menuId, input.IngredientId).
		First(&line).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		line = RecipeLine{
			BusinessId:       businessId,
			MenuId:           menuId,
			IngredientId:     input.IngredientId,
			QuantityPerServe: input.QuantityPerServe,
			Unit:             input.Unit,
		}
		if err := tx.Create(&line).Error; err != nil {
			return nil, err
		}
		return &line, nil
	}
	err = tx.Model(&line).Updates(map[string]interface{}{
		"QuantityPerServe": input.QuantityPerServe,
		"Unit":             input.Unit,
	}).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// RemoveRecipeLine deletes a recipe line; menu cost must be recomputed by the
// caller in the same transaction.
func RemoveRecipeLine(tx *gorm.DB, businessId string, menuId int, ingredientId int) error {
	result := tx.
		Where("business_id = ? AND menu_id = ? AND ingredient_id = ?", businessId, menuId, ingredientId).
		Delete(&RecipeLine{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
