package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const menuCostCacheTTL = 5 * time.Minute

func menuCostCacheKey(businessId string, menuId int) string {
	return fmt.Sprintf("menu_cost:%s:%d", businessId, menuId)
}

// dropMenuCostCache removes cached read views for the given menus. Callers
// invoke it after their transaction commits: a drop issued inside the
// transaction can race a concurrent read that re-caches the pre-commit values.
func dropMenuCostCache(businessId string, menuIds []int) {
	if len(menuIds) == 0 {
		return
	}
	keys := make([]string, 0, len(menuIds))
	for _, menuId := range menuIds {
		keys = append(keys, menuCostCacheKey(businessId, menuId))
	}
	if err := config.RemoveRedisKey(keys...); err != nil {
		config.LogError(config.GetLogger(), "workflow", "dropMenuCostCache", "Failed to drop menu cost cache", menuIds, err)
	}
}

// MenuCostResult is the derived cost view of one menu item.
type MenuCostResult struct {
	MenuId    int             `json:"menu_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Profit    decimal.Decimal `json:"profit"`
	// ProfitMargin is Profit / Price, 0 when Price is 0.
	ProfitMargin decimal.Decimal `json:"profit_margin"`
	// CostStale means at least one recipe ingredient has no cost data under the
	// active policy; CostPrice then carries retained (possibly outdated) costs.
	CostStale bool `json:"cost_stale"`
}

type ingredientCostInfo struct {
	CostPerUnit decimal.Decimal
	Flagged     bool
}

// computeMenuCost folds recipe lines against per-ingredient unit costs.
// CostPrice is sum(quantity_per_serve × cost_per_unit). A missing ingredient
// marks the result stale instead of contributing a fabricated zero; a flagged
// ingredient still contributes its retained cost but also marks it stale.
func computeMenuCost(price decimal.Decimal, lines []models.RecipeLine, costs map[int]ingredientCostInfo) (cost, profit, margin decimal.Decimal, stale bool) {
	cost = decimal.Zero
	for _, line := range lines {
		info, ok := costs[line.IngredientId]
		if !ok {
			stale = true
			continue
		}
		if info.Flagged {
			stale = true
		}
		cost = cost.Add(line.QuantityPerServe.Mul(info.CostPerUnit))
	}
	profit = price.Sub(cost)
	if price.IsZero() {
		margin = decimal.Zero
	} else {
		margin = profit.Div(price)
	}
	return cost, profit, margin, stale
}

// RecomputeMenuCost rederives one menu's cost fields from its recipe and the
// current ingredient costs and persists them. The cached read view is dropped
// here eagerly and again by the caller once the surrounding transaction has
// committed. Recomputing twice without an input change is a no-op.
func RecomputeMenuCost(tx *gorm.DB, businessId string, menuId int) (*MenuCostResult, error) {
	menu, err := models.GetMenuWithRecipe(tx, businessId, menuId)
	if err != nil {
		return nil, err
	}

	ingredientIds := make([]int, 0, len(menu.RecipeLines))
	for _, line := range menu.RecipeLines {
		ingredientIds = append(ingredientIds, line.IngredientId)
	}

	costs := make(map[int]ingredientCostInfo, len(ingredientIds))
	if len(ingredientIds) > 0 {
		var ingredients []*models.Ingredient
		err = tx.Select("id", "cost_per_unit", "cost_review_flagged").
			Where("business_id = ? AND id IN ?", businessId, ingredientIds).
			Find(&ingredients).Error
		if err != nil {
			return nil, err
		}
		for _, ing := range ingredients {
			costs[ing.ID] = ingredientCostInfo{
				CostPerUnit: ing.CostPerUnit,
				Flagged:     utils.DereferencePtr(ing.CostReviewFlagged),
			}
		}
	}

	cost, profit, margin, stale := computeMenuCost(menu.Price, menu.RecipeLines, costs)
	if err := models.UpdateMenuDerivedCost(tx, businessId, menuId, cost, profit, margin, stale); err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(menuCostCacheKey(businessId, menuId)); err != nil {
		config.LogError(config.GetLogger(), "workflow", "RecomputeMenuCost", "Failed to drop menu cost cache", menuId, err)
	}

	return &MenuCostResult{
		MenuId:       menu.ID,
		Name:         menu.Name,
		Price:        menu.Price,
		CostPrice:    cost,
		Profit:       profit,
		ProfitMargin: margin,
		CostStale:    stale,
	}, nil
}

// RecomputeMenusForIngredients recomputes every menu whose recipe references
// any of the given ingredients. Called after an ingredient's unit cost moved.
func RecomputeMenusForIngredients(tx *gorm.DB, businessId string, ingredientIds []int) ([]int, error) {
	menuIds, err := models.MenuIdsReferencingIngredients(tx, businessId, utils.UniqueSlice(ingredientIds))
	if err != nil {
		return nil, err
	}
	for _, menuId := range menuIds {
		if _, err := RecomputeMenuCost(tx, businessId, menuId); err != nil {
			return nil, fmt.Errorf("recompute menu_id=%d: %w", menuId, err)
		}
	}
	return menuIds, nil
}

// UpsertMenuRecipeLine adds or changes a recipe line and rederives the menu's
// cost in the same transaction.
func UpsertMenuRecipeLine(ctx context.Context, menuId int, input *models.NewRecipeLine) (*MenuCostResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, fmt.Errorf("business id is required")
	}

	db := config.GetDB()
	var result *MenuCostResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateResourceId[models.Ingredient](ctx, businessId, input.IngredientId); err != nil {
			return models.ErrUnknownIngredient
		}
		if _, err := models.UpsertRecipeLine(tx, businessId, menuId, input); err != nil {
			return err
		}
		var err error
		result, err = RecomputeMenuCost(tx, businessId, menuId)
		return err
	})
	if err != nil {
		return nil, err
	}
	dropMenuCostCache(businessId, []int{menuId})
	return result, nil
}

// RemoveMenuRecipeLine deletes a recipe line and rederives the menu's cost.
func RemoveMenuRecipeLine(ctx context.Context, menuId int, ingredientId int) (*MenuCostResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, fmt.Errorf("business id is required")
	}

	db := config.GetDB()
	var result *MenuCostResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.RemoveRecipeLine(tx, businessId, menuId, ingredientId); err != nil {
			return err
		}
		var err error
		result, err = RecomputeMenuCost(tx, businessId, menuId)
		return err
	})
	if err != nil {
		return nil, err
	}
	dropMenuCostCache(businessId, []int{menuId})
	return result, nil
}

// MenuCost is the cached read view of a menu's derived cost. The cache is
// dropped on every recompute, so a hit always reflects the last posting.
func MenuCost(ctx context.Context, menuId int) (*MenuCostResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, fmt.Errorf("business id is required")
	}

	cacheKey := menuCostCacheKey(businessId, menuId)
	var cached MenuCostResult
	if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	db := config.GetDB()
	menu, err := models.GetMenuWithRecipe(db.WithContext(ctx), businessId, menuId)
	if err != nil {
		return nil, err
	}
	result := MenuCostResult{
		MenuId:       menu.ID,
		Name:         menu.Name,
		Price:        menu.Price,
		CostPrice:    menu.CostPrice,
		Profit:       menu.Profit,
		ProfitMargin: menu.ProfitMargin,
		CostStale:    utils.DereferencePtr(menu.CostStale),
	}
	if err := config.SetRedisObject(cacheKey, &result, menuCostCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "workflow", "MenuCost", "Failed to cache menu cost", menuId, err)
	}
	return &result, nil
}
