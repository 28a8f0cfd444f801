package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ledgerOps implements the four external postings. Each runs as one
// transaction: ledger append, current_stock projection, lot bookkeeping,
// derived cost recomputation. Either all of it commits or none of it does.

type PurchaseInput struct {
	IngredientId int             `json:"ingredient_id" binding:"required"`
	Qty          decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Vendor       string          `json:"vendor"`
	PurchaseDate time.Time       `json:"purchase_date"`
	ExpiryDate   *time.Time      `json:"expiry_date"`
	ReferenceID  int             `json:"reference_id"`
	// IdempotencyKey, when set, rejects a retry of an already committed posting.
	IdempotencyKey string `json:"idempotency_key"`
}

type SaleInput struct {
	MenuId         int             `json:"menu_id" binding:"required"`
	Qty            decimal.Decimal `json:"qty" binding:"required"`
	SaleDate       time.Time       `json:"sale_date"`
	ReferenceID    int             `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type AdjustmentInput struct {
	IngredientId   int             `json:"ingredient_id" binding:"required"`
	NewQty         decimal.Decimal `json:"new_qty"`
	Reason         string          `json:"reason" binding:"required"`
	AdjustmentDate time.Time       `json:"adjustment_date"`
	ReferenceID    int             `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type WasteInput struct {
	IngredientId   int             `json:"ingredient_id" binding:"required"`
	Qty            decimal.Decimal `json:"qty" binding:"required"`
	Reason         string          `json:"reason" binding:"required"`
	WasteDate      time.Time       `json:"waste_date"`
	ReferenceID    int             `json:"reference_id"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// SaleResult is what one sale posting produced: the per-ingredient ledger
// entries and the COGS allocation derived from them.
type SaleResult struct {
	Entries    []*models.StockHistory `json:"entries"`
	Allocation *models.CogsAllocation `json:"allocation"`
}

func stockDateOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// RecordPurchase posts an incoming purchase: ledger entry, stock projection,
// a new lot at the purchase unit cost, then ingredient cost and dependent
// menu recomputation under the active policy.
func RecordPurchase(ctx context.Context, input *PurchaseInput) (*models.StockHistory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: purchase qty must be positive, got %s", models.ErrInvalidQuantity, input.Qty)
	}
	if input.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price must not be negative, got %s", models.ErrInvalidQuantity, input.UnitPrice)
	}
	release, err := utils.BusinessLock(ctx, businessId, "inv_posting", "workflow", "RecordPurchase")
	if err != nil {
		return nil, err
	}
	defer release()

	userId, _ := utils.GetUserIdFromContext(ctx)
	policy := ActivePolicy()
	stockDate := stockDateOrNow(input.PurchaseDate)

	db := config.GetDB()
	var entry *models.StockHistory
	var touchedMenuIds []int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := RegisterPostingKey(tx, businessId, "purchase", input.IdempotencyKey); err != nil {
			return err
		}
		if err := AcquireIngredientPostingLock(tx, businessId, input.IngredientId); err != nil {
			return err
		}
		defer ReleaseIngredientPostingLock(tx, businessId, input.IngredientId)

		ingredient, err := models.GetIngredientForUpdate(tx, businessId, input.IngredientId)
		if err != nil {
			return err
		}

		description := "Purchase"
		if input.Vendor != "" {
			description = fmt.Sprintf("Purchase from %s", input.Vendor)
		}
		entry = &models.StockHistory{
			BusinessId:      businessId,
			IngredientId:    ingredient.ID,
			TransactionType: models.StockTransactionTypePurchase,
			Qty:             input.Qty,
			Unit:            ingredient.Unit,
			UnitValue:       input.UnitPrice,
			StockDate:       stockDate,
			Description:     description,
			ReferenceType:   models.StockReferenceTypePurchase,
			ReferenceID:     input.ReferenceID,
			CreatedBy:       userId,
		}
		if _, err := postIncomingStock(tx, entry, input.ExpiryDate); err != nil {
			return err
		}

		if err := RecomputeIngredientCost(tx, policy, businessId, ingredient.ID, stockDate); err != nil {
			return err
		}
		touchedMenuIds, err = RecomputeMenusForIngredients(tx, businessId, []int{ingredient.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	dropMenuCostCache(businessId, touchedMenuIds)
	return entry, nil
}

// RecordSale explodes one menu sale into per-ingredient outgoing entries via
// the recipe, posts them, and writes the COGS allocation. Insufficient stock
// for any ingredient rejects the whole sale; nothing is posted.
func RecordSale(ctx context.Context, input *SaleInput) (*SaleResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: sale qty must be positive, got %s", models.ErrInvalidQuantity, input.Qty)
	}
	release, err := utils.BusinessLock(ctx, businessId, "inv_posting", "workflow", "RecordSale")
	if err != nil {
		return nil, err
	}
	defer release()

	userId, _ := utils.GetUserIdFromContext(ctx)
	policy := ActivePolicy()
	fifoActive := policy.Name() == models.CostingPolicyTypeFifo
	saleDate := stockDateOrNow(input.SaleDate)

	db := config.GetDB()
	var result *SaleResult
	var touchedMenuIds []int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := RegisterPostingKey(tx, businessId, "sale", input.IdempotencyKey); err != nil {
			return err
		}
		menu, err := models.GetMenuWithRecipe(tx, businessId, input.MenuId)
		if err != nil {
			return err
		}

		// Lock ingredients in ascending id order so two concurrent sales over
		// overlapping recipes cannot deadlock.
		lines := make([]models.RecipeLine, len(menu.RecipeLines))
		copy(lines, menu.RecipeLines)
		sort.Slice(lines, func(i, j int) bool { return lines[i].IngredientId < lines[j].IngredientId })

		for _, line := range lines {
			if err := AcquireIngredientPostingLock(tx, businessId, line.IngredientId); err != nil {
				return err
			}
			defer ReleaseIngredientPostingLock(tx, businessId, line.IngredientId)
		}

		entries := make([]*models.StockHistory, 0, len(lines))
		consumedIngredientIds := make([]int, 0, len(lines))
		ingredientCost := decimal.Zero
		for _, line := range lines {
			ingredient, err := models.GetIngredientForUpdate(tx, businessId, line.IngredientId)
			if err != nil {
				return err
			}
			need := line.QuantityPerServe.Mul(input.Qty)
			if !need.IsPositive() {
				continue
			}

			entry := &models.StockHistory{
				BusinessId:      businessId,
				IngredientId:    ingredient.ID,
				TransactionType: models.StockTransactionTypeSale,
				Qty:             need.Neg(),
				Unit:            ingredient.Unit,
				StockDate:       saleDate,
				Description:     fmt.Sprintf("Sale of %s x %s", menu.Name, input.Qty),
				ReferenceType:   models.StockReferenceTypeSale,
				ReferenceID:     input.ReferenceID,
				CreatedBy:       userId,
			}
			consumptions, err := postOutgoingStock(tx, ingredient, entry, false, fifoActive)
			if err != nil {
				return err
			}
			entries = append(entries, entry)

			if fifoActive {
				ingredientCost = ingredientCost.Add(ConsumptionCost(consumptions))
				consumedIngredientIds = append(consumedIngredientIds, ingredient.ID)
			} else {
				ingredientCost = ingredientCost.Add(need.Mul(ingredient.CostPerUnit))
			}
		}

		allocation := buildSaleAllocation(menu, input.Qty, ingredientCost, input.ReferenceID, saleDate)
		if err := tx.Create(&allocation).Error; err != nil {
			return err
		}

		// FIFO consumption can move the head lot, so derived costs shift.
		if fifoActive && len(consumedIngredientIds) > 0 {
			for _, ingredientId := range consumedIngredientIds {
				if err := RecomputeIngredientCost(tx, policy, businessId, ingredientId, saleDate); err != nil {
					return err
				}
			}
			if touchedMenuIds, err = RecomputeMenusForIngredients(tx, businessId, consumedIngredientIds); err != nil {
				return err
			}
		}

		result = &SaleResult{Entries: entries, Allocation: &allocation}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dropMenuCostCache(businessId, touchedMenuIds)
	return result, nil
}

type ReversalInput struct {
	StockHistoryId int    `json:"stock_history_id" binding:"required"`
	Reason         string `json:"reason" binding:"required"`
}

// ReverseLedgerEntry posts the compensating entry for a committed ledger row
// and applies its projection. The original row is never mutated beyond the
// reversal link. Reversing a purchase that was already consumed may drive
// stock negative; that is a correction, not a consumption, so no availability
// check applies. Lot state is not unwound; FIFO deployments follow a
// reversal with an adjustment or a rebuild.
func ReverseLedgerEntry(ctx context.Context, input *ReversalInput) (*models.StockHistory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	release, err := utils.BusinessLock(ctx, businessId, "inv_posting", "workflow", "ReverseLedgerEntry")
	if err != nil {
		return nil, err
	}
	defer release()

	userId, _ := utils.GetUserIdFromContext(ctx)
	policy := ActivePolicy()

	db := config.GetDB()
	var reversal *models.StockHistory
	var touchedMenuIds []int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original models.StockHistory
		err := tx.Select("id", "ingredient_id").
			Where("business_id = ? AND id = ?", businessId, input.StockHistoryId).
			First(&original).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		if err := AcquireIngredientPostingLock(tx, businessId, original.IngredientId); err != nil {
			return err
		}
		defer ReleaseIngredientPostingLock(tx, businessId, original.IngredientId)

		reversal, err = models.ReverseStockHistory(tx, businessId, input.StockHistoryId, input.Reason, userId)
		if err != nil {
			return err
		}
		if err := models.ApplyStockDelta(tx, businessId, reversal.IngredientId, reversal.Qty); err != nil {
			return err
		}

		// A reversed purchase drops out of the costing samples.
		if err := RecomputeIngredientCost(tx, policy, businessId, reversal.IngredientId, time.Now().UTC()); err != nil {
			return err
		}
		touchedMenuIds, err = RecomputeMenusForIngredients(tx, businessId, []int{reversal.IngredientId})
		return err
	})
	if err != nil {
		return nil, err
	}
	dropMenuCostCache(businessId, touchedMenuIds)
	return reversal, nil
}

// RecordAdjustment reconciles a physical count: it posts the signed delta
// between the counted quantity and the projection. Adjustments may drive
// stock to any non-negative value, bypass the availability check and do not
// touch lots (a count correction is not attributable to a specific lot).
func RecordAdjustment(ctx context.Context, input *AdjustmentInput) (*models.StockHistory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.NewQty.IsNegative() {
		return nil, fmt.Errorf("%w: counted qty must not be negative, got %s", models.ErrInvalidQuantity, input.NewQty)
	}
	release, err := utils.BusinessLock(ctx, businessId, "inv_posting", "workflow", "RecordAdjustment")
	if err != nil {
		return nil, err
	}
	defer release()

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	stockDate := stockDateOrNow(input.AdjustmentDate)
	description := input.Reason
	if userName != "" {
		description = fmt.Sprintf("%s (counted by %s)", input.Reason, userName)
	}

	db := config.GetDB()
	var entry *models.StockHistory
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := RegisterPostingKey(tx, businessId, "adjustment", input.IdempotencyKey); err != nil {
			return err
		}
		if err := AcquireIngredientPostingLock(tx, businessId, input.IngredientId); err != nil {
			return err
		}
		defer ReleaseIngredientPostingLock(tx, businessId, input.IngredientId)

		ingredient, err := models.GetIngredientForUpdate(tx, businessId, input.IngredientId)
		if err != nil {
			return err
		}
		delta := input.NewQty.Sub(ingredient.CurrentStock)
		if delta.IsZero() {
			return fmt.Errorf("%w: counted qty equals current stock (%s), nothing to adjust",
				models.ErrInvalidQuantity, ingredient.CurrentStock)
		}

		entry = &models.StockHistory{
			BusinessId:      businessId,
			IngredientId:    ingredient.ID,
			TransactionType: models.StockTransactionTypeAdjustment,
			Qty:             delta,
			Unit:            ingredient.Unit,
			StockDate:       stockDate,
			Description:     description,
			ReferenceType:   models.StockReferenceTypeAdjustment,
			ReferenceID:     input.ReferenceID,
			CreatedBy:       userId,
		}
		if delta.IsPositive() {
			_, err = postIncomingStock(tx, entry, nil)
			return err
		}
		_, err = postOutgoingStock(tx, ingredient, entry, true, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordWaste posts spoilage or disposal as an outgoing entry. Like sales it
// is rejected when stock cannot cover it; waste of stock that does not exist
// is a count problem and belongs in an adjustment.
func RecordWaste(ctx context.Context, input *WasteInput) (*models.StockHistory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: waste qty must be positive, got %s", models.ErrInvalidQuantity, input.Qty)
	}
	release, err := utils.BusinessLock(ctx, businessId, "inv_posting", "workflow", "RecordWaste")
	if err != nil {
		return nil, err
	}
	defer release()

	userId, _ := utils.GetUserIdFromContext(ctx)
	policy := ActivePolicy()
	fifoActive := policy.Name() == models.CostingPolicyTypeFifo
	stockDate := stockDateOrNow(input.WasteDate)

	db := config.GetDB()
	var entry *models.StockHistory
	var touchedMenuIds []int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := RegisterPostingKey(tx, businessId, "waste", input.IdempotencyKey); err != nil {
			return err
		}
		if err := AcquireIngredientPostingLock(tx, businessId, input.IngredientId); err != nil {
			return err
		}
		defer ReleaseIngredientPostingLock(tx, businessId, input.IngredientId)

		ingredient, err := models.GetIngredientForUpdate(tx, businessId, input.IngredientId)
		if err != nil {
			return err
		}

		entry = &models.StockHistory{
			BusinessId:      businessId,
			IngredientId:    ingredient.ID,
			TransactionType: models.StockTransactionTypeWaste,
			Qty:             input.Qty.Neg(),
			Unit:            ingredient.Unit,
			StockDate:       stockDate,
			Description:     input.Reason,
			ReferenceType:   models.StockReferenceTypeWaste,
			ReferenceID:     input.ReferenceID,
			CreatedBy:       userId,
		}
		if _, err := postOutgoingStock(tx, ingredient, entry, false, fifoActive); err != nil {
			return err
		}

		if fifoActive {
			if err := RecomputeIngredientCost(tx, policy, businessId, ingredient.ID, stockDate); err != nil {
				return err
			}
			if touchedMenuIds, err = RecomputeMenusForIngredients(tx, businessId, []int{ingredient.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dropMenuCostCache(businessId, touchedMenuIds)
	return entry, nil
}
