package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildResult reports one ingredient's projection repair.
type RebuildResult struct {
	IngredientId int             `json:"ingredient_id"`
	Before       decimal.Decimal `json:"before"`
	After        decimal.Decimal `json:"after"`
	Drifted      bool            `json:"drifted"`
}

// RebuildIngredientStockFromLedger refolds the full ledger of one ingredient
// and overwrites current_stock with the result. The fold is the source of
// truth; any drift between it and the projection is repaired here.
// Idempotent: a second run right after finds no drift.
func RebuildIngredientStockFromLedger(tx *gorm.DB, businessId string, ingredientId int) (*RebuildResult, error) {
	if err := AcquireIngredientPostingLock(tx, businessId, ingredientId); err != nil {
		return nil, err
	}
	defer ReleaseIngredientPostingLock(tx, businessId, ingredientId)

	ingredient, err := models.GetIngredientForUpdate(tx, businessId, ingredientId)
	if err != nil {
		return nil, err
	}

	entries, err := models.LedgerEntriesForIngredient(tx, businessId, ingredientId)
	if err != nil {
		return nil, err
	}
	folded := models.FoldLedgerQty(entries)

	result := &RebuildResult{
		IngredientId: ingredientId,
		Before:       ingredient.CurrentStock,
		After:        folded,
		Drifted:      !ingredient.CurrentStock.Equal(folded),
	}
	if !result.Drifted {
		return result, nil
	}

	err = tx.Model(&models.Ingredient{}).
		Where("business_id = ? AND id = ?", businessId, ingredientId).
		Update("current_stock", folded).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RebuildAllIngredientStock repairs the projection of every ingredient of a
// business, one transaction per ingredient so a failure on one does not roll
// back the repairs already committed.
func RebuildAllIngredientStock(ctx context.Context, businessId string) ([]*RebuildResult, error) {
	logger := config.GetLogger()
	release, err := utils.BusinessLock(ctx, businessId, "inv_rebuild", "workflow", "RebuildAllIngredientStock")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	var ingredientIds []int
	err = db.WithContext(ctx).Model(&models.Ingredient{}).
		Where("business_id = ?", businessId).
		Order("id").
		Pluck("id", &ingredientIds).Error
	if err != nil {
		return nil, err
	}

	results := make([]*RebuildResult, 0, len(ingredientIds))
	for _, ingredientId := range ingredientIds {
		var result *RebuildResult
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = RebuildIngredientStockFromLedger(tx, businessId, ingredientId)
			return err
		})
		if err != nil {
			config.LogError(logger, "workflow", "RebuildAllIngredientStock", "Rebuild failed for ingredient", ingredientId, err)
			return results, fmt.Errorf("rebuild ingredient_id=%d: %w", ingredientId, err)
		}
		if result.Drifted {
			logger.WithFields(logrus.Fields{
				"business_id":   businessId,
				"ingredient_id": ingredientId,
				"before":        result.Before.String(),
				"after":         result.After.String(),
			}).Warn("Stock projection drift repaired")
		}
		results = append(results, result)
	}
	return results, nil
}

// SweepExpiredLots flips passed-expiry lots to Expired and reports what it
// marked. Stock and ledger are untouched; disposal is posted as waste by the
// operator after a physical check.
func SweepExpiredLots(ctx context.Context, businessId string, asOf time.Time) (int64, error) {
	if businessId == "" {
		return 0, errors.New("business id is required")
	}
	db := config.GetDB()
	var marked int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		marked, err = models.MarkExpiredLots(tx, businessId, asOf)
		return err
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}
