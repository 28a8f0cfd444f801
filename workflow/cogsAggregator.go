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
	"gorm.io/gorm"
)

// computeBatchTotals sums typed cost lines into the batch total and derives
// cost per unit. A zero-quantity batch has no defined per-unit cost; the
// caller gets ErrUndefined rather than a division result.
func computeBatchTotals(lines []models.BatchCostLine, batchQty decimal.Decimal) (total, perUnit decimal.Decimal, err error) {
	total = decimal.Zero
	for _, line := range lines {
		total = total.Add(line.TotalCost)
	}
	if !batchQty.IsPositive() {
		return total, decimal.Zero, fmt.Errorf("%w: batch quantity is %s, cost per unit undefined", models.ErrUndefined, batchQty)
	}
	return total, total.Div(batchQty), nil
}

// RecomputeBatchTotal rederives and persists a batch's total and per-unit
// cost from its cost lines. On ErrUndefined the total is still persisted with
// a zero per-unit cost and the error is returned for the caller to surface.
func RecomputeBatchTotal(tx *gorm.DB, businessId string, batchId int) (*models.ProductionBatch, error) {
	batch, err := models.GetBatchWithCostLines(tx, businessId, batchId)
	if err != nil {
		return nil, err
	}

	total, perUnit, computeErr := computeBatchTotals(batch.CostLines, batch.Quantity)
	if computeErr != nil && !errors.Is(computeErr, models.ErrUndefined) {
		return nil, computeErr
	}
	if err := models.UpdateBatchDerivedCost(tx, businessId, batchId, total, perUnit); err != nil {
		return nil, err
	}
	batch.TotalCost = total
	batch.CostPerUnit = perUnit
	return batch, computeErr
}

// AddBatchCostLineAndRecompute appends a cost line and rederives the batch
// totals in one transaction.
func AddBatchCostLineAndRecompute(ctx context.Context, batchId int, input *models.NewBatchCostLine) (*models.ProductionBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var batch *models.ProductionBatch
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := models.AddBatchCostLine(tx, businessId, batchId, input); err != nil {
			return err
		}
		var err error
		batch, err = RecomputeBatchTotal(tx, businessId, batchId)
		if err != nil && !errors.Is(err, models.ErrUndefined) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// buildSaleAllocation assembles the COGS decomposition for one sale posting.
// Ingredient cost comes from the costing layer; packaging, labor and overhead
// are the menu's per-unit components scaled by quantity sold.
func buildSaleAllocation(menu *models.Menu, qtySold, ingredientCost decimal.Decimal, referenceId int, saleDate time.Time) models.CogsAllocation {
	packaging := menu.PackagingCostPerUnit.Mul(qtySold)
	labor := menu.LaborCostPerUnit.Mul(qtySold)
	overhead := menu.OverheadCostPerUnit.Mul(qtySold)
	return models.CogsAllocation{
		BusinessId:     menu.BusinessId,
		MenuId:         menu.ID,
		ReferenceType:  models.StockReferenceTypeSale,
		ReferenceID:    referenceId,
		QtySold:        qtySold,
		IngredientCost: ingredientCost,
		PackagingCost:  packaging,
		LaborCost:      labor,
		OverheadCost:   overhead,
		TotalCogs:      ingredientCost.Add(packaging).Add(labor).Add(overhead),
		SaleDate:       saleDate,
	}
}
