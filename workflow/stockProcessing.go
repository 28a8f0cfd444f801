package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"gorm.io/gorm"
)

// stockProcessing holds the two posting primitives every external operation
// reduces to: an incoming entry (stock up) or an outgoing entry (stock down).
// Both run inside the caller's transaction and keep the ledger append, the
// current_stock projection and the lot bookkeeping atomic.

// postIncomingStock appends a positive ledger entry and applies the
// projection. Purchases additionally open a lot at the purchase unit cost.
// Lots are kept for every purchase regardless of the active costing policy,
// so expiry reporting works and a later switch to FIFO has history to draw on.
func postIncomingStock(tx *gorm.DB, entry *models.StockHistory, expiryDate *time.Time) (*models.Lot, error) {
	if !entry.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: incoming qty must be positive, got %s", models.ErrInvalidQuantity, entry.Qty)
	}
	if err := models.AppendStockHistory(tx, entry); err != nil {
		return nil, err
	}
	if err := models.ApplyStockDelta(tx, entry.BusinessId, entry.IngredientId, entry.Qty); err != nil {
		return nil, err
	}

	if entry.TransactionType != models.StockTransactionTypePurchase {
		return nil, nil
	}
	return models.CreateLot(tx, entry, expiryDate)
}

// postOutgoingStock appends a negative ledger entry and applies the
// projection. The caller passes the ingredient loaded FOR UPDATE; the
// availability check runs against that locked row so two concurrent sales
// cannot both pass it. Adjustments set allowNegative and skip lot
// consumption; they reconcile counts and are not attributable to lots.
func postOutgoingStock(tx *gorm.DB, ingredient *models.Ingredient, entry *models.StockHistory, allowNegative bool, consumeLots bool) ([]*models.LotConsumption, error) {
	if !entry.Qty.IsNegative() {
		return nil, fmt.Errorf("%w: outgoing qty must be negative, got %s", models.ErrInvalidQuantity, entry.Qty)
	}

	outQty := entry.Qty.Neg()
	if !allowNegative && ingredient.CurrentStock.LessThan(outQty) {
		return nil, fmt.Errorf("%w: ingredient_id=%d requested=%s available=%s",
			models.ErrInsufficientStock, entry.IngredientId, outQty, ingredient.CurrentStock)
	}

	if err := models.AppendStockHistory(tx, entry); err != nil {
		return nil, err
	}
	if err := models.ApplyStockDelta(tx, entry.BusinessId, entry.IngredientId, entry.Qty); err != nil {
		return nil, err
	}

	if !consumeLots {
		return nil, nil
	}
	return ConsumeLotsFIFO(tx, entry.BusinessId, entry, outQty)
}
