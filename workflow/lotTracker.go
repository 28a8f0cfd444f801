package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// lotDraw is one planned draw against a lot during FIFO consumption.
type lotDraw struct {
	Lot *models.Lot
	Qty decimal.Decimal
}

// planFIFOConsumption walks lots oldest-first and plans draws until qty is
// covered. Planning is all-or-nothing: when the lots cannot cover qty, no
// draws are returned and nothing may be mutated by the caller.
func planFIFOConsumption(lots []*models.Lot, qty decimal.Decimal) ([]lotDraw, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: consumption qty must be positive, got %s", models.ErrInvalidQuantity, qty)
	}

	remaining := qty
	draws := make([]lotDraw, 0, len(lots))
	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if lot == nil || !lot.RemainingQty.IsPositive() {
			continue
		}
		take := lot.RemainingQty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		draws = append(draws, lotDraw{Lot: lot, Qty: take})
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: insufficient lots, qty_missing=%s", models.ErrInsufficientStock, remaining)
	}
	return draws, nil
}

// ConsumeLotsFIFO attributes an outgoing ledger entry to lots oldest-first and
// records the consumption rows. The ledger entry must already be persisted
// (its id links the consumptions). Lot rows are decremented and flipped to
// Depleted when drained; on a planning failure nothing is written.
func ConsumeLotsFIFO(tx *gorm.DB, businessId string, entry *models.StockHistory, qty decimal.Decimal) ([]*models.LotConsumption, error) {
	lots, err := models.ActiveLotsFIFO(tx, businessId, entry.IngredientId)
	if err != nil {
		return nil, err
	}
	draws, err := planFIFOConsumption(lots, qty)
	if err != nil {
		return nil, fmt.Errorf("ingredient_id=%d: %w", entry.IngredientId, err)
	}

	consumptions := make([]*models.LotConsumption, 0, len(draws))
	for _, draw := range draws {
		newRemaining := draw.Lot.RemainingQty.Sub(draw.Qty)
		updates := map[string]interface{}{"RemainingQty": newRemaining}
		if newRemaining.IsZero() {
			updates["Status"] = models.LotStatusDepleted
		}
		if err := tx.Model(&models.Lot{}).
			Where("business_id = ? AND id = ?", businessId, draw.Lot.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}

		consumption := models.LotConsumption{
			BusinessId:     businessId,
			LotId:          draw.Lot.ID,
			StockHistoryId: entry.ID,
			Qty:            draw.Qty,
			UnitCost:       draw.Lot.UnitCost,
		}
		if err := tx.Create(&consumption).Error; err != nil {
			return nil, err
		}
		consumptions = append(consumptions, &consumption)
	}
	return consumptions, nil
}

// ConsumptionCost sums qty × lot unit cost over the consumption rows of one
// outgoing entry. This is the exact FIFO ingredient cost of that entry.
func ConsumptionCost(consumptions []*models.LotConsumption) decimal.Decimal {
	total := decimal.Zero
	for _, c := range consumptions {
		if c == nil {
			continue
		}
		total = total.Add(c.Qty.Mul(c.UnitCost))
	}
	return total
}
