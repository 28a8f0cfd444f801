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

// Lot is a receipt of an ingredient at a specific unit cost and expiry.
// RemainingQty is monotonically non-increasing: it is only decremented as
// consumption is attributed to the lot under FIFO.
type Lot struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null" json:"business_id"`
	// IngredientId owns the lot; PurchaseStockHistoryId is the ledger entry
	// that created it.
	IngredientId           int             `gorm:"index;not null" json:"ingredient_id"`
	PurchaseStockHistoryId int             `gorm:"index" json:"purchase_stock_history_id"`
	Qty                    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	RemainingQty           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_qty"`
	UnitCost               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	ReceivedDate           time.Time       `gorm:"index;not null" json:"received_date"`
	ExpiryDate             *time.Time      `gorm:"index" json:"expiry_date"`
	Status                 LotStatus       `gorm:"type:enum('Active','Expired','Depleted','Recalled');default:Active" json:"status"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LotConsumption attributes a consumption ledger entry to the lot(s) it drew
// from, at the lot's unit cost. One outgoing entry may split across lots.
type LotConsumption struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	LotId          int             `gorm:"index;not null" json:"lot_id"`
	StockHistoryId int             `gorm:"index;not null" json:"stock_history_id"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// CreateLot records a received batch for a purchase entry.
func CreateLot(tx *gorm.DB, entry *StockHistory, expiryDate *time.Time) (*Lot, error) {
	if entry == nil {
		return nil, errors.New("create lot: purchase entry is nil")
	}
	if !entry.Qty.IsPositive() {
		return nil, errors.New("create lot: purchase qty must be positive")
	}
	lot := Lot{
		BusinessId:             entry.BusinessId,
		IngredientId:           entry.IngredientId,
		PurchaseStockHistoryId: entry.ID,
		Qty:                    entry.Qty,
		RemainingQty:           entry.Qty,
		UnitCost:               entry.UnitValue,
		ReceivedDate:           entry.StockDate,
		ExpiryDate:             expiryDate,
		Status:                 LotStatusActive,
	}
	if err := tx.Create(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// ActiveLotsFIFO loads consumable lots oldest-first. Same-day receipts
// tie-break on insertion order (id) so consumption stays deterministic.
func ActiveLotsFIFO(tx *gorm.DB, businessId string, ingredientId int) ([]*Lot, error) {
	var lots []*Lot
	err := tx.
		Where("business_id = ? AND ingredient_id = ? AND status = ? AND remaining_qty > 0",
			businessId, ingredientId, LotStatusActive).
		Order("received_date, id").
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// OldestActiveLot returns the FIFO head lot, or RecordNotFound when no active
// lot with remaining quantity exists.
func OldestActiveLot(tx *gorm.DB, businessId string, ingredientId int) (*Lot, error) {
	var lot Lot
	err := tx.
		Where("business_id = ? AND ingredient_id = ? AND status = ? AND remaining_qty > 0",
			businessId, ingredientId, LotStatusActive).
		Order("received_date, id").
		First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// ExpiredLotRow is one line of the expiry sweep report. EstimatedWasteValue
// (remaining × unit cost) is an estimate for waste reporting only; disposal
// still requires an explicit waste ledger entry.
type ExpiredLotRow struct {
	LotId               int             `json:"lot_id"`
	IngredientId        int             `json:"ingredient_id"`
	IngredientName      string          `json:"ingredient_name"`
	Unit                string          `json:"unit"`
	RemainingQty        decimal.Decimal `json:"remaining_qty"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	EstimatedWasteValue decimal.Decimal `json:"estimated_waste_value"`
	ReceivedDate        time.Time       `json:"received_date"`
	ExpiryDate          time.Time       `json:"expiry_date"`
	Status              LotStatus       `json:"status"`
}

// ExpiredLots reports lots whose expiry has passed with remaining quantity.
// Report only — nothing is deleted or mutated here.
func ExpiredLots(ctx context.Context, asOf time.Time) ([]*ExpiredLotRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var rows []*ExpiredLotRow
	err := db.WithContext(ctx).Raw(`
		SELECT
			lots.id AS lot_id,
			lots.ingredient_id,
			ingredients.name AS ingredient_name,
			ingredients.unit,
			lots.remaining_qty,
			lots.unit_cost,
			lots.remaining_qty * lots.unit_cost AS estimated_waste_value,
			lots.received_date,
			lots.expiry_date,
			lots.status
		FROM lots
		JOIN ingredients ON ingredients.id = lots.ingredient_id
		WHERE lots.business_id = ?
		  AND lots.expiry_date IS NOT NULL
		  AND lots.expiry_date < ?
		  AND lots.remaining_qty > 0
		  AND lots.status IN (?, ?)
		ORDER BY lots.expiry_date, lots.id
	`, businessId, asOf, LotStatusActive, LotStatusExpired).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkExpiredLots flips passed-expiry active lots to Expired. Status only;
// stock is untouched (an explicit waste entry reflects disposal).
func MarkExpiredLots(tx *gorm.DB, businessId string, asOf time.Time) (int64, error) {
	result := tx.Model(&Lot{}).
		Where("business_id = ? AND status = ? AND expiry_date IS NOT NULL AND expiry_date < ? AND remaining_qty > 0",
			businessId, LotStatusActive, asOf).
		Update("status", LotStatusExpired)
	return result.RowsAffected, result.Error
}
