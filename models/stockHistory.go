package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockHistory is the append-only inventory ledger. Entries are never mutated
// or deleted; corrections are posted as compensating entries that reference
// the original row. This table is the single source of truth for stock
// history and audit; current_stock on Ingredient is a projection of it.
type StockHistory struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	BusinessId      string               `gorm:"index;not null" json:"business_id"`
	IngredientId    int                  `gorm:"index;not null" json:"ingredient_id"`
	TransactionType StockTransactionType `gorm:"type:enum('purchase','sale','adjustment','waste');not null" json:"transaction_type"`
	// Qty is the signed stock delta. Purchases positive, sales/waste negative,
	// adjustments either sign.
	Qty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Unit string          `gorm:"size:20;not null" json:"unit"`
	// UnitValue is the purchase unit cost for purchase entries; zero otherwise.
	UnitValue     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"unit_value"`
	StockDate     time.Time          `gorm:"index;not null" json:"stock_date"`
	Description   string             `gorm:"size:255" json:"description"`
	ReferenceType StockReferenceType `gorm:"type:enum('PU','SA','AD','WA')" json:"reference_type"`
	ReferenceID   int                `gorm:"index" json:"reference_id"`
	IsOutgoing    *bool              `gorm:"not null;default:false" json:"is_outgoing"`
	// Append-only ledger immutability & reversals.
	IsReversal               bool       `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesStockHistoryId   *int       `gorm:"index" json:"reverses_stock_history_id"`
	ReversedByStockHistoryId *int       `gorm:"index" json:"reversed_by_stock_history_id"`
	ReversalReason           *string    `gorm:"type:text" json:"reversal_reason"`
	ReversedAt               *time.Time `gorm:"index" json:"reversed_at"`
	CreatedBy                int        `json:"created_by"`
	CreatedAt                time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave enforces internal invariants for the inventory ledger.
//
// FIFO queries classify consumptions by IsOutgoing; a row with qty<0 but
// IsOutgoing=false would make lot consumption see stock that isn't there.
// For non-zero qty, IsOutgoing always matches the qty sign.
func (sh *StockHistory) BeforeSave(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	if sh == nil {
		return nil
	}
	if sh.IsOutgoing == nil {
		b := false
		sh.IsOutgoing = &b
	}
	if sh.Qty.IsZero() {
		return nil
	}
	b := sh.Qty.IsNegative()
	sh.IsOutgoing = &b
	return nil
}

// AppendStockHistory validates and durably persists a ledger entry inside the
// caller's transaction. Projection is a consequence of durability, not a
// precondition: callers apply the stock delta after this returns.
func AppendStockHistory(tx *gorm.DB, entry *StockHistory) error {
	if entry == nil {
		return errors.New("append stock history: entry is nil")
	}
	if !entry.TransactionType.Valid() {
		return fmt.Errorf("%w: transaction_type=%q", ErrInvalidQuantity, entry.TransactionType)
	}
	if entry.Qty.IsZero() {
		return fmt.Errorf("%w: qty is zero for ingredient_id=%d", ErrInvalidQuantity, entry.IngredientId)
	}
	if strings.TrimSpace(entry.Unit) == "" {
		return fmt.Errorf("%w: unit is empty for ingredient_id=%d", ErrInvalidQuantity, entry.IngredientId)
	}

	var ingredient Ingredient
	err := tx.Select("id", "unit").
		Where("business_id = ? AND id = ?", entry.BusinessId, entry.IngredientId).
		First(&ingredient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: ingredient_id=%d", ErrUnknownIngredient, entry.IngredientId)
		}
		return err
	}
	if !strings.EqualFold(ingredient.Unit, entry.Unit) {
		return fmt.Errorf("%w: unit %q does not match ingredient unit %q", ErrInvalidQuantity, entry.Unit, ingredient.Unit)
	}

	return tx.Create(entry).Error
}

// ReverseStockHistory posts a compensating entry for an existing ledger row.
// The original row is never mutated beyond linking the reversal; the
// compensating entry carries the opposite quantity and the given reason.
func ReverseStockHistory(tx *gorm.DB, businessId string, id int, reason string, actorId int) (*StockHistory, error) {
	var original StockHistory
	err := tx.Where("business_id = ? AND id = ?", businessId, id).First(&original).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reverse stock history: entry id=%d not found", id)
		}
		return nil, err
	}
	if original.IsReversal {
		return nil, fmt.Errorf("reverse stock history: entry id=%d is itself a reversal", id)
	}
	if original.ReversedByStockHistoryId != nil {
		return nil, fmt.Errorf("reverse stock history: entry id=%d already reversed by id=%d", id, *original.ReversedByStockHistoryId)
	}

	now := time.Now().UTC()
	reversal := StockHistory{
		BusinessId:             original.BusinessId,
		IngredientId:           original.IngredientId,
		TransactionType:        original.TransactionType,
		Qty:                    original.Qty.Neg(),
		Unit:                   original.Unit,
		UnitValue:              original.UnitValue,
		StockDate:              now,
		Description:            fmt.Sprintf("Reversal of stock history #%d", original.ID),
		ReferenceType:          original.ReferenceType,
		ReferenceID:            original.ReferenceID,
		IsReversal:             true,
		ReversesStockHistoryId: &original.ID,
		ReversalReason:         &reason,
		CreatedBy:              actorId,
	}
	if err := tx.Create(&reversal).Error; err != nil {
		return nil, err
	}
	err = tx.Model(&StockHistory{}).
		Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"ReversedByStockHistoryId": reversal.ID,
			"ReversedAt":               now,
		}).Error
	if err != nil {
		return nil, err
	}
	return &reversal, nil
}

// LedgerEntriesForIngredient returns the full active ledger of an ingredient
// in commit order. Reversal pairs cancel out in the fold, so they are included.
func LedgerEntriesForIngredient(tx *gorm.DB, businessId string, ingredientId int) ([]*StockHistory, error) {
	var entries []*StockHistory
	err := tx.
		Where("business_id = ? AND ingredient_id = ?", businessId, ingredientId).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LedgerEntriesByType narrows one ingredient's ledger to a single transaction
// type, in commit order, for the audit view.
func LedgerEntriesByType(tx *gorm.DB, businessId string, ingredientId int, transactionType StockTransactionType) ([]*StockHistory, error) {
	var entries []*StockHistory
	err := tx.
		Where("business_id = ? AND ingredient_id = ? AND transaction_type = ?",
			businessId, ingredientId, transactionType).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// FoldLedgerQty folds signed quantity deltas in commit order. For any
// ingredient, folding its full ledger must reproduce current_stock exactly.
func FoldLedgerQty(entries []*StockHistory) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e == nil {
			continue
		}
		total = total.Add(e.Qty)
	}
	return total
}

// PurchaseSample is one purchase ledger entry as seen by the costing policies.
type PurchaseSample struct {
	Qty       decimal.Decimal
	UnitValue decimal.Decimal
	StockDate time.Time
}

// PurchaseSamplesForIngredient loads purchase entries with a positive unit
// value, newest last, for the costing policies. Reversed purchases and the
// compensating entries themselves are excluded.
func PurchaseSamplesForIngredient(tx *gorm.DB, businessId string, ingredientId int) ([]PurchaseSample, error) {
	var rows []*StockHistory
	err := tx.
		Where("business_id = ? AND ingredient_id = ? AND transaction_type = ? AND unit_value > 0 AND is_reversal = 0 AND reversed_by_stock_history_id IS NULL",
			businessId, ingredientId, StockTransactionTypePurchase).
		Order("stock_date, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	samples := make([]PurchaseSample, 0, len(rows))
	for _, r := range rows {
		samples = append(samples, PurchaseSample{Qty: r.Qty, UnitValue: r.UnitValue, StockDate: r.StockDate})
	}
	return samples, nil
}
