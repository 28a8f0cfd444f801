package models

import "fmt"

type StockTransactionType string

const (
	StockTransactionTypePurchase   StockTransactionType = "purchase"
	StockTransactionTypeSale       StockTransactionType = "sale"
	StockTransactionTypeAdjustment StockTransactionType = "adjustment"
	StockTransactionTypeWaste      StockTransactionType = "waste"
)

func (t StockTransactionType) Valid() bool {
	switch t {
	case StockTransactionTypePurchase, StockTransactionTypeSale,
		StockTransactionTypeAdjustment, StockTransactionTypeWaste:
		return true
	}
	return false
}

// ParseStockTransactionType converts request input to the enum type.
func ParseStockTransactionType(s string) (StockTransactionType, error) {
	t := StockTransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid stock transaction type: %q", s)
	}
	return t, nil
}

// StockReferenceType identifies the originating business document of a ledger entry.
type StockReferenceType string

const (
	StockReferenceTypePurchase   StockReferenceType = "PU"
	StockReferenceTypeSale       StockReferenceType = "SA"
	StockReferenceTypeAdjustment StockReferenceType = "AD"
	StockReferenceTypeWaste      StockReferenceType = "WA"
)

type LotStatus string

const (
	LotStatusActive   LotStatus = "Active"
	LotStatusExpired  LotStatus = "Expired"
	LotStatusDepleted LotStatus = "Depleted"
	LotStatusRecalled LotStatus = "Recalled"
)

func (s LotStatus) Valid() bool {
	switch s {
	case LotStatusActive, LotStatusExpired, LotStatusDepleted, LotStatusRecalled:
		return true
	}
	return false
}

type CostingPolicyType string

const (
	CostingPolicyTypeLatest          CostingPolicyType = "latest"
	CostingPolicyTypeWeightedAverage CostingPolicyType = "weighted_average"
	CostingPolicyTypeFifo            CostingPolicyType = "fifo"
)

type CostLineType string

const (
	CostLineTypeIngredient CostLineType = "Ingredient"
	CostLineTypePackaging  CostLineType = "Packaging"
	CostLineTypeLabor      CostLineType = "Labor"
	CostLineTypeOverhead   CostLineType = "Overhead"
	CostLineTypeOther      CostLineType = "Other"
)

func (t CostLineType) Valid() bool {
	switch t {
	case CostLineTypeIngredient, CostLineTypePackaging, CostLineTypeLabor,
		CostLineTypeOverhead, CostLineTypeOther:
		return true
	}
	return false
}
