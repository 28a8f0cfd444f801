package workflow

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CostingPolicy derives an ingredient's unit cost from ledger and lot state.
// One policy is active per deployment (config.GetCostingPolicyName); switching
// policies only changes future derivations, historical ledger entries and
// already-posted COGS allocations are untouched.
type CostingPolicy interface {
	Name() models.CostingPolicyType
	// UnitCost returns the derived unit cost as of asOf, or ErrStaleCostData
	// when the policy has no data to derive from.
	UnitCost(tx *gorm.DB, businessId string, ingredientId int, asOf time.Time) (decimal.Decimal, error)
}

type latestPricePolicy struct{}

func (latestPricePolicy) Name() models.CostingPolicyType {
	return models.CostingPolicyTypeLatest
}

func (latestPricePolicy) UnitCost(tx *gorm.DB, businessId string, ingredientId int, asOf time.Time) (decimal.Decimal, error) {
	samples, err := models.PurchaseSamplesForIngredient(tx, businessId, ingredientId)
	if err != nil {
		return decimal.Zero, err
	}
	cost, ok := latestPurchaseUnitCost(samples, costAsOf(asOf, samples))
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no purchase history for ingredient_id=%d", models.ErrStaleCostData, ingredientId)
	}
	return cost, nil
}

type weightedAveragePolicy struct {
	windowDays int
}

func (weightedAveragePolicy) Name() models.CostingPolicyType {
	return models.CostingPolicyTypeWeightedAverage
}

func (p weightedAveragePolicy) UnitCost(tx *gorm.DB, businessId string, ingredientId int, asOf time.Time) (decimal.Decimal, error) {
	samples, err := models.PurchaseSamplesForIngredient(tx, businessId, ingredientId)
	if err != nil {
		return decimal.Zero, err
	}
	cost, ok := weightedAverageUnitCost(samples, costAsOf(asOf, samples), p.windowDays)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no purchase history for ingredient_id=%d", models.ErrStaleCostData, ingredientId)
	}
	return cost, nil
}

type fifoPolicy struct{}

func (fifoPolicy) Name() models.CostingPolicyType {
	return models.CostingPolicyTypeFifo
}

// Under FIFO the "current" unit cost is the cost of the oldest lot that still
// has remaining quantity; the next consumption will draw from it.
func (fifoPolicy) UnitCost(tx *gorm.DB, businessId string, ingredientId int, asOf time.Time) (decimal.Decimal, error) {
	lot, err := models.OldestActiveLot(tx, businessId, ingredientId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return decimal.Zero, fmt.Errorf("%w: no active lots for ingredient_id=%d", models.ErrStaleCostData, ingredientId)
		}
		return decimal.Zero, err
	}
	return lot.UnitCost, nil
}

// SelectCostingPolicy maps a configured policy name to its implementation.
// Unknown names fall back to weighted average, matching config defaulting.
func SelectCostingPolicy(name string, windowDays int) CostingPolicy {
	switch name {
	case config.CostingPolicyLatest:
		return latestPricePolicy{}
	case config.CostingPolicyFifo:
		return fifoPolicy{}
	default:
		return weightedAveragePolicy{windowDays: windowDays}
	}
}

// ActivePolicy builds the deployment-wide policy from env config.
func ActivePolicy() CostingPolicy {
	return SelectCostingPolicy(config.GetCostingPolicyName(), config.GetCostingWindowDays())
}

// costAsOf anchors a cost derivation triggered by a posting. A backdated
// posting must not hide samples newer than its own date, so the later of the
// posting date and the newest sample date wins.
func costAsOf(postingDate time.Time, samples []models.PurchaseSample) time.Time {
	asOf := postingDate
	for _, s := range samples {
		if s.StockDate.After(asOf) {
			asOf = s.StockDate
		}
	}
	return asOf
}

// latestPurchaseUnitCost picks the unit value of the most recent purchase at
// or before asOf. Samples arrive ordered by (stock_date, id), so the last
// qualifying sample wins ties on the same date.
func latestPurchaseUnitCost(samples []models.PurchaseSample, asOf time.Time) (decimal.Decimal, bool) {
	cost := decimal.Zero
	found := false
	for _, s := range samples {
		if s.StockDate.After(asOf) {
			continue
		}
		cost = s.UnitValue
		found = true
	}
	return cost, found
}

// weightedAverageUnitCost computes sum(qty*value)/sum(qty) over purchases in
// the trailing window (asOf - windowDays, asOf]. When the window holds no
// purchases it falls back to the most recent purchase price on record; only
// an ingredient with no purchase history at all yields no cost.
func weightedAverageUnitCost(samples []models.PurchaseSample, asOf time.Time, windowDays int) (decimal.Decimal, bool) {
	cutoff := asOf.AddDate(0, 0, -windowDays)
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, s := range samples {
		if s.StockDate.After(asOf) || s.StockDate.Before(cutoff) {
			continue
		}
		if !s.Qty.IsPositive() {
			continue
		}
		totalQty = totalQty.Add(s.Qty)
		totalValue = totalValue.Add(s.Qty.Mul(s.UnitValue))
	}
	if totalQty.IsPositive() {
		return totalValue.Div(totalQty), true
	}
	return latestPurchaseUnitCost(samples, asOf)
}

// RecomputeIngredientCost derives and persists the ingredient's unit cost
// under the active policy. When the policy has no data, the previous cost is
// retained and the ingredient is flagged for review instead of being zeroed.
func RecomputeIngredientCost(tx *gorm.DB, policy CostingPolicy, businessId string, ingredientId int, asOf time.Time) error {
	logger := config.GetLogger()

	cost, err := policy.UnitCost(tx, businessId, ingredientId, asOf)
	if err != nil {
		if errors.Is(err, models.ErrStaleCostData) {
			config.LogError(logger, "workflow", "RecomputeIngredientCost",
				fmt.Sprintf("No cost data under policy %s, flagging for review", policy.Name()), ingredientId, err)
			return models.FlagIngredientCostForReview(tx, businessId, ingredientId)
		}
		return err
	}
	return models.UpdateIngredientCost(tx, businessId, ingredientId, cost)
}
