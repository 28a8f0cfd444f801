package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleAt(daysAgo int, qty, unitValue string, asOf time.Time) models.PurchaseSample {
	return models.PurchaseSample{
		Qty:       d(qty),
		UnitValue: d(unitValue),
		StockDate: asOf.AddDate(0, 0, -daysAgo),
	}
}

func TestWeightedAverageUnitCost(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 100 @ 5.00 + 50 @ 6.00 = 800 / 150
	samples := []models.PurchaseSample{
		sampleAt(10, "100", "5.00", asOf),
		sampleAt(5, "50", "6.00", asOf),
	}
	got, ok := weightedAverageUnitCost(samples, asOf, 90)
	if !ok {
		t.Fatal("expected a derived cost")
	}
	if want := d("800").Div(d("150")); !got.Equal(want) {
		t.Fatalf("weighted average = %s, want %s", got, want)
	}
	if rounded := got.Round(4); !rounded.Equal(d("5.3333")) {
		t.Fatalf("rounded weighted average = %s, want 5.3333", rounded)
	}
}

func TestWeightedAverageUnitCostIgnoresOutOfWindowAndFuture(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	samples := []models.PurchaseSample{
		sampleAt(120, "1000", "1.00", asOf), // outside the 90-day window
		sampleAt(10, "100", "5.00", asOf),
		sampleAt(-3, "100", "9.00", asOf), // backdated run: future entry excluded
	}
	got, ok := weightedAverageUnitCost(samples, asOf, 90)
	if !ok {
		t.Fatal("expected a derived cost")
	}
	if !got.Equal(d("5.00")) {
		t.Fatalf("weighted average = %s, want 5.00", got)
	}
}

func TestWeightedAverageUnitCostFallsBackToLatestPrice(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Nothing inside the window: the most recent price on record is used
	// instead of flagging an ingredient that clearly has purchase history.
	samples := []models.PurchaseSample{
		sampleAt(200, "100", "4.00", asOf),
		sampleAt(120, "50", "4.50", asOf),
	}
	got, ok := weightedAverageUnitCost(samples, asOf, 90)
	if !ok {
		t.Fatal("expected a fallback cost")
	}
	if !got.Equal(d("4.50")) {
		t.Fatalf("fallback cost = %s, want 4.50", got)
	}
}

func TestWeightedAverageUnitCostNoHistory(t *testing.T) {
	asOf := time.Now().UTC()
	if _, ok := weightedAverageUnitCost(nil, asOf, 90); ok {
		t.Fatal("expected no cost for an ingredient without purchase history")
	}
}

func TestLatestPurchaseUnitCostTieBreaksOnInsertionOrder(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sameDay := asOf.AddDate(0, 0, -1)

	// Samples arrive ordered by (stock_date, id); two purchases on the same
	// date resolve to the later insertion.
	samples := []models.PurchaseSample{
		{Qty: d("10"), UnitValue: d("3.00"), StockDate: sameDay},
		{Qty: d("10"), UnitValue: d("3.25"), StockDate: sameDay},
	}
	got, ok := latestPurchaseUnitCost(samples, asOf)
	if !ok {
		t.Fatal("expected a derived cost")
	}
	if !got.Equal(d("3.25")) {
		t.Fatalf("latest price = %s, want 3.25", got)
	}
}

func TestCostAsOfBackdatedPosting(t *testing.T) {
	newest := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	backdate := newest.AddDate(0, 0, -9)
	samples := []models.PurchaseSample{
		{Qty: d("100"), UnitValue: d("5.00"), StockDate: backdate},
		{Qty: d("50"), UnitValue: d("6.00"), StockDate: newest},
	}

	// A backdated posting anchors at the newest sample, not its own date,
	// so the derivation still sees every purchase on record.
	asOf := costAsOf(backdate, samples)
	if !asOf.Equal(newest) {
		t.Fatalf("asOf = %s, want %s", asOf, newest)
	}
	got, ok := weightedAverageUnitCost(samples, asOf, 90)
	if !ok {
		t.Fatal("expected a derived cost")
	}
	if want := d("800").Div(d("150")); !got.Equal(want) {
		t.Fatalf("weighted average = %s, want %s", got, want)
	}
	latest, ok := latestPurchaseUnitCost(samples, asOf)
	if !ok {
		t.Fatal("expected a latest price")
	}
	if !latest.Equal(d("6.00")) {
		t.Fatalf("latest price = %s, want 6.00 (backdating must not regress it)", latest)
	}

	// A posting dated after every sample keeps its own date.
	future := newest.AddDate(0, 0, 3)
	if asOf := costAsOf(future, samples); !asOf.Equal(future) {
		t.Fatalf("asOf = %s, want %s", asOf, future)
	}
}

func TestComputeMenuCost(t *testing.T) {
	lines := []models.RecipeLine{
		{IngredientId: 1, QuantityPerServe: d("0.2")},
		{IngredientId: 2, QuantityPerServe: d("3")},
	}
	costs := map[int]ingredientCostInfo{
		1: {CostPerUnit: d("12.00")},
		2: {CostPerUnit: d("0.50")},
	}

	cost, profit, margin, stale := computeMenuCost(d("10.00"), lines, costs)
	if stale {
		t.Fatal("cost should not be stale")
	}
	if !cost.Equal(d("3.90")) {
		t.Fatalf("cost = %s, want 3.90", cost)
	}
	if !profit.Equal(d("6.10")) {
		t.Fatalf("profit = %s, want 6.10", profit)
	}
	if !margin.Equal(d("0.61")) {
		t.Fatalf("margin = %s, want 0.61", margin)
	}
}

func TestComputeMenuCostZeroPriceMargin(t *testing.T) {
	lines := []models.RecipeLine{{IngredientId: 1, QuantityPerServe: d("1")}}
	costs := map[int]ingredientCostInfo{1: {CostPerUnit: d("2.00")}}

	cost, profit, margin, _ := computeMenuCost(decimal.Zero, lines, costs)
	if !cost.Equal(d("2.00")) {
		t.Fatalf("cost = %s, want 2.00", cost)
	}
	if !profit.Equal(d("-2.00")) {
		t.Fatalf("profit = %s, want -2.00", profit)
	}
	if !margin.IsZero() {
		t.Fatalf("margin = %s, want 0 for a zero-price menu", margin)
	}
}

func TestComputeMenuCostStaleIngredients(t *testing.T) {
	lines := []models.RecipeLine{
		{IngredientId: 1, QuantityPerServe: d("1")},
		{IngredientId: 2, QuantityPerServe: d("1")},
	}

	// Flagged ingredient: retained cost contributes, result is stale.
	costs := map[int]ingredientCostInfo{
		1: {CostPerUnit: d("2.00")},
		2: {CostPerUnit: d("5.00"), Flagged: true},
	}
	cost, _, _, stale := computeMenuCost(d("20"), lines, costs)
	if !stale {
		t.Fatal("expected stale result when an ingredient is flagged for review")
	}
	if !cost.Equal(d("7.00")) {
		t.Fatalf("cost = %s, want 7.00 (retained cost still contributes)", cost)
	}

	// Missing ingredient: stale, no fabricated zero contribution either way.
	delete(costs, 2)
	cost, _, _, stale = computeMenuCost(d("20"), lines, costs)
	if !stale {
		t.Fatal("expected stale result when an ingredient cost is missing")
	}
	if !cost.Equal(d("2.00")) {
		t.Fatalf("cost = %s, want 2.00", cost)
	}
}

func TestComputeMenuCostIdempotent(t *testing.T) {
	lines := []models.RecipeLine{{IngredientId: 1, QuantityPerServe: d("0.3")}}
	costs := map[int]ingredientCostInfo{1: {CostPerUnit: d("7.77")}}

	c1, p1, m1, s1 := computeMenuCost(d("9.99"), lines, costs)
	c2, p2, m2, s2 := computeMenuCost(d("9.99"), lines, costs)
	if !c1.Equal(c2) || !p1.Equal(p2) || !m1.Equal(m2) || s1 != s2 {
		t.Fatalf("recomputation changed results: (%s %s %s %v) vs (%s %s %s %v)",
			c1, p1, m1, s1, c2, p2, m2, s2)
	}
}
