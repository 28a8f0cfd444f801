package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"github.com/shopspring/decimal"
)

func TestComputeBatchTotals(t *testing.T) {
	lines := []models.BatchCostLine{
		{LineType: models.CostLineTypeIngredient, TotalCost: d("120.00")},
		{LineType: models.CostLineTypeLabor, TotalCost: d("30.00")},
		{LineType: models.CostLineTypeOverhead, TotalCost: d("10.00")},
	}

	total, perUnit, err := computeBatchTotals(lines, d("40"))
	if err != nil {
		t.Fatal(err)
	}
	if !total.Equal(d("160.00")) {
		t.Fatalf("total = %s, want 160.00", total)
	}
	if !perUnit.Equal(d("4.00")) {
		t.Fatalf("per unit = %s, want 4.00", perUnit)
	}
}

func TestComputeBatchTotalsZeroQuantityUndefined(t *testing.T) {
	lines := []models.BatchCostLine{{TotalCost: d("50.00")}}

	total, perUnit, err := computeBatchTotals(lines, decimal.Zero)
	if !errors.Is(err, models.ErrUndefined) {
		t.Fatalf("err = %v, want ErrUndefined", err)
	}
	// The total is still meaningful even when per-unit is not.
	if !total.Equal(d("50.00")) {
		t.Fatalf("total = %s, want 50.00", total)
	}
	if !perUnit.IsZero() {
		t.Fatalf("per unit = %s, want 0", perUnit)
	}
}

func TestBuildSaleAllocation(t *testing.T) {
	menu := &models.Menu{
		ID:                   7,
		BusinessId:           "biz-1",
		PackagingCostPerUnit: d("0.50"),
		LaborCostPerUnit:     d("1.25"),
		OverheadCostPerUnit:  d("0.25"),
	}
	saleDate := time.Date(2026, 4, 2, 19, 30, 0, 0, time.UTC)

	alloc := buildSaleAllocation(menu, d("4"), d("15.60"), 901, saleDate)
	if alloc.MenuId != 7 || alloc.ReferenceID != 901 {
		t.Fatalf("allocation references menu %d ref %d", alloc.MenuId, alloc.ReferenceID)
	}
	if alloc.ReferenceType != models.StockReferenceTypeSale {
		t.Fatalf("reference type = %s, want SA", alloc.ReferenceType)
	}
	if !alloc.PackagingCost.Equal(d("2.00")) || !alloc.LaborCost.Equal(d("5.00")) || !alloc.OverheadCost.Equal(d("1.00")) {
		t.Fatalf("component costs = %s/%s/%s, want 2.00/5.00/1.00",
			alloc.PackagingCost, alloc.LaborCost, alloc.OverheadCost)
	}
	if !alloc.TotalCogs.Equal(d("23.60")) {
		t.Fatalf("total cogs = %s, want 23.60", alloc.TotalCogs)
	}
	if !alloc.SaleDate.Equal(saleDate) {
		t.Fatalf("sale date = %s, want %s", alloc.SaleDate, saleDate)
	}
}
