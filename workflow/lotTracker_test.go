package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"github.com/shopspring/decimal"
)

func lot(id int, remaining, unitCost string, receivedDaysAgo int) *models.Lot {
	return &models.Lot{
		ID:           id,
		RemainingQty: d(remaining),
		UnitCost:     d(unitCost),
		ReceivedDate: time.Now().UTC().AddDate(0, 0, -receivedDaysAgo),
		Status:       models.LotStatusActive,
	}
}

func drawCost(draws []lotDraw) decimal.Decimal {
	total := decimal.Zero
	for _, draw := range draws {
		total = total.Add(draw.Qty.Mul(draw.Lot.UnitCost))
	}
	return total
}

func TestPlanFIFOConsumptionSplitsAcrossLots(t *testing.T) {
	// 10 @ 4.00 then 20 @ 5.00; consuming 15 draws 10 from the first lot
	// and 5 from the second: 10*4 + 5*5 = 65.
	lots := []*models.Lot{
		lot(1, "10", "4.00", 10),
		lot(2, "20", "5.00", 5),
	}

	draws, err := planFIFOConsumption(lots, d("15"))
	if err != nil {
		t.Fatal(err)
	}
	if len(draws) != 2 {
		t.Fatalf("draws = %d, want 2", len(draws))
	}
	if draws[0].Lot.ID != 1 || !draws[0].Qty.Equal(d("10")) {
		t.Fatalf("first draw = lot %d qty %s, want lot 1 qty 10", draws[0].Lot.ID, draws[0].Qty)
	}
	if draws[1].Lot.ID != 2 || !draws[1].Qty.Equal(d("5")) {
		t.Fatalf("second draw = lot %d qty %s, want lot 2 qty 5", draws[1].Lot.ID, draws[1].Qty)
	}
	if cost := drawCost(draws); !cost.Equal(d("65")) {
		t.Fatalf("consumption cost = %s, want 65", cost)
	}
}

func TestPlanFIFOConsumptionExactDrain(t *testing.T) {
	lots := []*models.Lot{lot(1, "10", "4.00", 3)}

	draws, err := planFIFOConsumption(lots, d("10"))
	if err != nil {
		t.Fatal(err)
	}
	if len(draws) != 1 || !draws[0].Qty.Equal(d("10")) {
		t.Fatalf("expected a single draw of 10, got %+v", draws)
	}
}

func TestPlanFIFOConsumptionInsufficientLots(t *testing.T) {
	lots := []*models.Lot{
		lot(1, "10", "4.00", 10),
		lot(2, "2", "5.00", 5),
	}

	draws, err := planFIFOConsumption(lots, d("15"))
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if draws != nil {
		t.Fatalf("planning must be all-or-nothing, got %d draws", len(draws))
	}
	// Inputs are untouched on failure.
	if !lots[0].RemainingQty.Equal(d("10")) || !lots[1].RemainingQty.Equal(d("2")) {
		t.Fatal("planning mutated lot state")
	}
}

func TestPlanFIFOConsumptionRejectsNonPositiveQty(t *testing.T) {
	lots := []*models.Lot{lot(1, "10", "4.00", 1)}

	for _, qty := range []decimal.Decimal{decimal.Zero, d("-3")} {
		if _, err := planFIFOConsumption(lots, qty); !errors.Is(err, models.ErrInvalidQuantity) {
			t.Fatalf("qty %s: err = %v, want ErrInvalidQuantity", qty, err)
		}
	}
}

func TestPlanFIFOConsumptionSkipsDrainedLots(t *testing.T) {
	lots := []*models.Lot{
		lot(1, "0", "4.00", 10),
		lot(2, "8", "5.00", 5),
	}

	draws, err := planFIFOConsumption(lots, d("8"))
	if err != nil {
		t.Fatal(err)
	}
	if len(draws) != 1 || draws[0].Lot.ID != 2 {
		t.Fatalf("expected a single draw from lot 2, got %+v", draws)
	}
}

func TestConsumptionCost(t *testing.T) {
	consumptions := []*models.LotConsumption{
		{Qty: d("10"), UnitCost: d("4.00")},
		{Qty: d("5"), UnitCost: d("5.00")},
		nil,
	}
	if cost := ConsumptionCost(consumptions); !cost.Equal(d("65")) {
		t.Fatalf("consumption cost = %s, want 65", cost)
	}
}
