package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFoldLedgerQtyReproducesProjection(t *testing.T) {
	entries := []*StockHistory{
		{Qty: dec("100")},  // purchase
		{Qty: dec("-30")},  // sale
		{Qty: dec("-5")},   // waste
		{Qty: dec("12.5")}, // count adjustment up
		nil,
		{Qty: dec("-12.5")}, // reversal of the adjustment
	}
	if got := FoldLedgerQty(entries); !got.Equal(dec("65")) {
		t.Fatalf("fold = %s, want 65", got)
	}
}

func TestFoldLedgerQtyEmpty(t *testing.T) {
	if got := FoldLedgerQty(nil); !got.IsZero() {
		t.Fatalf("fold of empty ledger = %s, want 0", got)
	}
}

func TestBeforeSaveForcesOutgoingToMatchSign(t *testing.T) {
	cases := []struct {
		qty          string
		wantOutgoing bool
	}{
		{"10", false},
		{"-10", true},
		{"0.0001", false},
		{"-0.0001", true},
	}
	for _, tc := range cases {
		wrong := !tc.wantOutgoing
		entry := &StockHistory{Qty: dec(tc.qty), IsOutgoing: &wrong}
		if err := entry.BeforeSave(nil); err != nil {
			t.Fatal(err)
		}
		if *entry.IsOutgoing != tc.wantOutgoing {
			t.Fatalf("qty %s: is_outgoing = %v, want %v", tc.qty, *entry.IsOutgoing, tc.wantOutgoing)
		}
	}
}

func TestBeforeSaveZeroQtyKeepsFlag(t *testing.T) {
	entry := &StockHistory{Qty: decimal.Zero}
	if err := entry.BeforeSave(nil); err != nil {
		t.Fatal(err)
	}
	if entry.IsOutgoing == nil || *entry.IsOutgoing {
		t.Fatal("zero qty must default is_outgoing to false")
	}
}
