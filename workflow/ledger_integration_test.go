package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"bitbucket.org/mmdatafocus/kitchen_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end posting scenario against real MySQL + Redis containers.
// Run with INTEGRATION_TESTS=1 (requires docker).
func TestLedgerPostingScenario(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "kitchen_test")
	t.Setenv("COSTING_POLICY", "weighted_average")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessID := "biz-integration-1"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	shrimp, err := models.CreateIngredient(ctx, &models.NewIngredient{
		Name:     "Shrimp",
		Unit:     "kg",
		MinStock: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("CreateIngredient: %v", err)
	}

	// Two purchases: 100kg @ 5.00 and 50kg @ 6.00.
	if _, err := workflow.RecordPurchase(ctx, &workflow.PurchaseInput{
		IngredientId: shrimp.ID,
		Qty:          decimal.NewFromInt(100),
		UnitPrice:    decimal.RequireFromString("5.00"),
		Vendor:       "Ocean Supply",
		PurchaseDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordPurchase #1: %v", err)
	}
	if _, err := workflow.RecordPurchase(ctx, &workflow.PurchaseInput{
		IngredientId: shrimp.ID,
		Qty:          decimal.NewFromInt(50),
		UnitPrice:    decimal.RequireFromString("6.00"),
		Vendor:       "Ocean Supply",
		PurchaseDate: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordPurchase #2: %v", err)
	}

	shrimp, err = models.GetIngredient(ctx, shrimp.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if !shrimp.CurrentStock.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("current stock = %s, want 150", shrimp.CurrentStock)
	}
	// Weighted average: (100*5 + 50*6) / 150 = 5.3333
	if got := shrimp.CostPerUnit.Round(4); !got.Equal(decimal.RequireFromString("5.3333")) {
		t.Fatalf("cost per unit = %s, want 5.3333", got)
	}

	menu, err := models.CreateMenu(ctx, &models.NewMenu{
		Name:                 "Shrimp Pasta",
		Price:                decimal.NewFromInt(12),
		PackagingCostPerUnit: decimal.RequireFromString("0.30"),
		RecipeLines: []models.NewRecipeLine{
			{IngredientId: shrimp.ID, QuantityPerServe: decimal.RequireFromString("0.2"), Unit: "kg"},
		},
	})
	if err != nil {
		t.Fatalf("CreateMenu: %v", err)
	}

	db := config.GetDB()
	if _, err := workflow.RecomputeMenuCost(db.WithContext(ctx), businessID, menu.ID); err != nil {
		t.Fatalf("RecomputeMenuCost: %v", err)
	}
	menuCost, err := workflow.MenuCost(ctx, menu.ID)
	if err != nil {
		t.Fatalf("MenuCost: %v", err)
	}
	if got := menuCost.CostPrice.Round(4); !got.Equal(decimal.RequireFromString("1.0667")) {
		t.Fatalf("menu cost = %s, want 1.0667", got)
	}
	if menuCost.CostStale {
		t.Fatal("menu cost should not be stale")
	}

	// Sell 10 servings: 2kg shrimp out, COGS allocation written.
	saleResult, err := workflow.RecordSale(ctx, &workflow.SaleInput{
		MenuId:      menu.ID,
		Qty:         decimal.NewFromInt(10),
		SaleDate:    time.Date(2026, 2, 15, 19, 0, 0, 0, time.UTC),
		ReferenceID: 501,
	})
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if len(saleResult.Entries) != 1 {
		t.Fatalf("sale entries = %d, want 1", len(saleResult.Entries))
	}
	// 2kg at the stored 5.3333 unit cost.
	if got := saleResult.Allocation.IngredientCost; !got.Equal(decimal.RequireFromString("10.6666")) {
		t.Fatalf("sale ingredient cost = %s, want 10.6666", got)
	}
	if !saleResult.Allocation.PackagingCost.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("sale packaging cost = %s, want 3", saleResult.Allocation.PackagingCost)
	}

	// Waste 3kg, then reconcile a physical count of 140 (shrinkage of 5kg).
	wasteEntry, err := workflow.RecordWaste(ctx, &workflow.WasteInput{
		IngredientId: shrimp.ID,
		Qty:          decimal.NewFromInt(3),
		Reason:       "freezer failure",
	})
	if err != nil {
		t.Fatalf("RecordWaste: %v", err)
	}
	adjEntry, err := workflow.RecordAdjustment(ctx, &workflow.AdjustmentInput{
		IngredientId: shrimp.ID,
		NewQty:       decimal.NewFromInt(140),
		Reason:       "monthly count",
	})
	if err != nil {
		t.Fatalf("RecordAdjustment: %v", err)
	}
	if !adjEntry.Qty.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("adjustment delta = %s, want -5", adjEntry.Qty)
	}

	// Oversell: 1000 servings need 200kg, only 140 on hand. Whole sale rejected.
	if _, err := workflow.RecordSale(ctx, &workflow.SaleInput{
		MenuId: menu.ID,
		Qty:    decimal.NewFromInt(1000),
	}); !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("oversell err = %v, want ErrInsufficientStock", err)
	}

	// Rejection left nothing behind: projection and ledger fold both at 140.
	shrimp, err = models.GetIngredient(ctx, shrimp.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if !shrimp.CurrentStock.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("current stock after rejection = %s, want 140", shrimp.CurrentStock)
	}
	entries, err := models.LedgerEntriesForIngredient(db.WithContext(ctx), businessID, shrimp.ID)
	if err != nil {
		t.Fatalf("LedgerEntriesForIngredient: %v", err)
	}
	if folded := models.FoldLedgerQty(entries); !folded.Equal(shrimp.CurrentStock) {
		t.Fatalf("ledger fold %s != projection %s", folded, shrimp.CurrentStock)
	}
	// purchase, purchase, sale, waste, adjustment
	if len(entries) != 5 {
		t.Fatalf("ledger entries = %d, want 5", len(entries))
	}

	// Rebuild finds no drift and is idempotent.
	results, err := workflow.RebuildAllIngredientStock(ctx, businessID)
	if err != nil {
		t.Fatalf("RebuildAllIngredientStock: %v", err)
	}
	for _, r := range results {
		if r.Drifted {
			t.Fatalf("unexpected drift on ingredient_id=%d: %s -> %s", r.IngredientId, r.Before, r.After)
		}
	}

	// Period COGS covers the posted sale.
	summary, err := models.CogsForPeriod(ctx,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CogsForPeriod: %v", err)
	}
	if !summary.QtySold.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("qty sold = %s, want 10", summary.QtySold)
	}
	if got := summary.TotalCogs; !got.Equal(decimal.RequireFromString("13.6666")) {
		t.Fatalf("total cogs = %s, want 13.6666", got)
	}

	// The menu cost cache is warm from the read above. A committed purchase
	// must be visible on the next read, not the cached pre-posting cost.
	backfill := &workflow.PurchaseInput{
		IngredientId:   shrimp.ID,
		Qty:            decimal.NewFromInt(10),
		UnitPrice:      decimal.RequireFromString("8.00"),
		Vendor:         "Ocean Supply",
		PurchaseDate:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		IdempotencyKey: "po-backfill-1",
	}
	if _, err := workflow.RecordPurchase(ctx, backfill); err != nil {
		t.Fatalf("RecordPurchase #3: %v", err)
	}
	shrimp, err = models.GetIngredient(ctx, shrimp.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if !shrimp.CurrentStock.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("current stock = %s, want 150", shrimp.CurrentStock)
	}
	// The 90-day window ending 2026-06-01 holds only the June purchase.
	if !shrimp.CostPerUnit.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("cost per unit = %s, want 8", shrimp.CostPerUnit)
	}
	menuCost, err = workflow.MenuCost(ctx, menu.ID)
	if err != nil {
		t.Fatalf("MenuCost: %v", err)
	}
	if !menuCost.CostPrice.Equal(decimal.RequireFromString("1.6")) {
		t.Fatalf("menu cost = %s, want 1.6 after the committed purchase", menuCost.CostPrice)
	}

	// Retrying a committed posting with the same key is rejected untouched.
	if _, err := workflow.RecordPurchase(ctx, backfill); !errors.Is(err, models.ErrDuplicatePosting) {
		t.Fatalf("duplicate posting err = %v, want ErrDuplicatePosting", err)
	}
	shrimp, err = models.GetIngredient(ctx, shrimp.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if !shrimp.CurrentStock.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("current stock after duplicate = %s, want 150", shrimp.CurrentStock)
	}

	// A backdated purchase must not regress the derived cost to its own date.
	if _, err := workflow.RecordPurchase(ctx, &workflow.PurchaseInput{
		IngredientId: shrimp.ID,
		Qty:          decimal.NewFromInt(40),
		UnitPrice:    decimal.RequireFromString("5.00"),
		Vendor:       "Ocean Supply",
		PurchaseDate: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordPurchase backdated: %v", err)
	}
	shrimp, err = models.GetIngredient(ctx, shrimp.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if !shrimp.CurrentStock.Equal(decimal.NewFromInt(190)) {
		t.Fatalf("current stock = %s, want 190", shrimp.CurrentStock)
	}
	if !shrimp.CostPerUnit.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("cost per unit after backdated purchase = %s, want 8", shrimp.CostPerUnit)
	}

	// Correct the waste with a compensating entry; the original is never edited.
	reversal, err := workflow.ReverseLedgerEntry(ctx, &workflow.ReversalInput{
		StockHistoryId: wasteEntry.ID,
		Reason:         "posted against the wrong ingredient",
	})
	if err != nil {
		t.Fatalf("ReverseLedgerEntry: %v", err)
	}
	if !reversal.IsReversal || reversal.ReversesStockHistoryId == nil || *reversal.ReversesStockHistoryId != wasteEntry.ID {
		t.Fatalf("reversal does not link the original: %+v", reversal)
	}
	if !reversal.Qty.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("reversal qty = %s, want 3", reversal.Qty)
	}
	shrimp, err = models.GetIngredient(ctx, shrimp.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if !shrimp.CurrentStock.Equal(decimal.NewFromInt(193)) {
		t.Fatalf("current stock after reversal = %s, want 193", shrimp.CurrentStock)
	}
	entries, err = models.LedgerEntriesForIngredient(db.WithContext(ctx), businessID, shrimp.ID)
	if err != nil {
		t.Fatalf("LedgerEntriesForIngredient: %v", err)
	}
	if folded := models.FoldLedgerQty(entries); !folded.Equal(shrimp.CurrentStock) {
		t.Fatalf("ledger fold %s != projection %s after reversal", folded, shrimp.CurrentStock)
	}
	if len(entries) != 8 {
		t.Fatalf("ledger entries = %d, want 8", len(entries))
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("kitchen-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("kitchen-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=kitchen_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
