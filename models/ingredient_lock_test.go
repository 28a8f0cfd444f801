package models

import (
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"
)

// The availability check in outgoing postings reads current_stock through
// GetIngredientForUpdate; without a locking clause two concurrent sales can
// both pass the check and drive stock negative. Assert the generated SELECT
// actually carries FOR UPDATE.
func TestGetIngredientForUpdateTakesRowLock(t *testing.T) {
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}

	var captured string
	err = db.Callback().Query().After("gorm:query").Register("capture_sql", func(tx *gorm.DB) {
		captured = tx.Statement.SQL.String()
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := GetIngredientForUpdate(db, "b1", 7); err != nil {
		t.Fatalf("dry-run query: %v", err)
	}
	if !strings.Contains(captured, "FOR UPDATE") {
		t.Fatalf("generated SQL has no locking clause: %q", captured)
	}
}
