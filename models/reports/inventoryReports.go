package reports

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"github.com/xuri/excelize/v2"
)

const dateLayout = "2006-01-02"

func writeHeaderRow(f *excelize.File, sheet string, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

// ExpiredLotsXlsx renders the expiry sweep report as a spreadsheet for the
// operations team. Waste values are estimates; disposal still needs a waste
// entry per ingredient.
func ExpiredLotsXlsx(rows []*models.ExpiredLotRow, asOf time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Expired Lots"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Lot", "Ingredient", "Unit", "Remaining Qty", "Unit Cost", "Est. Waste Value", "Received", "Expired", "Status"}
	if err := writeHeaderRow(f, sheet, headers); err != nil {
		return nil, err
	}

	for i, row := range rows {
		r := i + 2
		values := []interface{}{
			row.LotId,
			row.IngredientName,
			row.Unit,
			row.RemainingQty.InexactFloat64(),
			row.UnitCost.InexactFloat64(),
			row.EstimatedWasteValue.InexactFloat64(),
			row.ReceivedDate.Format(dateLayout),
			row.ExpiryDate.Format(dateLayout),
			string(row.Status),
		}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(sheet, "B", "B", 28); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "D", "H", 16); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", len(rows)+3),
		fmt.Sprintf("As of %s", asOf.Format(dateLayout))); err != nil {
		return nil, err
	}
	return f, nil
}

// CogsSummaryXlsx renders the COGS decomposition of a period.
func CogsSummaryXlsx(summary *models.CogsSummary, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "COGS"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	if err := writeHeaderRow(f, sheet, []string{"Component", "Amount"}); err != nil {
		return nil, err
	}

	lines := []struct {
		label string
		value float64
	}{
		{"Ingredient Cost", summary.IngredientCost.InexactFloat64()},
		{"Packaging Cost", summary.PackagingCost.InexactFloat64()},
		{"Labor Cost", summary.LaborCost.InexactFloat64()},
		{"Overhead Cost", summary.OverheadCost.InexactFloat64()},
		{"Total COGS", summary.TotalCogs.InexactFloat64()},
		{"Qty Sold", summary.QtySold.InexactFloat64()},
	}
	for i, line := range lines {
		r := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", r), line.label); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", r), line.value); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 22); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", len(lines)+3),
		fmt.Sprintf("Period %s to %s", from.Format(dateLayout), to.Format(dateLayout))); err != nil {
		return nil, err
	}
	return f, nil
}
