// lot-expiry-sweep marks passed-expiry lots as Expired and prints the expiry
// report. Meant to run as a daily job. Stock is never mutated here; disposal
// is posted as waste by the operator.
//
// Usage:
//
//	go run ./cmd/lot-expiry-sweep -business <business_id> [-out expired.xlsx]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"bitbucket.org/mmdatafocus/kitchen_backend/models/reports"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"bitbucket.org/mmdatafocus/kitchen_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	businessId := flag.String("business", "", "business id to sweep (required)")
	out := flag.String("out", "", "optional xlsx report path")
	flag.Parse()

	if *businessId == "" {
		log.Fatal("-business is required")
	}

	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessId)

	// Expiry is tracked at day granularity: sweep against local midnight so a
	// lot expiring today is not marked until tomorrow's run.
	timezone := os.Getenv("BUSINESS_TIMEZONE")
	if timezone == "" {
		timezone = "UTC"
	}
	asOf, err := utils.ConvertToDate(time.Now(), timezone)
	if err != nil {
		log.Fatal("invalid BUSINESS_TIMEZONE: " + err.Error())
	}

	marked, err := workflow.SweepExpiredLots(ctx, *businessId, asOf)
	if err != nil {
		logger.WithFields(logrus.Fields{"business_id": *businessId}).Fatal("sweep failed: " + err.Error())
	}

	rows, err := models.ExpiredLots(ctx, asOf)
	if err != nil {
		logger.WithFields(logrus.Fields{"business_id": *businessId}).Fatal("expired lot report failed: " + err.Error())
	}
	for _, row := range rows {
		logger.WithFields(logrus.Fields{
			"lot_id":                row.LotId,
			"ingredient":            row.IngredientName,
			"remaining_qty":         row.RemainingQty.String(),
			"estimated_waste_value": row.EstimatedWasteValue.String(),
			"expired":               row.ExpiryDate.Format("2006-01-02"),
		}).Warn("expired lot with remaining stock")
	}

	if *out != "" {
		f, err := reports.ExpiredLotsXlsx(rows, asOf)
		if err != nil {
			logger.Fatal("build report: " + err.Error())
		}
		if err := f.SaveAs(*out); err != nil {
			logger.Fatal("save report: " + err.Error())
		}
	}

	logger.WithFields(logrus.Fields{
		"business_id":    *businessId,
		"marked_expired": marked,
		"open_rows":      len(rows),
	}).Info("expiry sweep complete")
}
