package models

import (
	"log"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Ingredient{},
		&StockHistory{},
		&Lot{}, &LotConsumption{},
		&Menu{}, &RecipeLine{},
		&ProductionBatch{}, &BatchCostLine{},
		&CogsAllocation{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
