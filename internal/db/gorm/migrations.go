package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: aggregation run history
		{
			ID: "001_aggregation_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&AggregationRun{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("aggregation_runs")
			},
		},
	})

	return m.Migrate()
}
