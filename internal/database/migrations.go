package database

import (
	"fmt"

	"gorm.io/gorm"

	"ggnhomes/server/internal/models"
)

func (d *Database) RunMigrations() error {
	d.logger.Info("Running database migrations...")
	return MigrateSchema(d.db)
}

// MigrateSchema creates the tables owned by the discovery service and the
// read-side indexes it relies on.
func MigrateSchema(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Property{},
		&models.Area{},
		&models.SearchHistoryEntry{},
		&models.EngagementAggregate{},
		&models.Rating{},
		&models.Save{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Case-insensitive sector lookups
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_sector_lower
		ON properties (LOWER(sector));
	`).Error
	if err != nil {
		return fmt.Errorf("failed to create sector index: %w", err)
	}

	// Saved-properties lookups by user
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_saves_user
		ON saves (user_id);
	`).Error
	if err != nil {
		return fmt.Errorf("failed to create saves index: %w", err)
	}

	return nil
}
