package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates the tables of the given models.
func Migrate(ctx context.Context, db *gorm.DB, models ...any) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	if len(models) == 0 {
		return nil
	}
	return db.WithContext(ctx).AutoMigrate(models...)
}
