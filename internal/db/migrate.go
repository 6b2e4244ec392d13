package db

import (
	"fmt"

	"github.com/zulandar/bruno/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.Timer{},
		&models.Note{},
		&models.NoteEntry{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// DropAll drops every Bruno table, children first.
func DropAll(db *gorm.DB) error {
	all := AllModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("db: drop %T: %w", all[i], err)
		}
	}
	return nil
}
