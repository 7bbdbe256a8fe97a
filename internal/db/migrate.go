package db

import (
	"fmt"

	"github.com/zulandar/gepeto/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every gorm model owned by gepeto.
func AllModels() []interface{} {
	return []interface{}{
		&models.ConversationTurn{},
		&models.Recipe{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
