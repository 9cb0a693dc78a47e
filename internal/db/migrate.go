package db

import (
	"fmt"

	"github.com/zulandar/taskline/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model managed by Taskline.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Task{},
		&models.Reminder{},
		&models.ConversationTurn{},
		&models.SchedulerLease{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
