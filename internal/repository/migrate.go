package repository

import (
	"notestream/internal/domain"

	"gorm.io/gorm"
)

// Migrate creates or updates the pipeline tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.File{},
		&domain.Task{},
		&domain.NoteResult{},
	)
}
