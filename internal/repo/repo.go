// Package repo persists the export history through gorm.
package repo

import (
	"awakenfetch/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var ErrNilDatabase = errors.New("database cannot be nil")

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	return &Repository{db: db}, nil
}

// Migrate creates or updates every table the service owns.
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&models.ExportLog{}); err != nil {
		return errors.Wrap(err, "migrate export logs")
	}
	return nil
}
