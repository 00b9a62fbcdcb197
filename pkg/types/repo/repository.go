package repo

import (
	"awakenfetch/internal/models"
	"awakenfetch/internal/repo"
)

var _ Repository = (*repo.Repository)(nil)

type Repository interface {
	Migrate() error

	// Export history
	CreateExportLog(log *models.ExportLog) error
	GetExportLogByID(id int64) (*models.ExportLog, error)
	FindExportLogByKey(key string) (*models.ExportLog, error)
	ListExportLogs(filter repo.ExportFilter) ([]models.ExportLog, error)
	DeleteExportLog(id int64) error
}
