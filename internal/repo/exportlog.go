package repo

import (
	"strings"
	"time"

	"awakenfetch/internal/models"
)

// ExportFilter narrows ListExportLogs. Empty fields match everything.
type ExportFilter struct {
	ChainID string
	Address string
	Limit   int
}

// ExportKey identifies a download by kind, chain, address and date window.
// Open bounds render as "*".
func ExportKey(kind, chainID, address string, from, to *time.Time) string {
	return strings.Join([]string{
		kind,
		strings.ToLower(chainID),
		strings.ToLower(address),
		keyDate(from),
		keyDate(to),
	}, ":")
}

func keyDate(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.UTC().Format("20060102")
}

func (r *Repository) CreateExportLog(log *models.ExportLog) error {
	return r.db.Create(log).Error
}

func (r *Repository) GetExportLogByID(id int64) (*models.ExportLog, error) {
	var log models.ExportLog
	if err := r.db.First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// FindExportLogByKey returns the most recent export for key, or nil when the
// window has never been downloaded.
func (r *Repository) FindExportLogByKey(key string) (*models.ExportLog, error) {
	var logs []models.ExportLog
	if err := r.db.Where("export_key = ?", key).Order("created_at DESC, id DESC").Limit(1).Find(&logs).Error; err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

func (r *Repository) ListExportLogs(filter ExportFilter) ([]models.ExportLog, error) {
	query := r.db.Model(&models.ExportLog{})
	if filter.ChainID != "" {
		query = query.Where("chain_id = ?", strings.ToLower(filter.ChainID))
	}
	if filter.Address != "" {
		query = query.Where("LOWER(address) = ?", strings.ToLower(filter.Address))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var logs []models.ExportLog
	if err := query.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *Repository) DeleteExportLog(id int64) error {
	return r.db.Delete(&models.ExportLog{}, id).Error
}
