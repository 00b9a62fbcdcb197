package models

import "time"

const (
	ExportKindStandard = "standard"
	ExportKindPerps    = "perps"
)

// ExportLog records one CSV download of a chain history window.
type ExportLog struct {
	ID        int64      `json:"id"         gorm:"primaryKey"`
	Key       string     `json:"key"        gorm:"column:export_key;index"`
	ChainID   string     `json:"chain_id"   gorm:"index"`
	Address   string     `json:"address"    gorm:"index"`
	FromDate  *time.Time `json:"from_date,omitempty"`
	ToDate    *time.Time `json:"to_date,omitempty"`
	Kind      string     `json:"kind"`
	Rows      int        `json:"rows"`
	Filename  string     `json:"filename"`
	CreatedAt time.Time  `json:"created_at"`
}

func (ExportLog) TableName() string {
	return "export_logs"
}
