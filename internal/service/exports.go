package service

import (
	"encoding/json"
	"log/slog"
	"time"

	"awakenfetch/internal/models"
	"awakenfetch/internal/repo"
	"awakenfetch/pkg/types/events"
	repotypes "awakenfetch/pkg/types/repo"

	"github.com/pkg/errors"
)

var ErrInvalidExportConfig = errors.New("invalid export service config")

// ExportService keeps the download history. With a publisher configured,
// Record hands events to the bus and the subscriber persists them through Handle.
type ExportService struct {
	logger    *slog.Logger
	repo      repotypes.Repository
	publisher events.Publisher
	now       func() time.Time
}

type ExportOption func(*ExportService)

func WithExportLogger(l *slog.Logger) ExportOption {
	return func(s *ExportService) {
		s.logger = l
	}
}

func WithExportRepo(r repotypes.Repository) ExportOption {
	return func(s *ExportService) {
		s.repo = r
	}
}

func WithExportPublisher(p events.Publisher) ExportOption {
	return func(s *ExportService) {
		s.publisher = p
	}
}

func WithExportClock(now func() time.Time) ExportOption {
	return func(s *ExportService) {
		s.now = now
	}
}

func (s *ExportService) IsValid() error {
	switch {
	case s.logger == nil:
		return errors.Wrap(ErrInvalidExportConfig, "logger cannot be nil")
	case s.repo == nil:
		return errors.Wrap(ErrInvalidExportConfig, "repo cannot be nil")
	case s.now == nil:
		return errors.Wrap(ErrInvalidExportConfig, "clock cannot be nil")
	default:
		return nil
	}
}

func NewExportService(opts ...ExportOption) (*ExportService, error) {
	s := &ExportService{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.IsValid(); err != nil {
		return nil, err
	}
	s.logger = s.logger.With("component", "exports")
	return s, nil
}

func (s *ExportService) Now() time.Time {
	return s.now()
}

// Record notes a completed download.
func (s *ExportService) Record(ev events.ExportCompleted) error {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if s.publisher == nil {
		return s.persist(ev)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to marshal export event")
	}
	return s.publisher.Publish(payload)
}

// Handle is the bus handler for export events.
func (s *ExportService) Handle(payload []byte) error {
	var ev events.ExportCompleted
	if err := json.Unmarshal(payload, &ev); err != nil {
		return errors.Wrap(err, "failed to decode export event")
	}
	return s.persist(ev)
}

func (s *ExportService) persist(ev events.ExportCompleted) error {
	log := &models.ExportLog{
		Key:       repo.ExportKey(ev.Kind, ev.ChainID, ev.Address, ev.FromDate, ev.ToDate),
		ChainID:   ev.ChainID,
		Address:   ev.Address,
		FromDate:  ev.FromDate,
		ToDate:    ev.ToDate,
		Kind:      ev.Kind,
		Rows:      ev.Rows,
		Filename:  ev.Filename,
		CreatedAt: ev.At,
	}
	if err := s.repo.CreateExportLog(log); err != nil {
		return errors.Wrap(err, "failed to store export log")
	}
	s.logger.Info("recorded export", "key", log.Key, "rows", log.Rows)
	return nil
}

// Check returns the latest export of the exact window, or nil when there is none.
func (s *ExportService) Check(kind, chainID, address string, from, to *time.Time) (*models.ExportLog, error) {
	return s.repo.FindExportLogByKey(repo.ExportKey(kind, chainID, address, from, to))
}

func (s *ExportService) List(filter repo.ExportFilter) ([]models.ExportLog, error) {
	return s.repo.ListExportLogs(filter)
}

func (s *ExportService) Get(id int64) (*models.ExportLog, error) {
	return s.repo.GetExportLogByID(id)
}

func (s *ExportService) Delete(id int64) error {
	return s.repo.DeleteExportLog(id)
}
