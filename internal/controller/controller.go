package controller

import (
	"log/slog"

	"awakenfetch/internal/service"
	"awakenfetch/pkg/observability"

	"github.com/pkg/errors"
)

var (
	ErrNilTransactionService = errors.New("transaction service cannot be nil")
	ErrNilExportService      = errors.New("export service cannot be nil")
	ErrNilLogger             = errors.New("logger cannot be nil")
)

type Controller struct {
	txs     *service.TransactionService
	exports *service.ExportService
	metrics *observability.Metrics
	logger  *slog.Logger
}

type Option func(*Controller)

func WithTransactionService(s *service.TransactionService) Option {
	return func(c *Controller) {
		c.txs = s
	}
}

func WithExportService(s *service.ExportService) Option {
	return func(c *Controller) {
		c.exports = s
	}
}

// WithMetrics is optional; a nil bundle records nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

func (c *Controller) IsValid() error {
	switch {
	case c.txs == nil:
		return ErrNilTransactionService
	case c.exports == nil:
		return ErrNilExportService
	case c.logger == nil:
		return ErrNilLogger
	default:
		return nil
	}
}

func New(opts ...Option) (*Controller, error) {
	c := &Controller{}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.IsValid(); err != nil {
		return nil, err
	}
	c.logger = c.logger.With("component", "controller")
	return c, nil
}
