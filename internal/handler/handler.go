package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"awakenfetch/internal/controller"
	"awakenfetch/internal/service"
	"awakenfetch/pkg/observability"

	"github.com/gin-gonic/gin"
)

var (
	ErrNilEngine             = errors.New("engine is required")
	ErrNilTransactionService = errors.New("transaction service is required")
	ErrNilExportService      = errors.New("export service is required")
	ErrNilLogger             = errors.New("logger is required")
)

type Handler struct {
	engine  *gin.Engine
	txs     *service.TransactionService
	exports *service.ExportService
	metrics *observability.Metrics
	logger  *slog.Logger
}

func (h *Handler) IsValid() error {
	switch {
	case h.engine == nil:
		return ErrNilEngine
	case h.txs == nil:
		return ErrNilTransactionService
	case h.exports == nil:
		return ErrNilExportService
	case h.logger == nil:
		return ErrNilLogger
	default:
		return nil
	}
}

type Option func(*Handler)

func WithEngine(engine *gin.Engine) Option {
	return func(h *Handler) {
		h.engine = engine
	}
}

func WithTransactionService(s *service.TransactionService) Option {
	return func(h *Handler) {
		h.txs = s
	}
}

func WithExportService(s *service.ExportService) Option {
	return func(h *Handler) {
		h.exports = s
	}
}

// WithMetrics also exposes GET /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

func New(opts ...Option) (*Handler, error) {
	h := &Handler{}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.IsValid(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) Setup() error {
	ctrl, err := controller.New(
		controller.WithTransactionService(h.txs),
		controller.WithExportService(h.exports),
		controller.WithMetrics(h.metrics),
		controller.WithLogger(h.logger),
	)
	if err != nil {
		return err
	}

	h.engine.GET("/health", h.health)
	if h.metrics != nil {
		h.engine.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := h.engine.Group("/api")
	api.GET("/chains", ctrl.ListChains)

	transactions := api.Group("/transactions/:chain/:address")
	transactions.GET("", ctrl.ListTransactions)
	transactions.GET("/stream", ctrl.StreamTransactions)
	transactions.GET("/csv", ctrl.ExportTransactionsCSV)

	perps := api.Group("/perps/:chain/:address")
	perps.GET("", ctrl.ListPerps)
	perps.GET("/csv", ctrl.ExportPerpsCSV)

	exports := api.Group("/exports")
	exports.GET("", ctrl.ListExports)
	exports.GET("/check", ctrl.CheckExport)
	exports.DELETE("/:id", ctrl.DeleteExport)

	return nil
}

func (h *Handler) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"chains": len(h.txs.Chains()),
	})
}
