package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"awakenfetch/internal/repo"
	"awakenfetch/internal/service"
	"awakenfetch/pkg/integrations/chains"
	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/observability"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEngine(t *testing.T, metrics *observability.Metrics) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fetcher, err := httpfetch.New(httpfetch.WithLogger(discardLogger), httpfetch.WithRecorder(metrics))
	require.NoError(t, err)
	registry, err := chains.NewDefaultRegistry(chains.Config{}, fetcher, discardLogger)
	require.NoError(t, err)

	txs, err := service.NewTransactionService(
		service.WithTransactionContext(context.Background()),
		service.WithTransactionLogger(discardLogger),
		service.WithTransactionRegistry(registry),
		service.WithTransactionMetrics(metrics),
	)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repository, err := repo.New(db)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate())
	exports, err := service.NewExportService(service.WithExportLogger(discardLogger), service.WithExportRepo(repository))
	require.NoError(t, err)

	engine := gin.New()
	h, err := New(
		WithEngine(engine),
		WithTransactionService(txs),
		WithExportService(exports),
		WithMetrics(metrics),
		WithLogger(discardLogger),
	)
	require.NoError(t, err)
	require.NoError(t, h.Setup())
	return engine
}

func TestNew_Validation(t *testing.T) {
	_, err := New(WithLogger(discardLogger))
	assert.ErrorIs(t, err, ErrNilEngine)

	_, err = New(WithEngine(gin.New()), WithLogger(discardLogger))
	assert.ErrorIs(t, err, ErrNilTransactionService)
}

func TestSetup_RegistersRoutes(t *testing.T) {
	engine := newEngine(t, observability.NewMetrics("test"))

	var paths []string
	for _, r := range engine.Routes() {
		paths = append(paths, r.Method+" "+r.Path)
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"GET /api/chains",
		"GET /api/transactions/:chain/:address",
		"GET /api/transactions/:chain/:address/stream",
		"GET /api/transactions/:chain/:address/csv",
		"GET /api/perps/:chain/:address",
		"GET /api/perps/:chain/:address/csv",
		"GET /api/exports",
		"GET /api/exports/check",
		"DELETE /api/exports/:id",
	} {
		assert.Contains(t, paths, want)
	}
}

func TestHealth(t *testing.T) {
	engine := newEngine(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string `json:"status"`
		Chains int    `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 7, body.Chains)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := observability.NewMetrics("test")
	metrics.ObserveCache(true)
	engine := newEngine(t, metrics)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_cache_hits_total"))
}
