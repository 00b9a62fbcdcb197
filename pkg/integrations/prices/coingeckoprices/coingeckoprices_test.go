package coingeckoprices

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/prices"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newFetcher(t *testing.T, baseURL string, opts ...Option) *PriceFetcher {
	t.Helper()
	f, err := httpfetch.New(httpfetch.WithLogger(discardLogger))
	require.NoError(t, err)
	opts = append([]Option{WithBaseURL(baseURL), WithFetcher(f), WithLogger(discardLogger), WithThrottle(0)}, opts...)
	p, err := NewPriceFetcher(opts...)
	require.NoError(t, err)
	return p
}

func TestPriceFetcher_PriceAt(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/coins/ethereum/history", r.URL.Path)
		assert.Equal(t, "15-01-2025", r.URL.Query().Get("date"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"market_data": map[string]any{"current_price": map[string]float64{"usd": 3301.25, "eur": 3200}},
		})
	}))
	defer server.Close()

	p := newFetcher(t, server.URL, WithAPIKey("demo-key"))

	at := time.Date(2025, 1, 15, 22, 30, 0, 0, time.UTC)
	v, err := p.PriceAt(context.Background(), "eth", at)
	require.NoError(t, err)
	assert.Equal(t, 3301.25, v)

	v, err = p.PriceAt(context.Background(), "ETH", at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3301.25, v)
	assert.Equal(t, int32(1), hits.Load(), "same coin and day is served from cache")
}

func TestPriceFetcher_UnknownSymbolMakesNoCall(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	p := newFetcher(t, server.URL)
	_, err := p.PriceAt(context.Background(), "ibc/ABC", time.Now())
	assert.True(t, errors.Is(err, prices.ErrUnknownAsset))
	assert.Equal(t, int32(0), hits.Load())
}

func TestPriceFetcher_MissingMarketData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"osmosis"}`))
	}))
	defer server.Close()

	p := newFetcher(t, server.URL)
	_, err := p.PriceAt(context.Background(), "OSMO", time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, prices.ErrPriceNotFound))
}

func TestPriceFetcher_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := newFetcher(t, server.URL)
	_, err := p.PriceAt(context.Background(), "BTC", time.Now())
	assert.True(t, errors.Is(err, httpfetch.ErrUpstream))
}

func TestNewPriceFetcher_InvalidConfig(t *testing.T) {
	_, err := NewPriceFetcher(WithLogger(discardLogger))
	assert.ErrorIs(t, err, ErrInvalidCoinGeckoConfig)
}

func TestCoinID(t *testing.T) {
	id, ok := CoinID("usdc")
	assert.True(t, ok)
	assert.Equal(t, "usd-coin", id)

	_, ok = CoinID("UNKNOWN")
	assert.False(t, ok)
}
