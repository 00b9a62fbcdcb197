package hyperliquidchain

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/chains"
	"awakenfetch/pkg/types/ledger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	wallet  = "0xAbCdEf0000000000000000000000000000001234"
	other   = "0x9999999999999999999999999999999999999999"
	baseMS  = int64(1736950000000)
	perPage = 2
)

type infoServer struct {
	mu       sync.Mutex
	fixtures map[string][]map[string]any
	requests []infoRequest
}

func (s *infoServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/info", r.URL.Path)

		var req infoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, strings.ToLower(wallet), req.User)

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		out := []map[string]any{}
		for _, rec := range s.fixtures[req.Type] {
			ts := rec["time"].(int64)
			if ts < req.StartTime || (req.EndTime != nil && ts > *req.EndTime) {
				continue
			}
			out = append(out, rec)
			if len(out) == perPage {
				break
			}
		}
		json.NewEncoder(w).Encode(out)
	}
}

func (s *infoServer) count(reqType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Type == reqType {
			n++
		}
	}
	return n
}

func at(offset int64) int64 { return baseMS + offset }

func fixtures() map[string][]map[string]any {
	return map[string][]map[string]any{
		"userFillsByTime": {
			{"coin": "ETH", "px": "3000", "sz": "1", "side": "B", "time": at(1000), "dir": "Open Long", "closedPnl": "0", "hash": "0xh1", "fee": "1.5", "tid": 1},
			{"coin": "ETH", "px": "3100", "sz": "1", "side": "A", "time": at(2000), "dir": "Close Long", "closedPnl": "100", "hash": "0xh2", "fee": "1.55", "tid": 2},
			{"coin": "BTC", "px": "90000", "sz": "0.5", "side": "A", "time": at(3000), "dir": "Long > Short", "closedPnl": "-20", "hash": "0xh3", "fee": "0", "tid": 3},
			{"coin": "@107", "px": "2", "sz": "10", "side": "B", "time": at(4000), "dir": "Buy", "closedPnl": "0", "hash": "0xh4", "fee": "0.01", "feeToken": "@107", "tid": 4},
		},
		"userFunding": {
			{"time": at(1500), "hash": zeroHash, "delta": map[string]any{"type": "funding", "coin": "ETH", "usdc": "-0.5", "szi": "-1.0", "fundingRate": "0.0001"}},
		},
		"userNonFundingLedgerUpdates": {
			{"time": at(100), "hash": "0xd1", "delta": map[string]any{"type": "deposit", "usdc": "1000"}},
			{"time": at(6000), "hash": "0xw1", "delta": map[string]any{"type": "withdraw", "usdc": "100", "fee": "1"}},
			{"time": at(7000), "hash": "0xc1", "delta": map[string]any{"type": "accountClassTransfer", "usdc": "25", "toPerp": true}},
			{"time": at(8000), "hash": "0xi1", "delta": map[string]any{"type": "internalTransfer", "usdc": "50", "user": strings.ToLower(wallet), "destination": other, "fee": "0"}},
			{"time": at(9000), "hash": "0xv1", "delta": map[string]any{"type": "spotGenesis", "token": "X", "amount": "1"}},
		},
	}
}

func newFixture(t *testing.T) (*Adapter, *infoServer) {
	t.Helper()
	srv := &infoServer{fixtures: fixtures()}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	f, err := httpfetch.New(
		httpfetch.WithLogger(discardLogger),
		httpfetch.WithDefaults(httpfetch.RequestOptions{BaseDelay: time.Millisecond}),
	)
	require.NoError(t, err)
	a, err := New(
		WithFetcher(f),
		WithLogger(discardLogger),
		WithBaseURL(server.URL),
		WithPageSize(perPage),
		WithThrottle(0),
	)
	require.NoError(t, err)
	return a, srv
}

func TestFetchPerpTransactions(t *testing.T) {
	a, srv := newFixture(t)

	txs, err := a.FetchPerpTransactions(context.Background(), wallet, ledger.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, srv.count("userFillsByTime"), "pages overlap at the newest millisecond until a short page")

	require.Len(t, txs, 4)

	open := txs[0]
	assert.Equal(t, ledger.TagOpenPosition, open.Tag)
	assert.Equal(t, "ETH", open.Asset)
	assert.Equal(t, 1.0, open.Amount)
	assert.Equal(t, 0.0, open.Pnl)
	assert.Empty(t, open.PaymentToken)
	require.NotNil(t, open.Fee)
	assert.Equal(t, 1.5, *open.Fee)

	funding := txs[1]
	assert.Equal(t, ledger.TagFundingPayment, funding.Tag)
	assert.Equal(t, 1.0, funding.Amount)
	assert.Equal(t, -0.5, funding.Pnl)
	assert.Equal(t, "USDC", funding.PaymentToken)
	assert.Empty(t, funding.TxHash, "zero hash is dropped")

	closed := txs[2]
	assert.Equal(t, ledger.TagClosePosition, closed.Tag)
	assert.Equal(t, 100.0, closed.Pnl)
	assert.Equal(t, "USDC", closed.PaymentToken)

	flip := txs[3]
	assert.Equal(t, ledger.TagClosePosition, flip.Tag)
	assert.Equal(t, "BTC", flip.Asset)
	assert.Equal(t, -20.0, flip.Pnl)
	assert.Nil(t, flip.Fee)

	csv := a.ToAwakenPerpsCSV(txs)
	assert.Contains(t, csv, "funding_payment")
	assert.Contains(t, csv, ",-20,")
}

func TestFetchTransactions(t *testing.T) {
	a, _ := newFixture(t)

	var batches int
	txs, err := a.FetchTransactions(context.Background(), wallet, ledger.FetchOptions{
		OnBatch: func([]ledger.Transaction) { batches++ },
	})
	require.NoError(t, err)
	assert.Positive(t, batches)
	require.Len(t, txs, 5)

	deposit := txs[0]
	assert.Equal(t, ledger.TypeReceive, deposit.Type)
	assert.Equal(t, 1000.0, *deposit.ReceivedQuantity)
	assert.Equal(t, "USDC", deposit.ReceivedCurrency)

	spot := txs[1]
	assert.Equal(t, ledger.TypeTrade, spot.Type)
	assert.Equal(t, "@107", spot.ReceivedCurrency)
	assert.Equal(t, 10.0, *spot.ReceivedQuantity)
	assert.Equal(t, 20.0, *spot.SentQuantity)
	assert.Equal(t, "USDC", spot.SentCurrency)
	assert.Equal(t, 0.01, *spot.FeeAmount)

	withdraw := txs[2]
	assert.Equal(t, ledger.TypeSend, withdraw.Type)
	assert.Equal(t, 100.0, *withdraw.SentQuantity)
	assert.Equal(t, 1.0, *withdraw.FeeAmount)

	class := txs[3]
	assert.Equal(t, "self_transfer", class.Tag)
	assert.Equal(t, "spot to perp", class.Notes)

	internal := txs[4]
	assert.Equal(t, ledger.TypeSend, internal.Type)
	assert.Equal(t, 50.0, *internal.SentQuantity)
	assert.Nil(t, internal.FeeAmount)
}

func TestFetchPerpTransactions_FillsSplitAcrossPages(t *testing.T) {
	a, srv := newFixture(t)
	srv.fixtures["userFillsByTime"] = []map[string]any{
		{"coin": "ETH", "px": "3000", "sz": "1", "side": "B", "time": at(900), "dir": "Open Long", "closedPnl": "0", "hash": "0xp0", "fee": "0", "tid": 10},
		{"coin": "ETH", "px": "3001", "sz": "1", "side": "B", "time": at(1000), "dir": "Open Long", "closedPnl": "0", "hash": "0xp1", "fee": "0", "tid": 11},
		{"coin": "ETH", "px": "3002", "sz": "1", "side": "B", "time": at(1000), "dir": "Open Long", "closedPnl": "0", "hash": "0xp1", "fee": "0", "tid": 12},
	}
	srv.fixtures["userFunding"] = nil

	txs, err := a.FetchPerpTransactions(context.Background(), wallet, ledger.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, txs, 3, "fills sharing the boundary millisecond survive the page break")
	assert.Equal(t, "0xp0", txs[0].TxHash)

	var starts []int64
	for _, r := range srv.requests {
		if r.Type == "userFillsByTime" {
			starts = append(starts, r.StartTime)
		}
	}
	assert.Equal(t, []int64{0, at(1000), at(1000)}, starts)
}

func TestFetch_DateWindowIsSentUpstream(t *testing.T) {
	a, srv := newFixture(t)

	from := time.UnixMilli(at(1500))
	to := time.UnixMilli(at(2500))
	txs, err := a.FetchPerpTransactions(context.Background(), wallet, ledger.FetchOptions{FromDate: &from, ToDate: &to})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TagFundingPayment, txs[0].Tag)
	assert.Equal(t, ledger.TagClosePosition, txs[1].Tag)

	require.NotEmpty(t, srv.requests)
	first := srv.requests[0]
	assert.Equal(t, at(1500), first.StartTime)
	require.NotNil(t, first.EndTime)
	assert.Equal(t, at(2500), *first.EndTime)
}

func TestInvalidAddressMakesNoCalls(t *testing.T) {
	a, srv := newFixture(t)

	_, err := a.FetchPerpTransactions(context.Background(), "0x123", ledger.FetchOptions{})
	assert.True(t, errors.Is(err, chains.ErrInvalidAddress))
	_, err = a.FetchTransactions(context.Background(), "not-an-address", ledger.FetchOptions{})
	assert.True(t, errors.Is(err, chains.ErrInvalidAddress))
	assert.Empty(t, srv.requests)
}

func TestInfo(t *testing.T) {
	a, _ := newFixture(t)
	assert.True(t, a.Info().PerpsCapable)
	assert.Equal(t, "https://app.hyperliquid.xyz/explorer/tx/0xabc", a.ExplorerURL("0xabc"))
}
