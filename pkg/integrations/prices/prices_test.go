package prices

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/ledger"
	"awakenfetch/pkg/types/prices"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubPricer struct {
	usd   map[string]float64
	err   error
	calls int
}

func (s *stubPricer) PriceAt(_ context.Context, symbol string, _ time.Time) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	v, ok := s.usd[symbol]
	if !ok {
		return 0, prices.ErrUnknownAsset
	}
	return v, nil
}

func newValuer(t *testing.T, p prices.HistoricalPricer) *Valuer {
	t.Helper()
	v, err := NewValuer(WithPricer(p), WithLogger(discardLogger))
	require.NoError(t, err)
	return v
}

var day = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func TestValuer_FillsMissingAmounts(t *testing.T) {
	pricer := &stubPricer{usd: map[string]float64{"ETH": 3000, "USDC": 1}}
	v := newValuer(t, pricer)

	txs := []ledger.Transaction{
		{
			Date:             day,
			Type:             ledger.TypeTrade,
			SentQuantity:     ledger.Float(0.5),
			SentCurrency:     "ETH",
			ReceivedQuantity: ledger.Float(1499.333),
			ReceivedCurrency: "USDC",
		},
		{
			Date:             day,
			Type:             ledger.TypeReceive,
			ReceivedQuantity: ledger.Float(7),
			ReceivedCurrency: "ibc/ABC",
		},
		{
			Date:               day,
			Type:               ledger.TypeReceive,
			ReceivedQuantity:   ledger.Float(1),
			ReceivedCurrency:   "ETH",
			ReceivedFiatAmount: ledger.Float(10),
		},
	}

	valued, report := v.Value(context.Background(), txs)
	require.Len(t, valued, 3)

	assert.Equal(t, 1500.0, *valued[0].SentFiatAmount)
	assert.Equal(t, 1499.33, *valued[0].ReceivedFiatAmount)
	assert.Nil(t, valued[1].ReceivedFiatAmount)
	assert.Equal(t, 10.0, *valued[2].ReceivedFiatAmount, "existing amounts are kept")

	assert.Equal(t, 2, report.Priced)
	assert.Equal(t, 1, report.Missing)
	assert.False(t, report.Aborted)
	assert.Nil(t, txs[0].SentFiatAmount, "the input is not modified")
}

func TestValuer_AdditionalAssets(t *testing.T) {
	v := newValuer(t, &stubPricer{usd: map[string]float64{"DAI": 1, "USDC": 1}})

	txs := []ledger.Transaction{{
		Date:           day,
		Type:           ledger.TypeLPAdd,
		AdditionalSent: []ledger.AssetEntry{{Quantity: 250, Currency: "DAI"}, {Quantity: 250, Currency: "USDC"}},
	}}
	valued, _ := v.Value(context.Background(), txs)
	require.Len(t, valued[0].AdditionalSent, 2)
	assert.Equal(t, 250.0, *valued[0].AdditionalSent[0].FiatAmount)
	assert.Nil(t, txs[0].AdditionalSent[0].FiatAmount)
}

func TestValuer_StopsAfterTerminalError(t *testing.T) {
	pricer := &stubPricer{err: &httpfetch.RateLimitError{Label: "coingecko", Attempts: 10}}
	v := newValuer(t, pricer)

	txs := []ledger.Transaction{
		{Date: day, ReceivedQuantity: ledger.Float(1), ReceivedCurrency: "ETH"},
		{Date: day, ReceivedQuantity: ledger.Float(2), ReceivedCurrency: "ETH"},
	}
	valued, report := v.Value(context.Background(), txs)
	assert.True(t, report.Aborted)
	assert.Equal(t, 1, pricer.calls)
	assert.Nil(t, valued[1].ReceivedFiatAmount)
	assert.Len(t, valued, 2)
}

func TestValuer_TransientErrorContinues(t *testing.T) {
	pricer := &stubPricer{err: errors.New("connection reset")}
	v := newValuer(t, pricer)

	txs := []ledger.Transaction{
		{Date: day, ReceivedQuantity: ledger.Float(1), ReceivedCurrency: "ETH"},
		{Date: day, ReceivedQuantity: ledger.Float(2), ReceivedCurrency: "ETH"},
	}
	_, report := v.Value(context.Background(), txs)
	assert.False(t, report.Aborted)
	assert.Equal(t, 2, pricer.calls)
	assert.Equal(t, 2, report.Missing)
}

func TestNewValuer_InvalidConfig(t *testing.T) {
	_, err := NewValuer(WithLogger(discardLogger))
	assert.ErrorIs(t, err, ErrInvalidValuerConfig)
}
