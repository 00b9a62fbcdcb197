// Package prices fills the optional fiat columns of a ledger from a historical
// price source.
package prices

import (
	"context"
	"log/slog"

	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/ledger"
	"awakenfetch/pkg/types/prices"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrInvalidValuerConfig = errors.New("invalid valuer config")

type Valuer struct {
	pricer prices.HistoricalPricer
	logger *slog.Logger
}

type Option func(*Valuer)

func WithPricer(p prices.HistoricalPricer) Option {
	return func(v *Valuer) {
		v.pricer = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Valuer) {
		v.logger = l
	}
}

func (v *Valuer) IsValid() error {
	switch {
	case v.pricer == nil:
		return errors.Wrap(ErrInvalidValuerConfig, "pricer cannot be nil")
	case v.logger == nil:
		return errors.Wrap(ErrInvalidValuerConfig, "logger cannot be nil")
	default:
		return nil
	}
}

func NewValuer(opts ...Option) (*Valuer, error) {
	v := &Valuer{}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.IsValid(); err != nil {
		return nil, err
	}
	v.logger = v.logger.With("component", "valuer")
	return v, nil
}

// Report summarises one valuation pass.
type Report struct {
	Priced  int
	Missing int
	// Aborted is set once the price source rate limited us; later legs were left empty.
	Aborted bool
}

// Value returns a copy of txs with empty fiat amounts filled in USD. Amounts
// already present are kept. Unpriceable legs stay empty.
func (v *Valuer) Value(ctx context.Context, txs []ledger.Transaction) ([]ledger.Transaction, Report) {
	out := make([]ledger.Transaction, len(txs))
	var report Report

	price := func(tx ledger.Transaction, qty float64, currency string) *float64 {
		if report.Aborted || currency == "" {
			return nil
		}
		usd, err := v.pricer.PriceAt(ctx, currency, tx.Date)
		switch {
		case err == nil:
		case errors.Is(err, prices.ErrUnknownAsset), errors.Is(err, prices.ErrPriceNotFound):
			report.Missing++
			return nil
		default:
			if ctx.Err() != nil || errors.Is(err, httpfetch.ErrRateLimitExceeded) {
				report.Aborted = true
			}
			report.Missing++
			v.logger.Warn("price lookup failed", "currency", currency, "date", tx.Date, "error", err)
			return nil
		}
		report.Priced++
		f, _ := decimal.NewFromFloat(qty).Abs().Mul(decimal.NewFromFloat(usd)).Round(2).Float64()
		return &f
	}

	for i, tx := range txs {
		if tx.ReceivedQuantity != nil && tx.ReceivedFiatAmount == nil {
			tx.ReceivedFiatAmount = price(tx, *tx.ReceivedQuantity, tx.ReceivedCurrency)
		}
		if tx.SentQuantity != nil && tx.SentFiatAmount == nil {
			tx.SentFiatAmount = price(tx, *tx.SentQuantity, tx.SentCurrency)
		}
		tx.AdditionalReceived = valueEntries(tx, tx.AdditionalReceived, price)
		tx.AdditionalSent = valueEntries(tx, tx.AdditionalSent, price)
		out[i] = tx
	}
	return out, report
}

func valueEntries(tx ledger.Transaction, entries []ledger.AssetEntry, price func(ledger.Transaction, float64, string) *float64) []ledger.AssetEntry {
	if len(entries) == 0 {
		return entries
	}
	valued := make([]ledger.AssetEntry, len(entries))
	for i, e := range entries {
		if e.FiatAmount == nil {
			e.FiatAmount = price(tx, e.Quantity, e.Currency)
		}
		valued[i] = e
	}
	return valued
}
