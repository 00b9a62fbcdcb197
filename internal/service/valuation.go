package service

import (
	"context"
	"strings"

	pricing "awakenfetch/pkg/integrations/prices"
	"awakenfetch/pkg/types/ledger"
	"awakenfetch/pkg/types/prices"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedCurrency  = errors.New("unsupported fiat currency")
	ErrValuationUnavailable = errors.New("fiat valuation is not configured")
)

// Valuer fills missing fiat amounts. *prices.Valuer from pkg/integrations/prices satisfies it.
type Valuer interface {
	Value(ctx context.Context, txs []ledger.Transaction) ([]ledger.Transaction, pricing.Report)
}

// CheckCurrency reports whether Value can serve currency.
func (s *TransactionService) CheckCurrency(currency string) error {
	if !strings.EqualFold(currency, prices.CurrencyUSD) {
		return errors.Wrapf(ErrUnsupportedCurrency, "%q", currency)
	}
	if s.valuer == nil {
		return ErrValuationUnavailable
	}
	return nil
}

// Value returns txs with empty fiat amounts filled in currency. Legs the price
// source cannot answer stay empty.
func (s *TransactionService) Value(ctx context.Context, currency string, txs []ledger.Transaction) ([]ledger.Transaction, error) {
	if err := s.CheckCurrency(currency); err != nil {
		return nil, err
	}
	valued, report := s.valuer.Value(ctx, txs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("valued transactions",
		"currency", strings.ToLower(currency),
		"transactions", len(txs),
		"priced", report.Priced,
		"missing", report.Missing,
		"aborted", report.Aborted,
	)
	return valued, nil
}
