package controller

import (
	"time"

	"awakenfetch/internal/service"
	"awakenfetch/pkg/types/ledger"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const dateOnly = "2006-01-02"

// parseDate accepts RFC3339 or YYYY-MM-DD. A date-only upper bound covers the
// whole day.
func parseDate(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnly, value)
	if err != nil {
		return nil, errors.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseWindow(ctx *gin.Context) (from, to *time.Time, err error) {
	if from, err = parseDate(ctx.Query("fromDate"), false); err != nil {
		return nil, nil, errors.Wrap(err, "fromDate")
	}
	if to, err = parseDate(ctx.Query("toDate"), true); err != nil {
		return nil, nil, errors.Wrap(err, "toDate")
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, errors.New("fromDate is after toDate")
	}
	return from, to, nil
}

func fetchOptions(ctx *gin.Context) (ledger.FetchOptions, bool) {
	from, to, err := parseWindow(ctx)
	if err != nil {
		badRequestWithDetails(ctx, "invalid date range", err.Error())
		return ledger.FetchOptions{}, false
	}
	return ledger.FetchOptions{FromDate: from, ToDate: to}, true
}

// fiatCurrency reads the optional fiat query. An empty result means no valuation.
func (c *Controller) fiatCurrency(ctx *gin.Context) (string, bool) {
	currency := ctx.Query("fiat")
	if currency == "" {
		return "", true
	}
	switch err := c.txs.CheckCurrency(currency); {
	case err == nil:
		return currency, true
	case errors.Is(err, service.ErrValuationUnavailable):
		badRequestWithDetails(ctx, "fiat valuation unavailable", err.Error())
	default:
		badRequestWithDetails(ctx, "unsupported fiat currency", err.Error())
	}
	return "", false
}

// valued fills fiat amounts when currency is set. A failure is logged and the
// unvalued history is returned.
func (c *Controller) valued(ctx *gin.Context, currency string, txs []ledger.Transaction) []ledger.Transaction {
	if currency == "" || len(txs) == 0 {
		return txs
	}
	out, err := c.txs.Value(ctx.Request.Context(), currency, txs)
	if err != nil {
		c.logger.Warn("fiat valuation failed", "currency", currency, "error", err)
		return txs
	}
	return out
}
