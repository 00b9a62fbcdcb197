package prices

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const CurrencyUSD = "usd"

var (
	ErrUnknownAsset  = errors.New("asset has no price source")
	ErrPriceNotFound = errors.New("price not found")
)

// HistoricalPricer returns the USD price of symbol on the UTC day containing at.
type HistoricalPricer interface {
	PriceAt(ctx context.Context, symbol string, at time.Time) (float64, error)
}
