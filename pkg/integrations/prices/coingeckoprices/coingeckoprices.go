package coingeckoprices

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/integrations/memcache"
	"awakenfetch/pkg/types/prices"

	"github.com/pkg/errors"
)

const (
	DefaultBaseURL  = "https://api.coingecko.com/api/v3"
	defaultThrottle = 2 * time.Second
	priceTTL        = 24 * time.Hour
	maxCachedPrices = 2000
)

var (
	_ prices.HistoricalPricer = (*PriceFetcher)(nil)

	ErrInvalidCoinGeckoConfig = errors.New("invalid coingecko config")
)

// coinIDs maps ticker symbols produced by the chain adapters onto CoinGecko ids.
var coinIDs = map[string]string{
	"ARB":     "arbitrum",
	"ATOM":    "cosmos",
	"BONK":    "bonk",
	"BTC":     "bitcoin",
	"DAI":     "dai",
	"ETH":     "ethereum",
	"HYPE":    "hyperliquid",
	"JITOSOL": "jito-staked-sol",
	"JUP":     "jupiter-exchange-solana",
	"MSOL":    "msol",
	"OSMO":    "osmosis",
	"SOL":     "solana",
	"USDC":    "usd-coin",
	"USDT":    "tether",
	"WETH":    "weth",
	"WSOL":    "wrapped-solana",
}

type PriceFetcher struct {
	baseURL  string
	apiKey   string
	throttle time.Duration
	fetcher  *httpfetch.Fetcher
	logger   *slog.Logger
	cache    *memcache.Cache[string, float64]
}

type Option func(*PriceFetcher)

func WithBaseURL(u string) Option {
	return func(p *PriceFetcher) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAPIKey sends a demo API key, which raises the public rate limit.
func WithAPIKey(key string) Option {
	return func(p *PriceFetcher) {
		p.apiKey = key
	}
}

func WithThrottle(d time.Duration) Option {
	return func(p *PriceFetcher) {
		p.throttle = d
	}
}

func WithFetcher(f *httpfetch.Fetcher) Option {
	return func(p *PriceFetcher) {
		p.fetcher = f
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *PriceFetcher) {
		p.logger = l
	}
}

func (p *PriceFetcher) IsValid() error {
	switch {
	case p.baseURL == "":
		return errors.Wrap(ErrInvalidCoinGeckoConfig, "base url cannot be empty")
	case p.fetcher == nil:
		return errors.Wrap(ErrInvalidCoinGeckoConfig, "fetcher cannot be nil")
	case p.logger == nil:
		return errors.Wrap(ErrInvalidCoinGeckoConfig, "logger cannot be nil")
	case p.throttle < 0:
		return errors.Wrap(ErrInvalidCoinGeckoConfig, "throttle cannot be negative")
	default:
		return nil
	}
}

func NewPriceFetcher(opts ...Option) (*PriceFetcher, error) {
	p := &PriceFetcher{
		baseURL:  DefaultBaseURL,
		throttle: defaultThrottle,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.IsValid(); err != nil {
		return nil, err
	}
	p.logger = p.logger.With("component", "coingecko")
	p.cache = memcache.New[string, float64](
		memcache.WithTTL(priceTTL),
		memcache.WithMaxEntries(maxCachedPrices),
	)
	return p, nil
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

func CoinID(symbol string) (string, bool) {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	return id, ok
}

// PriceAt returns the daily USD price. Results are cached per coin and day.
func (p *PriceFetcher) PriceAt(ctx context.Context, symbol string, at time.Time) (float64, error) {
	id, ok := CoinID(symbol)
	if !ok {
		return 0, errors.Wrapf(prices.ErrUnknownAsset, "symbol %q", symbol)
	}
	day := at.UTC().Format("02-01-2006")
	key := id + ":" + day
	if v, ok := p.cache.Get(key); ok {
		return v, nil
	}

	q := url.Values{}
	q.Set("date", day)
	q.Set("localization", "false")
	endpoint := fmt.Sprintf("%s/coins/%s/history?%s", p.baseURL, url.PathEscape(id), q.Encode())

	opts := httpfetch.RequestOptions{
		ThrottleKey:      httpfetch.HostKey(p.baseURL),
		ThrottleInterval: p.throttle,
		ErrorLabel:       "coingecko",
	}
	if p.apiKey != "" {
		opts.Headers = map[string]string{"x-cg-demo-api-key": p.apiKey}
	}

	var resp historyResponse
	if err := p.fetcher.FetchJSON(ctx, endpoint, opts, &resp); err != nil {
		return 0, errors.Wrapf(err, "fetch %s price on %s", id, day)
	}
	if resp.MarketData == nil {
		return 0, errors.Wrapf(prices.ErrPriceNotFound, "%s on %s", id, day)
	}
	v, ok := resp.MarketData.CurrentPrice[prices.CurrencyUSD]
	if !ok {
		return 0, errors.Wrapf(prices.ErrPriceNotFound, "%s on %s", id, day)
	}

	p.cache.Set(key, v)
	p.logger.Debug("fetched historical price", "coin", id, "day", day, "usd", v)
	return v, nil
}
