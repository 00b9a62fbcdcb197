// Package cosmoschain reads Cosmos SDK wallet history from an LCD (REST) endpoint.
package cosmoschain

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"awakenfetch/pkg/csvexport"
	"awakenfetch/pkg/integrations/chains/flow"
	"awakenfetch/pkg/integrations/chains/paging"
	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/chains"
	"awakenfetch/pkg/types/ledger"

	"github.com/pkg/errors"
)

var _ chains.Adapter = (*Adapter)(nil)

const (
	DefaultPageSize = 50
	defaultThrottle = 200 * time.Millisecond
)

var ErrInvalidCosmosConfig = errors.New("invalid cosmos adapter config")

type Denom struct {
	Symbol   string
	Exponent int32
}

type Network struct {
	ID           string
	Name         string
	Ticker       string
	Prefix       string
	LCD          string
	ExplorerBase string
	Denoms       map[string]Denom
}

var (
	CosmosHub = Network{
		ID:           "cosmoshub",
		Name:         "Cosmos Hub",
		Ticker:       "ATOM",
		Prefix:       "cosmos",
		LCD:          "https://cosmos-rest.publicnode.com",
		ExplorerBase: "https://www.mintscan.io/cosmos",
		Denoms:       map[string]Denom{"uatom": {Symbol: "ATOM", Exponent: 6}},
	}
	Osmosis = Network{
		ID:           "osmosis",
		Name:         "Osmosis",
		Ticker:       "OSMO",
		Prefix:       "osmo",
		LCD:          "https://osmosis-rest.publicnode.com",
		ExplorerBase: "https://www.mintscan.io/osmosis",
		Denoms: map[string]Denom{
			"uosmo": {Symbol: "OSMO", Exponent: 6},
			"uion":  {Symbol: "ION", Exponent: 6},
		},
	}
)

type Adapter struct {
	network  Network
	lcd      string
	pageSize int
	throttle time.Duration
	fetcher  *httpfetch.Fetcher
	logger   *slog.Logger
	address  *regexp.Regexp
}

type Option func(*Adapter)

func WithNetwork(n Network) Option {
	return func(a *Adapter) {
		a.network = n
	}
}

// WithLCD overrides the network's default REST endpoint.
func WithLCD(u string) Option {
	return func(a *Adapter) {
		a.lcd = u
	}
}

func WithPageSize(n int) Option {
	return func(a *Adapter) {
		a.pageSize = n
	}
}

func WithThrottle(d time.Duration) Option {
	return func(a *Adapter) {
		a.throttle = d
	}
}

func WithFetcher(f *httpfetch.Fetcher) Option {
	return func(a *Adapter) {
		a.fetcher = f
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

func (a *Adapter) IsValid() error {
	switch {
	case a.network.ID == "" || a.network.Prefix == "":
		return errors.Wrap(ErrInvalidCosmosConfig, "network cannot be empty")
	case a.lcd == "":
		return errors.Wrap(ErrInvalidCosmosConfig, "lcd endpoint cannot be empty")
	case a.fetcher == nil:
		return errors.Wrap(ErrInvalidCosmosConfig, "fetcher cannot be nil")
	case a.logger == nil:
		return errors.Wrap(ErrInvalidCosmosConfig, "logger cannot be nil")
	case a.pageSize <= 0:
		return errors.Wrap(ErrInvalidCosmosConfig, "page size must be positive")
	default:
		return nil
	}
}

func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{
		network:  CosmosHub,
		pageSize: DefaultPageSize,
		throttle: defaultThrottle,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.lcd == "" {
		a.lcd = a.network.LCD
	}
	if err := a.IsValid(); err != nil {
		return nil, err
	}
	a.address = regexp.MustCompile(`^` + regexp.QuoteMeta(a.network.Prefix) + `1[02-9ac-hj-np-z]{38,58}$`)
	a.logger = a.logger.With("component", "cosmoschain", "chain", a.network.ID)
	return a, nil
}

func (a *Adapter) Info() chains.Info {
	return chains.Info{
		ID:           a.network.ID,
		Name:         a.network.Name,
		Ticker:       a.network.Ticker,
		ExplorerBase: a.network.ExplorerBase,
	}
}

// ValidateAddress checks the bech32 shape: prefix, separator and data charset.
func (a *Adapter) ValidateAddress(address string) bool {
	return a.address.MatchString(address)
}

func (a *Adapter) ExplorerURL(txHash string) string {
	return a.network.ExplorerBase + "/tx/" + txHash
}

func (a *Adapter) ToAwakenCSV(txs []ledger.Transaction) string {
	return csvexport.RenderStandard(txs)
}

// FetchTransactions queries the address as message sender and as transfer recipient.
// A transaction reachable from both angles is classified once.
func (a *Adapter) FetchTransactions(ctx context.Context, address string, opts ledger.FetchOptions) ([]ledger.Transaction, error) {
	if !a.ValidateAddress(address) {
		return nil, chains.NewInvalidAddressError(a.network.ID, address)
	}

	pageSize := a.pageSize
	if opts.Limit > 0 {
		pageSize = opts.Limit
	}

	estimated := false
	queries := []paging.Query[txResponse]{
		a.query("sender", "message.sender='"+address+"'", pageSize, opts, &estimated),
		a.query("recipient", "transfer.recipient='"+address+"'", pageSize, opts, &estimated),
	}

	var txs []ledger.Transaction
	_, err := paging.Collect(ctx, queries, txResponse.key, func(fresh []txResponse) error {
		batch := make([]ledger.Transaction, 0, len(fresh))
		for _, r := range fresh {
			tx, ok := classify(r, address, a.network)
			if !ok || !opts.InWindow(tx.Date) {
				continue
			}
			batch = append(batch, tx)
		}
		txs = append(txs, batch...)
		opts.EmitBatch(batch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	txs = flow.Finalize(txs, opts)
	a.logger.Debug("fetched history", "address", address, "transactions", len(txs))
	return txs, nil
}

func (a *Adapter) query(name, events string, pageSize int, opts ledger.FetchOptions, estimated *bool) paging.Query[txResponse] {
	return paging.Query[txResponse]{
		Name:     name,
		PageSize: pageSize,
		Cursor:   opts.Cursor,
		Fetch: func(ctx context.Context, cursor string) (paging.Page[txResponse], error) {
			page := 1
			if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
				page = n
			}

			q := url.Values{}
			q.Set("query", events)
			q.Set("page", strconv.Itoa(page))
			q.Set("limit", strconv.Itoa(pageSize))
			q.Set("order_by", "ORDER_BY_ASC")

			var resp txSearchResponse
			err := a.fetcher.FetchJSON(ctx, a.lcd+"/cosmos/tx/v1beta1/txs?"+q.Encode(), httpfetch.RequestOptions{
				ThrottleKey:      httpfetch.HostKey(a.lcd),
				ThrottleInterval: a.throttle,
				ErrorLabel:       a.network.ID + " lcd",
			}, &resp)
			if err != nil {
				return paging.Page[txResponse]{}, err
			}

			if !*estimated {
				if total, err := strconv.Atoi(resp.Total); err == nil && total > 0 {
					*estimated = true
					opts.EmitEstimate(total)
				}
			}

			return paging.Page[txResponse]{Records: resp.TxResponses, Next: strconv.Itoa(page + 1)}, nil
		},
	}
}
