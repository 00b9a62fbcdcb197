// Package hyperliquidchain reads Hyperliquid fills, funding and ledger updates
// from the public info endpoint.
package hyperliquidchain

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"awakenfetch/pkg/csvexport"
	"awakenfetch/pkg/integrations/chains/flow"
	"awakenfetch/pkg/integrations/chains/paging"
	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/chains"
	"awakenfetch/pkg/types/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var _ chains.PerpsAdapter = (*Adapter)(nil)

const (
	ChainID        = "hyperliquid"
	DefaultBaseURL = "https://api.hyperliquid.xyz"
	explorerBase   = "https://app.hyperliquid.xyz/explorer"

	fillsPageSize   = 2000
	fundingPageSize = 500
	ledgerPageSize  = 2000
	defaultThrottle = 200 * time.Millisecond
)

var ErrInvalidHyperliquidConfig = errors.New("invalid hyperliquid adapter config")

type Adapter struct {
	baseURL  string
	pageSize int
	throttle time.Duration
	fetcher  *httpfetch.Fetcher
	logger   *slog.Logger
}

type Option func(*Adapter)

func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		a.baseURL = u
	}
}

// WithPageSize replaces the per-request page sizes of every info query.
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
	case a.baseURL == "":
		return errors.Wrap(ErrInvalidHyperliquidConfig, "base url cannot be empty")
	case a.fetcher == nil:
		return errors.Wrap(ErrInvalidHyperliquidConfig, "fetcher cannot be nil")
	case a.logger == nil:
		return errors.Wrap(ErrInvalidHyperliquidConfig, "logger cannot be nil")
	default:
		return nil
	}
}

func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{
		baseURL:  DefaultBaseURL,
		throttle: defaultThrottle,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.IsValid(); err != nil {
		return nil, err
	}
	a.logger = a.logger.With("component", "hyperliquidchain")
	return a, nil
}

func (a *Adapter) Info() chains.Info {
	return chains.Info{ID: ChainID, Name: "Hyperliquid", Ticker: "HYPE", PerpsCapable: true, ExplorerBase: explorerBase}
}

func (a *Adapter) ValidateAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

func (a *Adapter) ExplorerURL(txHash string) string {
	return explorerBase + "/tx/" + txHash
}

func (a *Adapter) ToAwakenCSV(txs []ledger.Transaction) string {
	return csvexport.RenderStandard(txs)
}

func (a *Adapter) ToAwakenPerpsCSV(txs []ledger.PerpTransaction) string {
	return csvexport.RenderPerps(txs)
}

// FetchTransactions returns spot trades and account ledger movements. Perp
// activity is served by FetchPerpTransactions.
func (a *Adapter) FetchTransactions(ctx context.Context, address string, opts ledger.FetchOptions) ([]ledger.Transaction, error) {
	if !a.ValidateAddress(address) {
		return nil, chains.NewInvalidAddressError(ChainID, address)
	}
	user := strings.ToLower(address)

	var txs []ledger.Transaction
	emit := func(batch []ledger.Transaction) {
		kept := batch[:0]
		for _, tx := range batch {
			if opts.InWindow(tx.Date) {
				kept = append(kept, tx)
			}
		}
		txs = append(txs, kept...)
		opts.EmitBatch(kept)
	}

	fills := timeQuery(a, "userFillsByTime", user, fillsPageSize, opts, fill.at)
	_, err := paging.Collect(ctx, []paging.Query[fill]{fills}, fill.key, func(fresh []fill) error {
		batch := make([]ledger.Transaction, 0, len(fresh))
		for _, f := range fresh {
			if tx, ok := spotTrade(f); ok {
				batch = append(batch, tx)
			}
		}
		emit(batch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	updates := timeQuery(a, "userNonFundingLedgerUpdates", user, ledgerPageSize, opts, ledgerUpdate.at)
	_, err = paging.Collect(ctx, []paging.Query[ledgerUpdate]{updates}, ledgerUpdate.key, func(fresh []ledgerUpdate) error {
		batch := make([]ledger.Transaction, 0, len(fresh))
		for _, u := range fresh {
			if tx, ok := ledgerTransaction(u, user); ok {
				batch = append(batch, tx)
			}
		}
		emit(batch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	txs = flow.Finalize(txs, opts)
	a.logger.Debug("fetched history", "address", user, "transactions", len(txs))
	return txs, nil
}

// FetchPerpTransactions returns position opens, closes and funding payments.
func (a *Adapter) FetchPerpTransactions(ctx context.Context, address string, opts ledger.FetchOptions) ([]ledger.PerpTransaction, error) {
	if !a.ValidateAddress(address) {
		return nil, chains.NewInvalidAddressError(ChainID, address)
	}
	user := strings.ToLower(address)

	fills, err := paging.Collect(ctx, []paging.Query[fill]{
		timeQuery(a, "userFillsByTime", user, fillsPageSize, opts, fill.at),
	}, fill.key, nil)
	if err != nil {
		return nil, err
	}
	funding, err := paging.Collect(ctx, []paging.Query[fundingUpdate]{
		timeQuery(a, "userFunding", user, fundingPageSize, opts, fundingUpdate.at),
	}, fundingUpdate.key, nil)
	if err != nil {
		return nil, err
	}

	txs := make([]ledger.PerpTransaction, 0, len(fills)+len(funding))
	for _, f := range fills {
		if tx, ok := perpFill(f); ok {
			txs = append(txs, tx)
		}
	}
	for _, u := range funding {
		if tx, ok := fundingPayment(u); ok {
			txs = append(txs, tx)
		}
	}

	txs = flow.FinalizePerps(txs, opts)
	a.logger.Debug("fetched perps", "address", user, "fills", len(fills), "funding", len(funding), "transactions", len(txs))
	return txs, nil
}

type infoRequest struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	StartTime int64  `json:"startTime"`
	EndTime   *int64 `json:"endTime,omitempty"`
}

// timeQuery pages an info request by start time. The next cursor is the newest
// record of the page, so records sharing that millisecond are requested again
// and dropped by key.
func timeQuery[R any](a *Adapter, reqType, user string, pageSize int, opts ledger.FetchOptions, at func(R) int64) paging.Query[R] {
	var end *int64
	if opts.ToDate != nil {
		ms := opts.ToDate.UnixMilli()
		end = &ms
	}
	if a.pageSize > 0 {
		pageSize = a.pageSize
	}
	var start int64
	if opts.FromDate != nil {
		start = opts.FromDate.UnixMilli()
	}

	return paging.Query[R]{
		Name:        reqType,
		PageSize:    pageSize,
		Cursor:      opts.Cursor,
		Overlapping: true,
		Fetch: func(ctx context.Context, cursor string) (paging.Page[R], error) {
			from := start
			if n, err := strconv.ParseInt(cursor, 10, 64); err == nil && n > from {
				from = n
			}
			body, err := json.Marshal(infoRequest{Type: reqType, User: user, StartTime: from, EndTime: end})
			if err != nil {
				return paging.Page[R]{}, errors.Wrap(err, "encode info request")
			}

			var records []R
			err = a.fetcher.FetchJSON(ctx, a.baseURL+"/info", httpfetch.RequestOptions{
				Method:           http.MethodPost,
				Body:             body,
				ThrottleKey:      httpfetch.HostKey(a.baseURL),
				ThrottleInterval: a.throttle,
				ErrorLabel:       "hyperliquid " + reqType,
			}, &records)
			if err != nil {
				return paging.Page[R]{}, err
			}

			page := paging.Page[R]{Records: records}
			if len(records) > 0 {
				newest := at(records[0])
				for _, r := range records[1:] {
					newest = max(newest, at(r))
				}
				page.Next = strconv.FormatInt(newest, 10)
			}
			return page, nil
		},
	}
}
