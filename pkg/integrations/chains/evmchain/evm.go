// Package evmchain reads EVM wallet history from the Etherscan v2 multichain API.
package evmchain

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
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

var _ chains.Adapter = (*Adapter)(nil)

const (
	DefaultBaseURL  = "https://api.etherscan.io/v2/api"
	DefaultPageSize = 1000
	// Etherscan rejects page*offset beyond this window.
	resultWindow    = 10000
	defaultThrottle = 250 * time.Millisecond
	batchSize       = 100
)

var ErrInvalidEVMConfig = errors.New("invalid evm adapter config")

type Network struct {
	ID           string
	Name         string
	Ticker       string
	ChainID      int
	ExplorerBase string
}

var (
	Ethereum = Network{ID: "ethereum", Name: "Ethereum", Ticker: "ETH", ChainID: 1, ExplorerBase: "https://etherscan.io"}
	Base     = Network{ID: "base", Name: "Base", Ticker: "ETH", ChainID: 8453, ExplorerBase: "https://basescan.org"}
	Arbitrum = Network{ID: "arbitrum", Name: "Arbitrum One", Ticker: "ETH", ChainID: 42161, ExplorerBase: "https://arbiscan.io"}
)

type Adapter struct {
	network  Network
	baseURL  string
	apiKey   string
	pageSize int
	throttle time.Duration
	fetcher  *httpfetch.Fetcher
	logger   *slog.Logger
}

type Option func(*Adapter)

func WithNetwork(n Network) Option {
	return func(a *Adapter) {
		a.network = n
	}
}

func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		a.baseURL = u
	}
}

func WithAPIKey(k string) Option {
	return func(a *Adapter) {
		a.apiKey = k
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
	case a.network.ID == "":
		return errors.Wrap(ErrInvalidEVMConfig, "network cannot be empty")
	case a.baseURL == "":
		return errors.Wrap(ErrInvalidEVMConfig, "base url cannot be empty")
	case a.fetcher == nil:
		return errors.Wrap(ErrInvalidEVMConfig, "fetcher cannot be nil")
	case a.logger == nil:
		return errors.Wrap(ErrInvalidEVMConfig, "logger cannot be nil")
	case a.pageSize <= 0:
		return errors.Wrap(ErrInvalidEVMConfig, "page size must be positive")
	default:
		return nil
	}
}

func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{
		network:  Ethereum,
		baseURL:  DefaultBaseURL,
		pageSize: DefaultPageSize,
		throttle: defaultThrottle,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.IsValid(); err != nil {
		return nil, err
	}
	a.logger = a.logger.With("component", "evmchain", "chain", a.network.ID)
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

func (a *Adapter) ValidateAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

func (a *Adapter) ExplorerURL(txHash string) string {
	return a.network.ExplorerBase + "/tx/" + txHash
}

func (a *Adapter) ToAwakenCSV(txs []ledger.Transaction) string {
	return csvexport.RenderStandard(txs)
}

// FetchTransactions pulls normal, internal and token transfers, groups them by hash
// and classifies each group once every angle has been read.
func (a *Adapter) FetchTransactions(ctx context.Context, address string, opts ledger.FetchOptions) ([]ledger.Transaction, error) {
	if !a.ValidateAddress(address) {
		return nil, chains.NewInvalidAddressError(a.network.ID, address)
	}
	addr := strings.ToLower(address)

	pageSize := a.pageSize
	if opts.Limit > 0 {
		pageSize = opts.Limit
	}

	queries := make([]paging.Query[record], 0, 3)
	for _, action := range []string{actionNormal, actionInternal, actionToken} {
		queries = append(queries, a.query(addr, action, pageSize, opts.Cursor))
	}

	records, err := paging.Collect(ctx, queries, record.key, nil)
	if err != nil {
		return nil, err
	}

	groups := groupByHash(records)
	opts.EmitEstimate(len(groups))

	txs := make([]ledger.Transaction, 0, len(groups))
	for _, g := range groups {
		tx, ok := classify(g, addr, a.network.Ticker)
		if !ok {
			continue
		}
		txs = append(txs, tx)
	}
	txs = flow.Finalize(txs, opts)

	for start := 0; start < len(txs); start += batchSize {
		opts.EmitBatch(txs[start:min(start+batchSize, len(txs))])
	}
	a.logger.Debug("fetched history", "address", addr, "records", len(records), "transactions", len(txs))
	return txs, nil
}

func (a *Adapter) query(addr, action string, pageSize int, cursor string) paging.Query[record] {
	return paging.Query[record]{
		Name:     action,
		PageSize: pageSize,
		Cursor:   cursor,
		MaxPages: max(1, resultWindow/pageSize),
		Fetch: func(ctx context.Context, cursor string) (paging.Page[record], error) {
			page := 1
			if cursor != "" {
				if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
					page = n
				}
			}
			records, err := a.fetchPage(ctx, addr, action, page, pageSize)
			if err != nil {
				return paging.Page[record]{}, err
			}
			return paging.Page[record]{Records: records, Next: strconv.Itoa(page + 1)}, nil
		},
	}
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (a *Adapter) fetchPage(ctx context.Context, addr, action string, page, pageSize int) ([]record, error) {
	q := url.Values{}
	q.Set("chainid", strconv.Itoa(a.network.ChainID))
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", addr)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(pageSize))
	q.Set("sort", "asc")
	if a.apiKey != "" {
		q.Set("apikey", a.apiKey)
	}

	var resp apiResponse
	err := a.fetcher.FetchJSON(ctx, a.baseURL+"?"+q.Encode(), httpfetch.RequestOptions{
		ThrottleKey:      httpfetch.HostKey(a.baseURL),
		ThrottleInterval: a.throttle,
		ErrorLabel:       "etherscan " + action,
	}, &resp)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		// status 0 carries a string result: either "no transactions" or an error text
		var text string
		_ = json.Unmarshal(resp.Result, &text)
		if strings.Contains(strings.ToLower(resp.Message), "no transactions") || strings.Contains(strings.ToLower(text), "no transactions") {
			return nil, nil
		}
		if strings.Contains(strings.ToLower(text), "rate limit") {
			return nil, &httpfetch.RateLimitError{Label: "etherscan " + action, Attempts: 1}
		}
		return nil, errors.Wrapf(httpfetch.ErrUpstream, "etherscan %s: %s %s", action, resp.Message, text)
	}

	records := make([]record, 0, len(raw))
	for _, item := range raw {
		var r record
		if err := json.Unmarshal(item, &r); err != nil || r.Hash == "" {
			a.logger.Debug("skipping malformed record", "action", action, "error", err)
			continue
		}
		r.Kind = action
		records = append(records, r)
	}
	return records, nil
}
