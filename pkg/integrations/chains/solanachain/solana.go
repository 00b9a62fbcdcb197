// Package solanachain reads Solana wallet history from the Helius enhanced transactions API.
package solanachain

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"awakenfetch/pkg/csvexport"
	"awakenfetch/pkg/integrations/chains/flow"
	"awakenfetch/pkg/integrations/chains/paging"
	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/chains"
	"awakenfetch/pkg/types/ledger"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var _ chains.Adapter = (*Adapter)(nil)

const (
	ChainID         = "solana"
	DefaultBaseURL  = "https://api.helius.xyz"
	DefaultPageSize = 100
	explorerBase    = "https://solscan.io"
	defaultThrottle = 100 * time.Millisecond
	publicKeyLength = 32
)

var ErrInvalidSolanaConfig = errors.New("invalid solana adapter config")

type Adapter struct {
	baseURL  string
	apiKey   string
	pageSize int
	throttle time.Duration
	mints    map[string]string
	fetcher  *httpfetch.Fetcher
	logger   *slog.Logger
}

type Option func(*Adapter)

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

// WithMints adds mint address to symbol mappings on top of the built-in ones.
func WithMints(m map[string]string) Option {
	return func(a *Adapter) {
		for mint, symbol := range m {
			a.mints[mint] = symbol
		}
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
		return errors.Wrap(ErrInvalidSolanaConfig, "base url cannot be empty")
	case a.fetcher == nil:
		return errors.Wrap(ErrInvalidSolanaConfig, "fetcher cannot be nil")
	case a.logger == nil:
		return errors.Wrap(ErrInvalidSolanaConfig, "logger cannot be nil")
	case a.pageSize <= 0:
		return errors.Wrap(ErrInvalidSolanaConfig, "page size must be positive")
	default:
		return nil
	}
}

func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{
		baseURL:  DefaultBaseURL,
		pageSize: DefaultPageSize,
		throttle: defaultThrottle,
		mints:    make(map[string]string, len(knownMints)),
	}
	for mint, symbol := range knownMints {
		a.mints[mint] = symbol
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.IsValid(); err != nil {
		return nil, err
	}
	a.logger = a.logger.With("component", "solanachain")
	return a, nil
}

func (a *Adapter) Info() chains.Info {
	return chains.Info{ID: ChainID, Name: "Solana", Ticker: nativeSymbol, ExplorerBase: explorerBase}
}

// ValidateAddress accepts base58 strings that decode to a 32 byte public key.
func (a *Adapter) ValidateAddress(address string) bool {
	if len(address) < 32 || len(address) > 44 {
		return false
	}
	raw, err := base58.Decode(address)
	return err == nil && len(raw) == publicKeyLength
}

func (a *Adapter) ExplorerURL(txHash string) string {
	return explorerBase + "/tx/" + txHash
}

func (a *Adapter) ToAwakenCSV(txs []ledger.Transaction) string {
	return csvexport.RenderStandard(txs)
}

// FetchTransactions walks signatures newest first and stops once a page reaches
// past the start of the window.
func (a *Adapter) FetchTransactions(ctx context.Context, address string, opts ledger.FetchOptions) ([]ledger.Transaction, error) {
	if !a.ValidateAddress(address) {
		return nil, chains.NewInvalidAddressError(ChainID, address)
	}

	pageSize := a.pageSize
	if opts.Limit > 0 && opts.Limit < pageSize {
		pageSize = opts.Limit
	}

	query := paging.Query[enhancedTx]{
		Name:     "transactions",
		PageSize: pageSize,
		Cursor:   opts.Cursor,
		Fetch: func(ctx context.Context, before string) (paging.Page[enhancedTx], error) {
			return a.fetchPage(ctx, address, before, pageSize, opts.FromDate)
		},
	}

	var txs []ledger.Transaction
	_, err := paging.Collect(ctx, []paging.Query[enhancedTx]{query}, enhancedTx.key, func(fresh []enhancedTx) error {
		batch := make([]ledger.Transaction, 0, len(fresh))
		for _, r := range fresh {
			tx, ok := classify(r, address, a.mints)
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

func (a *Adapter) fetchPage(ctx context.Context, address, before string, limit int, from *time.Time) (paging.Page[enhancedTx], error) {
	q := url.Values{}
	if a.apiKey != "" {
		q.Set("api-key", a.apiKey)
	}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}

	var records []enhancedTx
	err := a.fetcher.FetchJSON(ctx, a.baseURL+"/v0/addresses/"+url.PathEscape(address)+"/transactions?"+q.Encode(), httpfetch.RequestOptions{
		ThrottleKey:      httpfetch.HostKey(a.baseURL),
		ThrottleInterval: a.throttle,
		ErrorLabel:       "helius transactions",
	}, &records)
	if err != nil {
		return paging.Page[enhancedTx]{}, err
	}

	page := paging.Page[enhancedTx]{Records: records}
	if len(records) == 0 {
		return page, nil
	}
	last := records[len(records)-1]
	page.Next = last.Signature
	if from != nil && last.at().Before(*from) {
		page.Done = true
	}
	return page, nil
}
