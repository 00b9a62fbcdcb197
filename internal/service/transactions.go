package service

import (
	"context"
	"log/slog"
	"time"

	tickerScheduler "awakenfetch/pkg/integrations/scheduler"
	"awakenfetch/pkg/integrations/txcache"
	"awakenfetch/pkg/observability"
	"awakenfetch/pkg/types/chains"
	"awakenfetch/pkg/types/ledger"
	"awakenfetch/pkg/types/scheduler"

	"github.com/pkg/errors"
)

var ErrInvalidTransactionConfig = errors.New("invalid transaction service config")

// ChainRegistry resolves adapters by chain id. *chains.Registry from
// pkg/integrations/chains satisfies it.
type ChainRegistry interface {
	Get(chainID string) (chains.Adapter, error)
	Perps(chainID string) (chains.PerpsAdapter, error)
	List() []chains.Info
}

// StreamSink receives progress while a history is fetched.
type StreamSink interface {
	Estimate(total int)
	Batch(txs []ledger.Transaction) error
}

type TransactionService struct {
	ctx           context.Context
	logger        *slog.Logger
	registry      ChainRegistry
	cache         *txcache.Cache
	metrics       *observability.Metrics
	valuer        Valuer
	pruneInterval time.Duration
	scheduler     scheduler.Scheduler
}

type TransactionOption func(*TransactionService)

func WithTransactionContext(ctx context.Context) TransactionOption {
	return func(s *TransactionService) {
		s.ctx = ctx
	}
}

func WithTransactionLogger(l *slog.Logger) TransactionOption {
	return func(s *TransactionService) {
		s.logger = l
	}
}

func WithTransactionRegistry(r ChainRegistry) TransactionOption {
	return func(s *TransactionService) {
		s.registry = r
	}
}

// WithTransactionCache enables result caching. Without it every call reaches the adapter.
func WithTransactionCache(c *txcache.Cache) TransactionOption {
	return func(s *TransactionService) {
		s.cache = c
	}
}

func WithTransactionMetrics(m *observability.Metrics) TransactionOption {
	return func(s *TransactionService) {
		s.metrics = m
	}
}

// WithTransactionValuer enables fiat valuation through Value.
func WithTransactionValuer(v Valuer) TransactionOption {
	return func(s *TransactionService) {
		s.valuer = v
	}
}

func WithPruneInterval(d time.Duration) TransactionOption {
	return func(s *TransactionService) {
		s.pruneInterval = d
	}
}

func (s *TransactionService) IsValid() error {
	switch {
	case s.ctx == nil:
		return errors.Wrap(ErrInvalidTransactionConfig, "ctx cannot be nil")
	case s.logger == nil:
		return errors.Wrap(ErrInvalidTransactionConfig, "logger cannot be nil")
	case s.registry == nil:
		return errors.Wrap(ErrInvalidTransactionConfig, "registry cannot be nil")
	case s.pruneInterval <= 0:
		return errors.Wrap(ErrInvalidTransactionConfig, "prune interval must be positive")
	default:
		return nil
	}
}

func NewTransactionService(opts ...TransactionOption) (*TransactionService, error) {
	s := &TransactionService{
		pruneInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.IsValid(); err != nil {
		return nil, err
	}
	s.logger = s.logger.With("component", "transactions")

	if s.cache != nil {
		sched, err := tickerScheduler.New(
			tickerScheduler.WithName("cache-prune"),
			tickerScheduler.WithContext(s.ctx),
			tickerScheduler.WithLogger(s.logger),
			tickerScheduler.WithInterval(s.pruneInterval),
			tickerScheduler.WithJob(s.prune),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create prune scheduler")
		}
		s.scheduler = sched
	}
	return s, nil
}

// Start begins periodic cache pruning. It is a no-op without a cache.
func (s *TransactionService) Start() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Start()
}

func (s *TransactionService) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *TransactionService) prune(ctx context.Context) error {
	before := s.cache.Len()
	if err := s.cache.Prune(ctx); err != nil {
		return errors.Wrap(err, "failed to prune transaction cache")
	}
	if removed := before - s.cache.Len(); removed > 0 {
		s.logger.Debug("pruned transaction cache", "removed", removed)
	}
	return nil
}

func (s *TransactionService) Chains() []chains.Info {
	return s.registry.List()
}

// Adapter resolves chainID and validates address against it. Nothing reaches
// the network for an unknown chain or a malformed address.
func (s *TransactionService) Adapter(chainID, address string) (chains.Adapter, error) {
	adapter, err := s.registry.Get(chainID)
	if err != nil {
		return nil, err
	}
	if !adapter.ValidateAddress(address) {
		return nil, chains.NewInvalidAddressError(chainID, address)
	}
	return adapter, nil
}

func (s *TransactionService) PerpsAdapter(chainID, address string) (chains.PerpsAdapter, error) {
	adapter, err := s.registry.Perps(chainID)
	if err != nil {
		return nil, err
	}
	if !adapter.ValidateAddress(address) {
		return nil, chains.NewInvalidAddressError(chainID, address)
	}
	return adapter, nil
}

// FetchResult is a complete history together with where it came from.
type FetchResult struct {
	Transactions []ledger.Transaction
	Cached       bool
}

func (s *TransactionService) Fetch(ctx context.Context, chainID, address string, opts ledger.FetchOptions) (FetchResult, error) {
	return s.fetch(ctx, chainID, address, opts, nil)
}

// Stream fetches like Fetch and relays estimates and batches to sink as they
// arrive. A cached history is delivered as a single batch. Sink write errors
// stop further delivery but not the fetch, which still populates the cache.
func (s *TransactionService) Stream(ctx context.Context, chainID, address string, opts ledger.FetchOptions, sink StreamSink) (FetchResult, error) {
	return s.fetch(ctx, chainID, address, opts, sink)
}

func (s *TransactionService) fetch(ctx context.Context, chainID, address string, opts ledger.FetchOptions, sink StreamSink) (FetchResult, error) {
	adapter, err := s.Adapter(chainID, address)
	if err != nil {
		return FetchResult{}, err
	}
	logger := s.logger.With("chain", chainID, "address", address)

	key := txcache.Key(chainID, address, opts.FromDate, opts.ToDate)
	cacheable := s.cache != nil && opts.Cursor == "" && opts.Limit == 0
	if cacheable {
		if txs, ok := s.cache.Get(ctx, key); ok {
			logger.Debug("serving cached history", "count", len(txs))
			if sink != nil {
				sink.Estimate(len(txs))
				if len(txs) > 0 {
					_ = sink.Batch(txs)
				}
			}
			return FetchResult{Transactions: txs, Cached: true}, nil
		}
	}

	relay := &relay{sink: sink}
	if sink != nil {
		opts.OnBatch = relay.batch
		opts.OnEstimate = sink.Estimate
	}

	started := time.Now()
	txs, err := adapter.FetchTransactions(ctx, address, opts)
	if err != nil {
		return FetchResult{}, errors.Wrapf(err, "fetch %s history", chainID)
	}
	if sink != nil && relay.sent == 0 && len(txs) > 0 {
		relay.batch(txs)
	}

	s.metrics.ObserveFetched(chainID, len(txs))
	logger.Info("fetched history", "count", len(txs), "elapsed", time.Since(started))

	if cacheable {
		if err := s.cache.Set(ctx, key, txs, 0); err != nil {
			logger.Warn("failed to cache history", "error", err)
		}
	}
	return FetchResult{Transactions: txs}, nil
}

func (s *TransactionService) FetchPerps(ctx context.Context, chainID, address string, opts ledger.FetchOptions) ([]ledger.PerpTransaction, error) {
	adapter, err := s.PerpsAdapter(chainID, address)
	if err != nil {
		return nil, err
	}
	txs, err := adapter.FetchPerpTransactions(ctx, address, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s perps history", chainID)
	}
	s.logger.Info("fetched perps history", "chain", chainID, "address", address, "count", len(txs))
	return txs, nil
}

type relay struct {
	sink   StreamSink
	sent   int
	failed bool
}

func (r *relay) batch(txs []ledger.Transaction) {
	if r.failed || len(txs) == 0 {
		return
	}
	if err := r.sink.Batch(txs); err != nil {
		r.failed = true
		return
	}
	r.sent += len(txs)
}
