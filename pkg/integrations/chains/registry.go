// Package chains wires the per-chain adapters into a lookup registry.
package chains

import (
	"log/slog"
	"sort"
	"sync"

	"awakenfetch/pkg/integrations/chains/cosmoschain"
	"awakenfetch/pkg/integrations/chains/evmchain"
	"awakenfetch/pkg/integrations/chains/hyperliquidchain"
	"awakenfetch/pkg/integrations/chains/solanachain"
	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/types/chains"

	"github.com/pkg/errors"
)

var ErrDuplicateChain = errors.New("chain already registered")

type Registry struct {
	mu       sync.RWMutex
	adapters map[string]chains.Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]chains.Adapter)}
}

func (r *Registry) Register(a chains.Adapter) error {
	id := a.Info().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; ok {
		return errors.Wrapf(ErrDuplicateChain, "chain %q", id)
	}
	r.adapters[id] = a
	return nil
}

func (r *Registry) Get(chainID string) (chains.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[chainID]
	if !ok {
		return nil, chains.UnsupportedChainError(chainID)
	}
	return a, nil
}

// Perps returns the adapter for chainID when it also serves perpetuals history.
func (r *Registry) Perps(chainID string) (chains.PerpsAdapter, error) {
	a, err := r.Get(chainID)
	if err != nil {
		return nil, err
	}
	p, ok := a.(chains.PerpsAdapter)
	if !ok {
		return nil, errors.Wrapf(chains.ErrUnsupportedChain, "chain %q has no perps history", chainID)
	}
	return p, nil
}

// List returns the registered chains sorted by id.
func (r *Registry) List() []chains.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]chains.Info, 0, len(r.adapters))
	for _, a := range r.adapters {
		infos = append(infos, a.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

type Config struct {
	EtherscanBaseURL   string
	EtherscanAPIKey    string
	HeliusBaseURL      string
	HeliusAPIKey       string
	HyperliquidBaseURL string
	CosmosHubLCD       string
	OsmosisLCD         string
}

// NewDefaultRegistry builds every supported adapter over one shared fetcher.
// Empty config values fall back to each adapter's public endpoint.
func NewDefaultRegistry(cfg Config, fetcher *httpfetch.Fetcher, logger *slog.Logger) (*Registry, error) {
	var adapters []chains.Adapter

	for _, n := range []evmchain.Network{evmchain.Ethereum, evmchain.Base, evmchain.Arbitrum} {
		opts := []evmchain.Option{
			evmchain.WithNetwork(n),
			evmchain.WithAPIKey(cfg.EtherscanAPIKey),
			evmchain.WithFetcher(fetcher),
			evmchain.WithLogger(logger),
		}
		if cfg.EtherscanBaseURL != "" {
			opts = append(opts, evmchain.WithBaseURL(cfg.EtherscanBaseURL))
		}
		a, err := evmchain.New(opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s adapter", n.ID)
		}
		adapters = append(adapters, a)
	}

	for _, n := range []struct {
		network cosmoschain.Network
		lcd     string
	}{{cosmoschain.CosmosHub, cfg.CosmosHubLCD}, {cosmoschain.Osmosis, cfg.OsmosisLCD}} {
		a, err := cosmoschain.New(
			cosmoschain.WithNetwork(n.network),
			cosmoschain.WithLCD(n.lcd),
			cosmoschain.WithFetcher(fetcher),
			cosmoschain.WithLogger(logger),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s adapter", n.network.ID)
		}
		adapters = append(adapters, a)
	}

	solOpts := []solanachain.Option{
		solanachain.WithAPIKey(cfg.HeliusAPIKey),
		solanachain.WithFetcher(fetcher),
		solanachain.WithLogger(logger),
	}
	if cfg.HeliusBaseURL != "" {
		solOpts = append(solOpts, solanachain.WithBaseURL(cfg.HeliusBaseURL))
	}
	sol, err := solanachain.New(solOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create solana adapter")
	}
	adapters = append(adapters, sol)

	hlOpts := []hyperliquidchain.Option{
		hyperliquidchain.WithFetcher(fetcher),
		hyperliquidchain.WithLogger(logger),
	}
	if cfg.HyperliquidBaseURL != "" {
		hlOpts = append(hlOpts, hyperliquidchain.WithBaseURL(cfg.HyperliquidBaseURL))
	}
	hl, err := hyperliquidchain.New(hlOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create hyperliquid adapter")
	}
	adapters = append(adapters, hl)

	r := NewRegistry()
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}
