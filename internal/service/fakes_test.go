package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"awakenfetch/pkg/csvexport"
	"awakenfetch/pkg/types/chains"
	"awakenfetch/pkg/types/ledger"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAdapter struct {
	info     chains.Info
	txs      []ledger.Transaction
	pages    [][]ledger.Transaction
	estimate int
	err      error

	mu    sync.Mutex
	calls int
	opts  []ledger.FetchOptions
}

func newFakeAdapter(id string, txs []ledger.Transaction) *fakeAdapter {
	return &fakeAdapter{info: chains.Info{ID: id, Name: strings.ToUpper(id), Ticker: "ETH"}, txs: txs}
}

func (f *fakeAdapter) Info() chains.Info { return f.info }

func (f *fakeAdapter) ValidateAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && len(address) == 42
}

func (f *fakeAdapter) FetchTransactions(_ context.Context, _ string, opts ledger.FetchOptions) ([]ledger.Transaction, error) {
	f.mu.Lock()
	f.calls++
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	opts.EmitEstimate(f.estimate)
	for _, p := range f.pages {
		opts.EmitBatch(p)
	}
	return f.txs, nil
}

func (f *fakeAdapter) ToAwakenCSV(txs []ledger.Transaction) string {
	return csvexport.RenderStandard(txs)
}

func (f *fakeAdapter) ExplorerURL(txHash string) string {
	return "https://explorer.test/tx/" + txHash
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePerpsAdapter struct {
	*fakeAdapter
	perps []ledger.PerpTransaction
}

func (f *fakePerpsAdapter) FetchPerpTransactions(_ context.Context, _ string, _ ledger.FetchOptions) ([]ledger.PerpTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perps, nil
}

func (f *fakePerpsAdapter) ToAwakenPerpsCSV(txs []ledger.PerpTransaction) string {
	return csvexport.RenderPerps(txs)
}

type sinkRecorder struct {
	estimates []int
	batches   [][]ledger.Transaction
	fail      error
}

func (s *sinkRecorder) Estimate(total int) {
	s.estimates = append(s.estimates, total)
}

func (s *sinkRecorder) Batch(txs []ledger.Transaction) error {
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, txs)
	return nil
}

func (s *sinkRecorder) sizes() []int {
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleTxs(n int) []ledger.Transaction {
	txs := make([]ledger.Transaction, n)
	for i := range txs {
		txs[i] = ledger.Transaction{
			Date:             time.Date(2025, 2, 1, 10, i, 0, 0, time.UTC),
			Type:             ledger.TypeReceive,
			ReceivedQuantity: ledger.Float(float64(i + 1)),
			ReceivedCurrency: "ETH",
			TxHash:           "0x" + strings.Repeat("b", i+1),
		}
	}
	return txs
}
