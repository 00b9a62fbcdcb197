// Package client consumes the transaction stream of an awakenfetch server and
// exposes its progress as a small state machine.
package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/integrations/stream"
	"awakenfetch/pkg/integrations/txcache"
	"awakenfetch/pkg/types/ledger"
	streamtypes "awakenfetch/pkg/types/stream"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

var (
	ErrInvalidClientConfig = errors.New("invalid stream client config")
	ErrStreamIncomplete    = errors.New("stream ended before done")
	ErrStreamFailed        = errors.New("stream reported an error")
)

type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateStreaming State = "streaming"
	StateSuccess   State = "success"
	StateError     State = "error"
)

// Snapshot is the externally visible progress of the latest fetch.
type Snapshot struct {
	State          State
	Count          int
	EstimatedTotal int
	Err            error
}

type Request struct {
	ChainID  string
	Address  string
	FromDate *time.Time
	ToDate   *time.Time
}

func (r Request) key() string {
	return txcache.Key(r.ChainID, r.Address, r.FromDate, r.ToDate)
}

func (r Request) query() string {
	q := url.Values{}
	if r.FromDate != nil {
		q.Set("fromDate", r.FromDate.UTC().Format(time.RFC3339))
	}
	if r.ToDate != nil {
		q.Set("toDate", r.ToDate.UTC().Format(time.RFC3339))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

type Result struct {
	Transactions []ledger.Transaction
	FromCache    bool
	// Streamed is false when the JSON fallback served the result.
	Streamed bool
	// Partial marks a result cut short by cancellation or a terminal stream error.
	Partial bool
}

type StreamClient struct {
	baseURL    string
	httpClient *http.Client
	fetcher    *httpfetch.Fetcher
	cache      *txcache.Cache
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	onUpdate   func(Snapshot)
	sleep      func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	snapshot   Snapshot
	generation uint64
	inflight   map[string]*flight
}

type flight struct {
	generation uint64
	cancel     context.CancelFunc
}

type Option func(*StreamClient)

func WithBaseURL(u string) Option {
	return func(c *StreamClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *StreamClient) {
		c.httpClient = h
	}
}

// WithFetcher sets the fetcher used for the JSON fallback. By default one is
// built over the client's http client.
func WithFetcher(f *httpfetch.Fetcher) Option {
	return func(c *StreamClient) {
		c.fetcher = f
	}
}

func WithCache(cache *txcache.Cache) Option {
	return func(c *StreamClient) {
		c.cache = cache
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *StreamClient) {
		c.logger = l
	}
}

func WithMaxRetries(n int) Option {
	return func(c *StreamClient) {
		c.maxRetries = n
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *StreamClient) {
		c.baseDelay = d
	}
}

// WithOnUpdate registers a callback that receives every state transition and
// every change of the running count.
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(c *StreamClient) {
		c.onUpdate = fn
	}
}

func (c *StreamClient) IsValid() error {
	switch {
	case c.baseURL == "":
		return errors.Wrap(ErrInvalidClientConfig, "base url cannot be empty")
	case c.httpClient == nil:
		return errors.Wrap(ErrInvalidClientConfig, "http client cannot be nil")
	case c.logger == nil:
		return errors.Wrap(ErrInvalidClientConfig, "logger cannot be nil")
	case c.maxRetries < 0:
		return errors.Wrap(ErrInvalidClientConfig, "max retries cannot be negative")
	case c.baseDelay < 0:
		return errors.Wrap(ErrInvalidClientConfig, "base delay cannot be negative")
	default:
		return nil
	}
}

func New(opts ...Option) (*StreamClient, error) {
	c := &StreamClient{
		httpClient: &http.Client{},
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      sleepContext,
		snapshot:   Snapshot{State: StateIdle},
		inflight:   make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.IsValid(); err != nil {
		return nil, err
	}
	c.logger = c.logger.With("component", "stream-client")
	if c.fetcher == nil {
		f, err := httpfetch.New(httpfetch.WithHTTPClient(c.httpClient), httpfetch.WithLogger(c.logger))
		if err != nil {
			return nil, errors.Wrap(err, "create fallback fetcher")
		}
		c.fetcher = f
	}
	return c, nil
}

func (c *StreamClient) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Fetch returns the history for req, from the cache when possible. A fetch for
// the same target already in flight is canceled first. A canceled fetch keeps
// whatever it accumulated: state becomes success when that is non-empty and
// idle otherwise.
func (c *StreamClient) Fetch(ctx context.Context, req Request) (Result, error) {
	key := req.key()
	ctx, gen, done := c.begin(ctx, key)
	defer done()

	logger := c.logger.With("fetch_id", uuid.NewString(), "chain", req.ChainID)

	if c.cache != nil {
		if txs, ok := c.cache.Get(ctx, key); ok {
			c.update(gen, func(s *Snapshot) {
				*s = Snapshot{State: StateSuccess, Count: len(txs), EstimatedTotal: len(txs)}
			})
			return Result{Transactions: txs, FromCache: true}, nil
		}
	}

	c.update(gen, func(s *Snapshot) { *s = Snapshot{State: StateLoading} })

	var acc []ledger.Transaction
	var lastErr error
	for attempt := 0; ; attempt++ {
		acc = acc[:0]
		c.update(gen, func(s *Snapshot) { s.Count = 0 })

		txs, streamed, err := c.attempt(ctx, gen, req, &acc)
		switch {
		case err == nil:
			c.store(ctx, key, txs, logger)
			c.update(gen, func(s *Snapshot) {
				*s = Snapshot{State: StateSuccess, Count: len(txs), EstimatedTotal: max(s.EstimatedTotal, len(txs))}
			})
			return Result{Transactions: txs, Streamed: streamed}, nil
		case ctx.Err() != nil:
			return c.canceled(gen, acc, ctx.Err())
		case !retryable(err) || attempt >= c.maxRetries:
			lastErr = err
		default:
			delay := c.baseDelay * time.Duration(1<<attempt)
			logger.Warn("stream attempt failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
			if err := c.sleep(ctx, delay); err != nil {
				return c.canceled(gen, acc, err)
			}
			continue
		}
		break
	}

	logger.Error("fetch failed", "error", lastErr)
	partial := sortedCopy(acc)
	c.update(gen, func(s *Snapshot) {
		s.State = StateError
		s.Count = len(partial)
		s.Err = lastErr
	})
	return Result{Transactions: partial, Streamed: true, Partial: len(partial) > 0}, lastErr
}

// Cancel aborts the in-flight fetch for req, if any.
func (c *StreamClient) Cancel(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inflight[req.key()]; ok {
		f.cancel()
	}
}

func (c *StreamClient) begin(parent context.Context, key string) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	if prev, ok := c.inflight[key]; ok {
		prev.cancel()
	}
	c.generation++
	f := &flight{generation: c.generation, cancel: cancel}
	c.inflight[key] = f
	c.mu.Unlock()

	return ctx, f.generation, func() {
		cancel()
		c.mu.Lock()
		if cur, ok := c.inflight[key]; ok && cur == f {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}
}

// update applies fn to the snapshot unless a newer fetch has started since gen.
func (c *StreamClient) update(gen uint64, fn func(*Snapshot)) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	before := c.snapshot
	fn(&c.snapshot)
	after := c.snapshot
	c.mu.Unlock()

	if c.onUpdate != nil && (before.State != after.State || before.Count != after.Count || (before.Err == nil) != (after.Err == nil)) {
		c.onUpdate(after)
	}
}

func (c *StreamClient) canceled(gen uint64, acc []ledger.Transaction, err error) (Result, error) {
	if len(acc) == 0 {
		c.update(gen, func(s *Snapshot) { *s = Snapshot{State: StateIdle} })
		return Result{}, err
	}
	partial := sortedCopy(acc)
	c.update(gen, func(s *Snapshot) {
		s.State = StateSuccess
		s.Count = len(partial)
		s.Err = nil
	})
	return Result{Transactions: partial, Streamed: true, Partial: true}, nil
}

func (c *StreamClient) store(ctx context.Context, key string, txs []ledger.Transaction, logger *slog.Logger) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, txs, 0); err != nil {
		logger.Warn("failed to cache transactions", "error", err)
	}
}

// attempt runs one stream read. It falls back to the JSON endpoint when the
// stream cannot be opened or is not NDJSON.
func (c *StreamClient) attempt(ctx context.Context, gen uint64, req Request, acc *[]ledger.Transaction) ([]ledger.Transaction, bool, error) {
	body, err := c.open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, ctx.Err()
		}
		c.logger.Debug("stream unavailable, using json fallback", "error", err)
		txs, err := c.fallback(ctx, req)
		return txs, false, err
	}
	defer body.Close()

	r := stream.NewReader(body)
	for {
		msg, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, true, ErrStreamIncomplete
		}
		if err != nil {
			return nil, true, err
		}

		switch msg.Type {
		case streamtypes.TypeMeta:
			c.update(gen, func(s *Snapshot) { s.EstimatedTotal = msg.EstimatedTotal })
		case streamtypes.TypeBatch:
			*acc = append(*acc, msg.Transactions...)
			n := len(*acc)
			c.update(gen, func(s *Snapshot) {
				s.State = StateStreaming
				s.Count = n
			})
		case streamtypes.TypeDone:
			return sortedCopy(*acc), true, nil
		case streamtypes.TypeError:
			return nil, true, &StreamError{Code: msg.Code, Message: msg.Error}
		}
	}
}

type notStreamingError struct {
	status      int
	contentType string
}

func (e *notStreamingError) Error() string {
	return "stream endpoint answered " + http.StatusText(e.status) + " with " + e.contentType
}

func (c *StreamClient) open(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(req, "/stream"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create stream request")
	}
	httpReq.Header.Set("Accept", streamtypes.ContentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "open stream")
	}
	media, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode != http.StatusOK || media != streamtypes.ContentType {
		resp.Body.Close()
		return nil, &notStreamingError{status: resp.StatusCode, contentType: media}
	}
	return resp.Body, nil
}

func (c *StreamClient) fallback(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	var out streamtypes.ListResponse
	err := c.fetcher.FetchJSON(ctx, c.endpoint(req, ""), httpfetch.RequestOptions{ErrorLabel: "transactions"}, &out)
	if err != nil {
		var httpErr *httpfetch.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &APIError{Status: httpErr.Status, Message: apiMessage(httpErr.Body)}
		}
		return nil, err
	}
	if out.Transactions == nil {
		out.Transactions = []ledger.Transaction{}
	}
	ledger.SortTransactions(out.Transactions)
	return out.Transactions, nil
}

// sortedCopy returns the accumulated batches in ascending date order. Adapters
// emit pages in upstream order, which need not be chronological.
func sortedCopy(txs []ledger.Transaction) []ledger.Transaction {
	out := append([]ledger.Transaction(nil), txs...)
	ledger.SortTransactions(out)
	return out
}

// StreamError is an in-band error message ending a stream.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	return ErrStreamFailed.Error() + ": " + e.Message
}

// Is matches ErrStreamFailed, and ErrRateLimitExceeded when the server ran out
// of upstream rate limit budget.
func (e *StreamError) Is(target error) bool {
	switch target {
	case ErrStreamFailed:
		return true
	case httpfetch.ErrRateLimitExceeded:
		return e.Code == streamtypes.CodeRateLimited
	default:
		return false
	}
}

func (c *StreamClient) endpoint(req Request, suffix string) string {
	return c.baseURL + "/api/transactions/" + url.PathEscape(req.ChainID) + "/" + url.PathEscape(req.Address) + suffix + req.query()
}

// APIError is a non-2xx answer from the fallback endpoint. It is terminal.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

func apiMessage(body string) string {
	var payload struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload.Error == "" {
		return body
	}
	if payload.Details != "" {
		return payload.Error + ": " + payload.Details
	}
	return payload.Error
}

// retryable reports whether another stream attempt may help. Fallback answers
// and rate limits are final.
func retryable(err error) bool {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr), httpfetch.IsTerminal(err):
		return false
	default:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
