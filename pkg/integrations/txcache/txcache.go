// Package txcache caches fetched transaction histories keyed by chain, address and
// date window, and mirrors the whole cache into a Store after every mutation.
package txcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"awakenfetch/pkg/integrations/memcache"
	"awakenfetch/pkg/types/ledger"

	"github.com/pkg/errors"
)

const DefaultTTL = 30 * time.Minute

var ErrInvalidCacheConfig = errors.New("invalid transaction cache config")

// Recorder receives hit and miss counts. *observability.Metrics satisfies it.
type Recorder interface {
	ObserveCache(hit bool)
}

type persistedEntry struct {
	Transactions []ledger.Transaction `json:"transactions"`
	Timestamp    int64                `json:"timestamp"`
	TTL          int64                `json:"ttl"`
	// Seq is the write order. Timestamps only carry milliseconds.
	Seq int `json:"seq"`
}

type Cache struct {
	mem        *memcache.Cache[string, []ledger.Transaction]
	store      Store
	logger     *slog.Logger
	recorder   Recorder
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type Option func(*Cache)

func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		c.recorder = r
	}
}

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		c.ttl = d
	}
}

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func (c *Cache) IsValid() error {
	switch {
	case c.store == nil:
		return errors.Wrap(ErrInvalidCacheConfig, "store cannot be nil")
	case c.logger == nil:
		return errors.Wrap(ErrInvalidCacheConfig, "logger cannot be nil")
	case c.ttl <= 0:
		return errors.Wrap(ErrInvalidCacheConfig, "ttl must be positive")
	case c.now == nil:
		return errors.Wrap(ErrInvalidCacheConfig, "clock cannot be nil")
	default:
		return nil
	}
}

// New builds the cache and restores whatever the store holds. A corrupt payload is
// logged and discarded.
func New(ctx context.Context, opts ...Option) (*Cache, error) {
	c := &Cache{
		ttl:        DefaultTTL,
		maxEntries: memcache.DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.IsValid(); err != nil {
		return nil, err
	}

	c.logger = c.logger.With("component", "txcache")
	c.mem = memcache.New[string, []ledger.Transaction](
		memcache.WithTTL(c.ttl),
		memcache.WithMaxEntries(c.maxEntries),
		memcache.WithClock(c.now),
	)

	if err := c.load(ctx); err != nil {
		c.logger.Warn("discarding persisted cache", "error", err)
	}
	return c, nil
}

// Key is lower(chain):lower(address):from:to with RFC3339 UTC dates and an empty
// segment for an absent bound.
func Key(chainID, address string, from, to *time.Time) string {
	return strings.ToLower(chainID) + ":" + strings.ToLower(address) + ":" + isoOrEmpty(from) + ":" + isoOrEmpty(to)
}

func isoOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (c *Cache) Get(ctx context.Context, key string) ([]ledger.Transaction, bool) {
	before := c.mem.Len()
	txs, ok := c.mem.Get(key)
	if c.recorder != nil {
		c.recorder.ObserveCache(ok)
	}
	if !ok && c.mem.Len() < before {
		c.persist(ctx)
	}
	if !ok {
		return nil, false
	}
	return append([]ledger.Transaction(nil), txs...), true
}

// Set stores txs under key. A non-positive ttl uses the cache default.
func (c *Cache) Set(ctx context.Context, key string, txs []ledger.Transaction, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	stored := append([]ledger.Transaction(nil), txs...)
	c.mem.SetWithTTL(key, stored, ttl)
	return c.save(ctx)
}

func (c *Cache) Remove(ctx context.Context, key string) error {
	c.mem.Delete(key)
	return c.save(ctx)
}

func (c *Cache) Clear(ctx context.Context) error {
	c.mem.Clear()
	return c.save(ctx)
}

func (c *Cache) Keys() []string {
	return c.mem.Keys()
}

func (c *Cache) Len() int {
	return c.mem.Len()
}

// Prune removes expired entries and persists when anything changed.
func (c *Cache) Prune(ctx context.Context) error {
	if c.mem.Prune() == 0 {
		return nil
	}
	return c.save(ctx)
}

func (c *Cache) persist(ctx context.Context) {
	if err := c.save(ctx); err != nil {
		c.logger.Warn("persist cache", "error", err)
	}
}

func (c *Cache) save(ctx context.Context) error {
	snapshot := c.mem.Snapshot()
	payload := make(map[string]persistedEntry, len(snapshot))
	for i, e := range snapshot {
		payload[e.Key] = persistedEntry{
			Transactions: e.Value,
			Timestamp:    e.WrittenAt.UnixMilli(),
			TTL:          e.TTL.Milliseconds(),
			Seq:          i,
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal cache")
	}
	return errors.Wrap(c.store.Save(ctx, data), "save cache")
}

func (c *Cache) load(ctx context.Context) error {
	data, err := c.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load cache")
	}
	if len(data) == 0 {
		return nil
	}

	var payload map[string]persistedEntry
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.Wrap(err, "unmarshal cache")
	}

	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := payload[keys[i]], payload[keys[j]]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Seq < b.Seq
	})

	// Restore sorts stably by write time, so ties keep this order.
	entries := make([]memcache.Entry[string, []ledger.Transaction], 0, len(keys))
	for _, key := range keys {
		p := payload[key]
		entries = append(entries, memcache.Entry[string, []ledger.Transaction]{
			Key:       key,
			Value:     p.Transactions,
			WrittenAt: time.UnixMilli(p.Timestamp),
			TTL:       time.Duration(p.TTL) * time.Millisecond,
		})
	}
	c.mem.Restore(entries)
	return nil
}
