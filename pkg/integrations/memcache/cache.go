package memcache

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"awakenfetch/pkg/types/cache"
)

var _ cache.Cache[string, any] = (*Cache[string, any])(nil)

const DefaultMaxEntries = 50

// Entry is a stored value with its write time. A zero TTL never expires.
type Entry[K comparable, V any] struct {
	Key       K
	Value     V
	WrittenAt time.Time
	TTL       time.Duration
}

func (e Entry[K, V]) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.WrittenAt) > e.TTL
}

type config struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type Option func(*config)

func WithTTL(d time.Duration) Option {
	return func(c *config) {
		c.ttl = d
	}
}

// WithMaxEntries bounds the cache; a non-positive value removes the bound.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		c.maxEntries = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// Cache is a bounded TTL cache. When full, the oldest write is evicted; reads do
// not refresh an entry's position. Expired entries are dropped when read.
type Cache[K comparable, V any] struct {
	mutex sync.Mutex
	cfg   config
	data  map[K]*list.Element
	order *list.List
}

func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	cfg := config{maxEntries: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[K, V]{
		cfg:   cfg,
		data:  make(map[K]*list.Element),
		order: list.New(),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var zero V
	el, ok := c.data[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(Entry[K, V])
	if e.expired(c.cfg.now()) {
		c.remove(el)
		return zero, false
	}
	return e.Value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.cfg.ttl)
}

// SetWithTTL writes the value, replacing any previous entry and refreshing its write time.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.insert(Entry[K, V]{Key: key, Value: value, WrittenAt: c.cfg.now(), TTL: ttl})
}

func (c *Cache[K, V]) insert(e Entry[K, V]) {
	if el, ok := c.data[e.Key]; ok {
		c.remove(el)
	}
	for c.cfg.maxEntries > 0 && c.order.Len() >= c.cfg.maxEntries {
		c.remove(c.order.Front())
	}
	c.data[e.Key] = c.order.PushBack(e)
}

func (c *Cache[K, V]) remove(el *list.Element) {
	e := c.order.Remove(el).(Entry[K, V])
	delete(c.data, e.Key)
}

func (c *Cache[K, V]) Delete(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if el, ok := c.data[key]; ok {
		c.remove(el)
	}
}

// Keys returns the keys oldest write first.
func (c *Cache[K, V]) Keys() []K {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(Entry[K, V]).Key)
	}
	return keys
}

func (c *Cache[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[K]*list.Element)
	c.order.Init()
}

func (c *Cache[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.order.Len()
}

// Prune drops every expired entry and returns how many were removed.
func (c *Cache[K, V]) Prune() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.cfg.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(Entry[K, V]).expired(now) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

// Snapshot returns every entry oldest write first, expired ones included.
func (c *Cache[K, V]) Snapshot() []Entry[K, V] {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]Entry[K, V], 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry[K, V]))
	}
	return out
}

// Restore replaces the contents with entries, keeping their write times. Entries are
// inserted oldest first so the bound evicts the same ones a live cache would.
func (c *Cache[K, V]) Restore(entries []Entry[K, V]) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[K]*list.Element)
	c.order.Init()

	sorted := make([]Entry[K, V], len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WrittenAt.Before(sorted[j].WrittenAt)
	})

	now := c.cfg.now()
	for _, e := range sorted {
		if e.expired(now) {
			continue
		}
		c.insert(e)
	}
}
