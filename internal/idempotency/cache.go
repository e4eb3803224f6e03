// Package idempotency deduplicates repeated submissions of the same turn.
//
// Cache holds completed envelopes by client_turn_id with a size bound and a
// time-to-live. Group collapses concurrent submissions of one key into a
// single dispatch. Neither is durable: losing them only costs a re-dispatch.
package idempotency

import (
	"container/list"
	"sync"
	"time"

	"conductor/internal/logging"
	"conductor/internal/types"
)

// Cache is a bounded LRU of envelopes with a per-entry TTL. Stored envelopes
// are never mutated; the first envelope stored for a key wins until it
// expires or is evicted.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	ll         *list.List
	items      map[string]*list.Element
}

type entry struct {
	key       string
	envelope  *types.Envelope
	createdAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces the clock used for expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache holding at most maxEntries envelopes for ttl each.
// A non-positive maxEntries or ttl disables that bound.
func NewCache(maxEntries int, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the envelope stored for key if it is present and unexpired.
func (c *Cache) Get(key string) (*types.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	if c.expiredLocked(ent) {
		c.removeLocked(el)
		logging.CacheDebug("expired client_turn_id=%s", key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return ent.envelope, true
}

// Put stores env under key and reports whether it was stored. An unexpired
// entry for the same key is kept as is.
func (c *Cache) Put(key string, env *types.Envelope) bool {
	if key == "" || env == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		if !c.expiredLocked(el.Value.(*entry)) {
			return false
		}
		c.removeLocked(el)
	}

	el := c.ll.PushFront(&entry{key: key, envelope: env, createdAt: c.now()})
	c.items[key] = el

	for c.maxEntries > 0 && c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		logging.CacheDebug("evicting client_turn_id=%s", oldest.Value.(*entry).key)
		c.removeLocked(oldest)
	}
	return true
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

// SetTTL changes the lifetime applied to entries from now on, including
// entries already stored.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

func (c *Cache) expiredLocked(ent *entry) bool {
	return c.ttl > 0 && c.now().Sub(ent.createdAt) >= c.ttl
}

func (c *Cache) removeLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
