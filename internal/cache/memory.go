package cache

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a MemoryCache built without WithMaxEntries.
const DefaultMaxEntries = 10000

// MemoryCache is an in-process Cache used when no Redis URL is configured.
// Expired entries are dropped lazily on access and by Sweep. Once maxEntries
// is reached, adding a key evicts the oldest inserted entries first.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	seq        uint64
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time // zero means never
	seq     uint64    // insertion order
}

type MemoryOption func(*MemoryCache)

// WithMaxEntries caps the number of live keys. n <= 0 keeps the default.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Ping(_ context.Context) error { return nil }

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, memoryEntry{value: append([]byte(nil), value...), expires: c.expiry(ttl)})
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	var n int64
	if ok {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
	} else {
		e.expires = c.expiry(expiry)
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	if ok {
		c.entries[key] = e
	} else {
		c.put(key, e)
	}
	return n, nil
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries.
func (c *MemoryCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

// put stores e under key, making room first when key is new. Callers hold mu.
func (c *MemoryCache) put(key string, e memoryEntry) {
	if old, exists := c.entries[key]; exists {
		e.seq = old.seq
		c.entries[key] = e
		return
	}
	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	if over := len(c.entries) - c.maxEntries + 1; over > 0 {
		c.evictOldest(over + c.maxEntries/10)
	}
	c.seq++
	e.seq = c.seq
	c.entries[key] = e
}

// evictOldest drops the n earliest inserted entries. Callers hold mu.
func (c *MemoryCache) evictOldest(n int) {
	type aged struct {
		key string
		seq uint64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.seq})
	}
	slices.SortFunc(all, func(a, b aged) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	for _, a := range all[:min(n, len(all))] {
		delete(c.entries, a.key)
	}
}

func (c *MemoryCache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

// live returns the entry for key, deleting it if expired. Callers hold mu.
func (c *MemoryCache) live(key string) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

var _ Cache = (*MemoryCache)(nil)
