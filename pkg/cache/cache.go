package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config parameterizes a Cache instance.
type Config struct {
	// Name identifies the instance in logs and stats output.
	Name string
	// MaxSize bounds the entry count; at capacity, Set evicts the
	// least-recently-used entry. Zero or negative means unbounded.
	MaxSize int
	// TTL is the default lifetime of an entry. Zero means entries never expire.
	TTL time.Duration
	// SweepInterval controls the background purge of expired entries.
	// Zero disables the sweep; expired entries are then removed lazily on access.
	SweepInterval time.Duration
}

// entry is a single cached value with its expiry metadata.
type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	expireAt  time.Time // zero means no expiry
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// Cache is a bounded in-memory key/value cache with per-entry TTL and LRU
// eviction. Each instance owns its entries and its sweep goroutine; instances
// never share state, so multiple caches can coexist in one process.
type Cache[V any] struct {
	mu      sync.Mutex
	data    map[string]*list.Element
	order   *list.List // front = most recently used
	cfg     Config
	stats   Stats
	done    chan struct{}
	sweepWG sync.WaitGroup
}

// New constructs a Cache and starts its sweep goroutine when a sweep
// interval is configured. Call Destroy to stop the sweep.
func New[V any](cfg Config) *Cache[V] {
	c := &Cache[V]{
		data:  make(map[string]*list.Element),
		order: list.New(),
		cfg:   cfg,
		done:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		c.sweepWG.Add(1)
		go c.sweepLoop()
	}
	return c
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.cfg.TTL)
}

// SetTTL stores value under key with an explicit TTL, overriding the default.
// An existing key is removed and reinserted, resetting its recency and expiry.
// Inserting into a full cache evicts exactly one entry, the least recently used.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.data[key]; ok {
		c.remove(elem)
	} else if c.cfg.MaxSize > 0 && c.order.Len() >= c.cfg.MaxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
			c.stats.Evictions++
		}
	}

	e := &entry[V]{key: key, value: value, createdAt: now}
	if ttl > 0 {
		e.expireAt = now.Add(ttl)
	}
	c.data[key] = c.order.PushFront(e)
}

// Get returns the live value for key. An expired entry is removed and counts
// as both an expiration and a miss; a hit moves the entry to the
// most-recently-used position.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.data[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	e := elem.Value.(*entry[V])
	if e.expired(time.Now()) {
		c.remove(elem)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.stats.Hits++
	return e.value, true
}

// Has reports whether a live entry exists for key without touching recency
// or the hit/miss counters. An expired entry is removed.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.data[key]
	if !ok {
		return false
	}
	if elem.Value.(*entry[V]).expired(time.Now()) {
		c.remove(elem)
		c.stats.Expirations++
		return false
	}
	return true
}

// Delete removes key if present. Deleting a missing key is a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.data[key]; ok {
		c.remove(elem)
	}
}

// Clear removes every entry. Counters are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the current entry count, including not-yet-swept expired entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Destroy stops the sweep goroutine. The cache remains usable afterwards but
// relies solely on lazy expiration. Destroy must be called at most once.
func (c *Cache[V]) Destroy() {
	close(c.done)
	c.sweepWG.Wait()
}

// remove unlinks elem from both structures. Caller holds the lock.
func (c *Cache[V]) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.data, elem.Value.(*entry[V]).key)
}

func (c *Cache[V]) sweepLoop() {
	defer c.sweepWG.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep purges all expired entries. It scans from the least-recently-used end
// under the instance lock; the scan is bounded by the entry count, so
// concurrent Get/Set block only for the duration of scan and removal.
func (c *Cache[V]) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*entry[V]).expired(now) {
			c.remove(elem)
			c.stats.Expirations++
		}
		elem = prev
	}
}
