package archive

import (
	"container/list"
	"sync"

	"github.com/scrutin/scrutin/internal/metrics"
)

// DefaultCacheSize is used when a cache size of zero or less is configured.
const DefaultCacheSize = 64

// Cache is an LRU of decoded snapshots keyed by blob key. Published
// snapshots are never rewritten, so an entry is valid for as long as it
// stays in the cache.
type Cache struct {
	mu    sync.Mutex
	limit int
	ll    *list.List // front is most recently used
	items map[string]*list.Element
}

type cacheItem struct {
	key  string
	snap *Snapshot
}

// NewCache creates a cache holding at most limit snapshots.
func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultCacheSize
	}
	return &Cache{
		limit: limit,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached snapshot for key, or nil.
func (c *Cache) Get(key string) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		metrics.ArchiveCacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.ArchiveCacheLookups.WithLabelValues("hit").Inc()
	c.ll.MoveToFront(el)
	return el.Value.(*cacheItem).snap
}

// Put stores snap under key and evicts the least recently used entry when
// the cache is full.
func (c *Cache) Put(key string, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheItem).snap = snap
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&cacheItem{key: key, snap: snap})
	for c.ll.Len() > c.limit {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
