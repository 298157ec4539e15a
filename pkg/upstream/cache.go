package upstream

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache is a bounded in-process LRU store with a fixed per-entry TTL.
// Entries expire TTL after insertion regardless of access, and the least
// recently used entry is evicted when capacity is exceeded. Contents are
// not durable across restarts.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

// CacheStats describes the cache's current occupancy.
type CacheStats struct {
	Size     int
	Capacity int
}

// NewCache creates a cache holding at most capacity entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached value for key, or false when the key is absent or
// its entry has expired. A hit refreshes the entry's recency, not its TTL.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	element, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := element.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(element)
		return nil, false
	}
	c.order.MoveToFront(element)
	return entry.value, true
}

// Set stores value under key, expiring ttl from now. Inserting beyond
// capacity evicts the least recently used entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.entries[key]; ok {
		entry := element.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(element)
		return
	}
	element := c.order.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	c.entries[key] = element
	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element, c.capacity)
}

// Stats returns the current size and configured capacity.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: c.order.Len(), Capacity: c.capacity}
}

func (c *Cache) removeLocked(element *list.Element) {
	entry := element.Value.(*cacheEntry)
	c.order.Remove(element)
	delete(c.entries, entry.key)
}

// cacheKey derives a deterministic key from the operation and its
// transcoded parameters. encoding/json sorts map keys, so equal parameter
// bags yield equal keys regardless of insertion order.
func cacheKey(op Operation, params map[string]any) string {
	encoded, err := json.Marshal(params)
	if err != nil {
		return string(op)
	}
	return string(op) + ":" + string(encoded)
}
