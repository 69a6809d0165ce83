package channel

import "sync"

// Cache memoizes Cover() results. It is safe for concurrent readers and
// infrequent writers, following the same map-guarded-by-RWMutex idiom as
// ssr.Broker's client registry rather than sync.Map.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// NewCache returns an empty wildcard cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]string)}
}

// Lookup returns the cached cover list for name, computing and storing it
// on first lookup. The returned slice must be treated as immutable by
// the caller: callers that might otherwise mutate it should copy first.
func (c *Cache) Lookup(name string) []string {
	c.mu.RLock()
	cover, ok := c.entries[name]
	c.mu.RUnlock()
	if ok {
		return cover
	}

	cover = Cover(name)

	c.mu.Lock()
	c.entries[name] = cover
	c.mu.Unlock()

	return cover
}

// Purge removes a channel's cached cover list. Called once a channel
// record is eliminated (its subscriber set became empty), so the cache
// never grows for channels nobody publishes to anymore.
func (c *Cache) Purge(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// Len reports the number of memoized entries, used by broker.Context's
// stats snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
