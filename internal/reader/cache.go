package reader

import "sync"

// cache is a concurrency-safe map used for the per-field snapshot values.
type cache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

func newCache[K comparable, V any]() *cache[K, V] {
	return &cache[K, V]{data: make(map[K]V)}
}

func (c *cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	val, ok := c.data[key]
	c.mu.RUnlock()
	return val, ok
}

func (c *cache[K, V]) Set(key K, val V) {
	c.mu.Lock()
	c.data[key] = val
	c.mu.Unlock()
}

func (c *cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}
