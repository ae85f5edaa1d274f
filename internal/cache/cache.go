package cache

import (
	"sync"
)

// Cache is a concurrency-safe keyed cache with compute-on-miss. The
// runtime uses it to reuse resolved executables across invocations.
type Cache[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

func New[V any]() *Cache[V] {
	return &Cache[V]{data: make(map[string]V)}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *Cache[V]) Put(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = v
}

// GetOrCompute returns the cached value for key, computing and storing
// it on a miss. The compute function runs under the write lock, so
// concurrent callers for the same key observe a single computation.
// Errors are not cached.
func (c *Cache[V]) GetOrCompute(key string, fn func() (V, error)) (V, error) {
	c.mu.RLock()
	v, ok := c.data[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.data[key] = v
	return v, nil
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear drops every cached entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]V)
}
