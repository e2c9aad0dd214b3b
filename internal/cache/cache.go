package cache

import (
	"sync"
	"time"
)

// TTL is a small in-process cache with a fixed default lifetime per entry.
// The directory client uses it to keep member lookups off the hot path.
type TTL[V any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry[V]
}

type entry[V any] struct {
	val V
	exp time.Time
}

func New[V any](ttl time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &TTL[V]{
		ttl: ttl,
		m:   make(map[string]entry[V]),
	}
}

func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V

	now := time.Now()

	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()

	if !ok {
		return zero, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()

		return zero, false
	}

	return e.val, true
}

func (c *TTL[V]) Set(key string, val V) {
	c.SetWithTTL(key, val, c.ttl)
}

func (c *TTL[V]) SetWithTTL(key string, val V, ttl time.Duration) {
	c.mu.Lock()
	c.m[key] = entry[V]{val: val, exp: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *TTL[V]) Clear() {
	c.mu.Lock()
	c.m = make(map[string]entry[V])
	c.mu.Unlock()
}
