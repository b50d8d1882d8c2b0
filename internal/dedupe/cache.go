// ABOUTME: TTL cache for suppressing duplicate client message IDs
// ABOUTME: Bounded size with oldest-first eviction and background sweep

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks recently seen message IDs so retried requests are not
// processed twice. Entries expire after the TTL and the oldest entry is
// evicted when the cache is full.
type Cache struct {
	mu     sync.Mutex
	seen   map[string]*entry
	order  *list.List
	ttl    time.Duration
	limit  int
	done   chan struct{}
	closed bool
}

// New creates a cache that remembers keys for ttl and holds at most limit
// entries. A background goroutine sweeps expired entries every sweep interval.
func New(ttl time.Duration, limit int, sweep time.Duration) *Cache {
	c := &Cache{
		seen:  make(map[string]*entry),
		order: list.New(),
		ttl:   ttl,
		limit: limit,
		done:  make(chan struct{}),
	}
	go c.sweepLoop(sweep)
	return c
}

// Seen atomically checks whether key was recorded within the TTL and records
// it if not. Returns true for duplicates.
func (c *Cache) Seen(key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && now.Sub(e.seenAt) < c.ttl {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return true
	}

	if e, ok := c.seen[key]; ok {
		// Expired entry for the same key; refresh in place.
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.seen) >= c.limit {
		c.evictOldest()
	}
	elem := c.order.PushBack(key)
	c.seen[key] = &entry{seenAt: now, element: elem}
	return false
}

// Forget drops a key so a later Seen treats it as new. Callers use it to
// release a key claimed for work that never happened.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.element)
		delete(c.seen, key)
	}
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.seen {
		if now.Sub(e.seenAt) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
