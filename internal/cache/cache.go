package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"studio/internal/config"
)

// Cache stores encoded responses per route and user. A nil or disabled Cache
// never hits.
type Cache struct {
	store *ristretto.Cache[string, []byte]
	ttl   time.Duration

	mu          sync.Mutex
	index       map[string]map[string]struct{}
	generations map[string]uint64
}

// New builds a Cache from configuration. A disabled config yields a no-op
// cache and no error.
func New(cfg config.Cache) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{}, nil
	}
	maxCost := cfg.MaxCostBytes
	if maxCost <= 0 {
		maxCost = 16 << 20
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 10_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &Cache{
		store: store,
		ttl:   time.Duration(cfg.TTLSeconds) * time.Second,
		index:       make(map[string]map[string]struct{}),
		generations: make(map[string]uint64),
	}, nil
}

// Key joins a route and user into a cache key.
func Key(route, userID string) string {
	return route + "|" + userID
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Get returns the cached value for route and user.
func (c *Cache) Get(route, userID string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	value, ok := c.store.Get(Key(route, userID))
	if !ok {
		return nil, false
	}
	return value, true
}

// Set stores value for route and user until the TTL expires. The write is
// visible to Get once Set returns.
func (c *Cache) Set(route, userID string, value []byte) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(route, userID, value)
}

// Generation returns the user's invalidation counter. Read it before
// computing a value and hand it to SetAt.
func (c *Cache) Generation(userID string) uint64 {
	if !c.Enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// SetAt stores value only if the user has not been invalidated since
// generation was read. It reports whether the value was stored.
func (c *Cache) SetAt(route, userID string, generation uint64, value []byte) bool {
	if !c.Enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != generation {
		return false
	}
	return c.setLocked(route, userID, value)
}

func (c *Cache) setLocked(route, userID string, value []byte) bool {
	key := Key(route, userID)
	if !c.store.SetWithTTL(key, value, int64(len(value)), c.ttl) {
		return false
	}
	c.store.Wait()

	keys, ok := c.index[userID]
	if !ok {
		keys = make(map[string]struct{})
		c.index[userID] = keys
	}
	keys[key] = struct{}{}
	return true
}

// Invalidate drops every cached entry owned by the given users.
func (c *Cache) Invalidate(userIDs ...string) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, userID := range userIDs {
		for key := range c.index[userID] {
			c.store.Del(key)
		}
		delete(c.index, userID)
		c.generations[userID]++
	}
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	if !c.Enabled() {
		return
	}
	c.store.Close()
}
