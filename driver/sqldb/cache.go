package sqldb

import (
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"
)

// CacheStats tracks prepared statement cache performance.
type CacheStats struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
}

type cacheEntry struct {
	query string
	stmt  *sql.Stmt
}

// StatementCache keeps prepared statements for one session with LRU eviction.
// Entries are keyed by the xxhash of the query text; a colliding query is
// treated as a miss and not cached.
type StatementCache struct {
	entries map[uint64]*cacheEntry
	order   []uint64 // least recently used first
	maxSize int
	stats   CacheStats
	mu      sync.Mutex
}

// NewStatementCache creates a cache holding at most maxSize statements.
// A size of zero disables caching.
func NewStatementCache(maxSize int) *StatementCache {
	if maxSize < 0 {
		maxSize = 0
	}
	return &StatementCache{
		entries: make(map[uint64]*cacheEntry, maxSize),
		order:   make([]uint64, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get returns the cached statement for query.
func (c *StatementCache) Get(query string) (*sql.Stmt, bool) {
	key := xxhash.Sum64String(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.query != query {
		c.stats.Misses.Add(1)
		return nil, false
	}
	c.stats.Hits.Add(1)
	c.touch(key)
	return e.stmt, true
}

// Add stores stmt under query. It reports whether the cache took ownership;
// when it did not, the caller must close stmt itself.
func (c *StatementCache) Add(query string, stmt *sql.Stmt) bool {
	if c.maxSize == 0 {
		return false
	}
	key := xxhash.Sum64String(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return false
	}
	if len(c.order) >= c.maxSize {
		c.evictLRU()
	}
	c.entries[key] = &cacheEntry{query: query, stmt: stmt}
	c.order = append(c.order, key)
	return true
}

// Len returns the number of cached statements.
func (c *StatementCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Stats returns the live counters.
func (c *StatementCache) Stats() *CacheStats {
	return &c.stats
}

// Clear closes and removes every cached statement.
func (c *StatementCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.stmt.Close()
	}
	c.entries = make(map[uint64]*cacheEntry, c.maxSize)
	c.order = c.order[:0]
}

func (c *StatementCache) touch(key uint64) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

func (c *StatementCache) evictLRU() {
	if len(c.order) == 0 {
		return
	}
	key := c.order[0]
	c.order = c.order[1:]
	if e, ok := c.entries[key]; ok {
		e.stmt.Close()
		delete(c.entries, key)
	}
	c.stats.Evictions.Add(1)
}
