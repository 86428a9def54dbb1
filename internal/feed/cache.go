package feed

import (
	"fmt"
	"sync"

	"tribune/internal/models"
	"tribune/internal/observability"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of distinct queries kept per version.
const DefaultCacheSize = 256

// Cache memoizes Derive keyed by collection version and normalized query.
// Entries from an older version are dropped the first time a newer version
// is seen. Returned slices are shared and must be treated as read-only.
type Cache struct {
	mu      sync.Mutex
	version uint64
	entries map[Query][]*models.Post
	max     int
	group   singleflight.Group
}

// NewCache creates a cache holding at most size queries (DefaultCacheSize when size <= 0).
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{entries: make(map[Query][]*models.Post), max: size}
}

// Get returns the derived feed for q at version, computing it from posts on a miss.
// posts must be the collection that version identifies.
func (c *Cache) Get(version uint64, posts []*models.Post, q Query) []*models.Post {
	q = q.Normalize()

	c.mu.Lock()
	if version > c.version {
		c.version = version
		c.entries = make(map[Query][]*models.Post)
	}
	if version == c.version {
		if hit, ok := c.entries[q]; ok {
			c.mu.Unlock()
			observability.FeedCacheLookups.WithLabelValues("hit").Inc()
			return hit
		}
	}
	c.mu.Unlock()

	observability.FeedCacheLookups.WithLabelValues("miss").Inc()
	key := fmt.Sprintf("%d|%s|%s|%s", version, q.Sort, q.Category, q.Search)
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		return Derive(posts, q), nil
	})
	result := v.([]*models.Post)

	c.mu.Lock()
	// A stale version is served but never stored.
	if version == c.version {
		if len(c.entries) >= c.max {
			c.entries = make(map[Query][]*models.Post)
		}
		c.entries[q] = result
	}
	c.mu.Unlock()
	return result
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[Query][]*models.Post)
	c.mu.Unlock()
}

// Len reports the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
