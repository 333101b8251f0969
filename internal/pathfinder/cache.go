package pathfinder

import (
	"container/list"

	"bomberkernel/internal/worldmodel"
)

// CacheKey identifies a cached path: the endpoints plus a coarse bucket of
// the danger field so a path computed under light danger is never handed
// back once danger has shifted meaningfully, without requiring an exact
// danger-field match (which would never hit).
type CacheKey struct {
	Start, Goal worldmodel.Position
	DangerBucket uint64
}

type cacheEntry struct {
	key        CacheKey
	path       []worldmodel.Position
	expiresAt  uint64 // tick
}

// Cache is a bounded LRU of recently computed paths, keyed by CacheKey,
// each with a per-tick TTL. It is per-bot (spec.md §5: "the path cache is
// per-bot") — never shared across bot kernels.
type Cache struct {
	capacity int
	ttl      uint64
	ll       *list.List
	items    map[CacheKey]*list.Element
}

// NewCache returns an empty cache bounded to capacity entries, each valid
// for ttlTicks ticks after insertion.
func NewCache(capacity int, ttlTicks uint64) *Cache {
	return &Cache{capacity: capacity, ttl: ttlTicks, ll: list.New(), items: make(map[CacheKey]*list.Element)}
}

// Get returns a cached path for key if present, not expired as of
// currentTick, and still valid against grid (every tile on the path is
// still passable). A stale or invalidated entry is evicted on lookup.
func (c *Cache) Get(key CacheKey, currentTick uint64, grid *worldmodel.Grid) ([]worldmodel.Position, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if currentTick > entry.expiresAt || !pathStillValid(entry.path, grid) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.path, true
}

// Put inserts or refreshes a path under key, evicting the least-recently
// used entry if the cache is at capacity.
func (c *Cache) Put(key CacheKey, path []worldmodel.Position, currentTick uint64) {
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).path = path
		el.Value.(*cacheEntry).expiresAt = currentTick + c.ttl
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.capacity {
		back := c.ll.Back()
		if back != nil {
			delete(c.items, back.Value.(*cacheEntry).key)
			c.ll.Remove(back)
		}
	}
	el := c.ll.PushFront(&cacheEntry{key: key, path: path, expiresAt: currentTick + c.ttl})
	c.items[key] = el
}

func pathStillValid(path []worldmodel.Position, grid *worldmodel.Grid) bool {
	for _, p := range path {
		if !grid.Tile(p).Passable() {
			return false
		}
	}
	return true
}

// DangerBucket quantizes a danger sample into a coarse bucket (0..levels-1)
// for use as part of a CacheKey — exact float equality would defeat
// caching entirely, since influence values shift by fractions of a point
// between ticks even when the gross safety picture hasn't changed.
func DangerBucket(avg float32, levels int) uint64 {
	if levels < 1 {
		levels = 1
	}
	bucket := int(avg * float32(levels))
	if bucket < 0 {
		bucket = 0
	}
	if bucket >= levels {
		bucket = levels - 1
	}
	return uint64(bucket)
}
