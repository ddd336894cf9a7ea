package renderer

import (
	"sync"
	"sync/atomic"

	"github.com/conneroisu/weave/internal/types"
)

// CacheKey collapses a component invocation into a single string. Equal
// names and equal serialized props give equal keys.
func CacheKey(name string, props types.Props) string {
	return name + "\x00" + props.Serialize()
}

type cacheEntry struct {
	fragment   string
	generation uint64
}

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// ExpansionCache memoizes resolved fragments within a build. Every entry
// remembers the component store generation it was produced from; a lookup
// with a newer generation misses, so fragments built from a reloaded
// template are never served.
type ExpansionCache struct {
	entries map[string]cacheEntry
	mutex   sync.RWMutex
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewExpansionCache creates an empty cache.
func NewExpansionCache() *ExpansionCache {
	return &ExpansionCache{entries: make(map[string]cacheEntry)}
}

// Get returns the fragment cached under key for the given generation.
func (c *ExpansionCache) Get(key string, generation uint64) (string, bool) {
	c.mutex.RLock()
	entry, ok := c.entries[key]
	c.mutex.RUnlock()

	if !ok || entry.generation != generation {
		c.misses.Add(1)

		return "", false
	}
	c.hits.Add(1)

	return entry.fragment, true
}

// Set stores fragment under key. An existing entry of the same generation is
// kept: concurrent resolutions of one key produce the same text.
func (c *ExpansionCache) Set(key string, generation uint64, fragment string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, ok := c.entries[key]; ok && existing.generation >= generation {
		return
	}
	c.entries[key] = cacheEntry{fragment: fragment, generation: generation}
}

// Clear drops every entry and resets the counters.
func (c *ExpansionCache) Clear() {
	c.mutex.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mutex.Unlock()

	c.hits.Store(0)
	c.misses.Store(0)
}

// Len returns the number of cached fragments.
func (c *ExpansionCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.entries)
}

// Stats returns the current counters.
func (c *ExpansionCache) Stats() CacheStats {
	return CacheStats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
