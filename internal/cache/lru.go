// Package cache implements PicoFS's mount-scoped stat/readDir cache
// (spec.md §4.4): two LRU-bounded maps keyed by normalised path, advisory
// and invalidated on every mutation under a mount.
package cache

import (
	"container/list"
	"sync"

	"github.com/picofs/picofs/internal/pathutil"
	"github.com/picofs/picofs/internal/tree"
)

// DefaultMaxEntries bounds each of the two maps when the caller does not
// configure one explicitly.
const DefaultMaxEntries = 10000

// boundedLRU is a string-keyed, entry-count-bounded LRU, used identically
// for both the stat and readDir maps. The container/list + map pairing
// mirrors the teacher's LRUCache shape, simplified down to entry-count
// eviction only since spec.md's Cache has no byte-size budget of its own.
type boundedLRU struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element
	order      *list.List // front = most recently used
}

type lruEntry struct {
	key   string
	value interface{}
}

func newBoundedLRU(maxEntries int) *boundedLRU {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &boundedLRU{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *boundedLRU) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *boundedLRU) put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	for len(c.items) > c.maxEntries {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.items, back.Value.(*lruEntry).key)
	}
}

func (c *boundedLRU) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

func (c *boundedLRU) deletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if pathutil.HasPrefix(key, prefix) {
			c.order.Remove(el)
			delete(c.items, key)
		}
	}
}

func (c *boundedLRU) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

func (c *boundedLRU) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Cache is the pair of LRU maps backing mount-path stat/readDir results.
type Cache struct {
	stat    *boundedLRU
	readDir *boundedLRU
}

// New creates a Cache whose two maps each hold up to maxEntries entries.
// maxEntries <= 0 uses DefaultMaxEntries.
func New(maxEntries int) *Cache {
	return &Cache{
		stat:    newBoundedLRU(maxEntries),
		readDir: newBoundedLRU(maxEntries),
	}
}

// GetStat returns the cached FsMeta for path, if present.
func (c *Cache) GetStat(path string) (tree.FsMeta, bool) {
	v, ok := c.stat.get(pathutil.Normalize(path))
	if !ok {
		return tree.FsMeta{}, false
	}
	return v.(tree.FsMeta), true
}

// PutStat caches meta for path.
func (c *Cache) PutStat(path string, meta tree.FsMeta) {
	c.stat.put(pathutil.Normalize(path), meta)
}

// GetReadDir returns the cached directory listing for path, if present.
func (c *Cache) GetReadDir(path string) ([]tree.FsEntry, bool) {
	v, ok := c.readDir.get(pathutil.Normalize(path))
	if !ok {
		return nil, false
	}
	return v.([]tree.FsEntry), true
}

// PutReadDir caches entries as the listing for path.
func (c *Cache) PutReadDir(path string, entries []tree.FsEntry) {
	c.readDir.put(pathutil.Normalize(path), entries)
}

// Invalidate drops path's stat and readDir entries, and its parent's
// readDir entry, matching spec.md §4.4: "invalidates both entries for the
// path AND its parent's readDir entry."
func (c *Cache) Invalidate(path string) {
	norm := pathutil.Normalize(path)
	c.stat.delete(norm)
	c.readDir.delete(norm)
	c.readDir.delete(pathutil.Dir(norm))
}

// InvalidatePrefix clears every entry (in both maps) whose path is
// prefixed by prefix, used on Unmount (spec.md §4.4: "Unmount clears all
// entries whose path is prefixed by the mount's virtual path").
func (c *Cache) InvalidatePrefix(prefix string) {
	norm := pathutil.Normalize(prefix)
	c.stat.deletePrefix(norm)
	c.readDir.deletePrefix(norm)
}

// Clear empties both maps.
func (c *Cache) Clear() {
	c.stat.clear()
	c.readDir.clear()
}

// StatLen and ReadDirLen report the current entry count of each map, for
// diagnostics.
func (c *Cache) StatLen() int    { return c.stat.len() }
func (c *Cache) ReadDirLen() int { return c.readDir.len() }
