// Package cache implements the process-wide tile and metadata cache
// (spec §4.5): a map keyed by string plus a doubly-linked recency list,
// both protected by a single mutex. Ported from
// original_source/core/src/cache/lru_cache.cc, with its void*-and-size
// items replaced by Item, a byte slice plus its declared size.
package cache

import (
	"container/list"
	"sync"
)

// Item is one cached value: its payload bytes and declared size. Size
// is tracked separately from len(Bytes) so a caller-owned object (one
// the cache does not own) can still participate in the size budget.
type Item struct {
	Bytes []byte
	Size  uint64
}

type entry struct {
	key  string
	item Item
}

// EvictFunc is invoked once per evicted or cleared item, while the
// cache's mutex is held; it must not call back into the cache (spec
// §4.5: "it must not call back into the cache"). A nil EvictFunc means
// the cache owns the bytes and nothing further is needed on eviction.
type EvictFunc func(key string, item Item)

// LRU is a bounded, thread-safe least-recently-used cache.
type LRU struct {
	mu      sync.Mutex
	maxSize uint64
	size    uint64
	ll      *list.List
	index   map[string]*list.Element
	onEvict EvictFunc
}

// New creates an LRU with the given byte-size capacity and optional
// eviction callback.
func New(maxSize uint64, onEvict EvictFunc) *LRU {
	return &LRU{
		maxSize: maxSize,
		ll:      list.New(),
		index:   make(map[string]*list.Element),
		onEvict: onEvict,
	}
}

// Insert stores item under key. If item.Size exceeds the cache's
// capacity the insert is a silent no-op (spec §4.5: "no-op (success)").
// Otherwise entries are evicted from the head until there is room, then
// the new item is appended at the tail (most recently used).
func (c *LRU) Insert(key string, item Item) {
	if item.Size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		old := el.Value.(*entry)
		c.size -= old.item.Size
		c.evictLocked(old.key, old.item)
		c.ll.Remove(el)
		delete(c.index, key)
	}

	for c.size+item.Size > c.maxSize {
		c.evictHeadLocked()
	}

	el := c.ll.PushBack(&entry{key: key, item: item})
	c.index[key] = el
	c.size += item.Size
}

// Read looks up key, copying its bytes into a fresh slice and promoting
// it to the most-recently-used position. The returned bool reports a
// hit.
func (c *LRU) Read(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	out := make([]byte, len(e.item.Bytes))
	copy(out, e.item.Bytes)
	c.ll.MoveToBack(el)
	return out, true
}

// ReadRange copies [off, off+nbytes) from the cached item at key into a
// fresh slice, promoting it to most-recently-used. Fails if the range
// exceeds the cached object's size (spec §4.5).
func (c *LRU) ReadRange(key string, off, nbytes uint64) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if off+nbytes > uint64(len(e.item.Bytes)) {
		return nil, false, errOutOfRange
	}
	out := make([]byte, nbytes)
	copy(out, e.item.Bytes[off:off+nbytes])
	c.ll.MoveToBack(el)
	return out, true, nil
}

// Clear drops every entry, invoking the eviction callback for each
// (spec §4.5).
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		c.evictLocked(e.key, e.item)
	}
	c.ll.Init()
	c.index = make(map[string]*list.Element)
	c.size = 0
}

// Size returns the current total size of cached items.
func (c *LRU) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the current number of cached items.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU) evictHeadLocked() {
	el := c.ll.Front()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.size -= e.item.Size
	c.evictLocked(e.key, e.item)
	c.ll.Remove(el)
	delete(c.index, e.key)
}

func (c *LRU) evictLocked(key string, item Item) {
	if c.onEvict != nil {
		c.onEvict(key, item)
	}
}

type rangeError struct{ msg string }

func (e *rangeError) Error() string { return e.msg }

var errOutOfRange = &rangeError{"cache read range out of bounds"}
