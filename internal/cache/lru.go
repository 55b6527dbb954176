package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/indexmerge/resource"
)

// LRU is a byte-bounded least recently used BlockCache.
type LRU struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[Key]*list.Element
	order    *list.List
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   Key
	value []byte
}

// NewLRU creates a cache holding up to capacity bytes. rc may be nil.
func NewLRU(capacity int64, rc *resource.Controller) *LRU {
	return &LRU{
		capacity: capacity,
		items:    make(map[Key]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

func (c *LRU) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches b. Blocks larger than the capacity, or that the controller
// cannot admit, are not cached.
func (c *LRU) Set(_ context.Context, key Key, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	newSize := int64(len(b))
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		oldSize := int64(len(e.value))
		if newSize > oldSize && !c.rc.TryAcquireMemory(newSize-oldSize) {
			return
		}
		if newSize < oldSize {
			c.rc.ReleaseMemory(oldSize - newSize)
		}
		c.order.MoveToFront(el)
		e.value = b
		c.size += newSize - oldSize
		c.evictOver(c.capacity)
		return
	}

	if newSize > c.capacity {
		return
	}
	c.evictOver(c.capacity - newSize)
	if !c.rc.TryAcquireMemory(newSize) {
		return
	}
	c.items[key] = c.order.PushFront(&entry{key: key, value: b})
	c.size += newSize
}

func (c *LRU) InvalidateBlob(blob string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drop []*list.Element
	for key, el := range c.items {
		if key.Blob == blob {
			drop = append(drop, el)
		}
	}
	for _, el := range drop {
		c.remove(el)
	}
}

func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the cached bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRU) evictOver(limit int64) {
	for c.size > limit {
		el := c.order.Back()
		if el == nil {
			return
		}
		c.remove(el)
	}
}

func (c *LRU) remove(el *list.Element) {
	c.order.Remove(el)
	e := el.Value.(*entry)
	delete(c.items, e.key)
	c.size -= int64(len(e.value))
	c.rc.ReleaseMemory(int64(len(e.value)))
}
