package darkrecon

import (
	"encoding/json"
	"sync"
	"time"
)

// memoryBackend is an in-memory cache backend with an optional LRU bound.
type memoryBackend struct {
	mu   sync.Mutex
	lru  *lruStore
	opt  MemoryBackendOptions
	done chan struct{}
}

type MemoryBackendOptions struct {
	// Max number of entries to keep, 0 means no limit. When the limit is
	// reached the least-recently used entry is dropped.
	Capacity int

	// How often expired entries are swept out, default 1 minute.
	GCPeriod time.Duration
}

var _ CacheBackend = (*memoryBackend)(nil)

func NewMemoryBackend(opt MemoryBackendOptions) *memoryBackend {
	if opt.GCPeriod == 0 {
		opt.GCPeriod = time.Minute
	}
	b := &memoryBackend{
		lru:  newLRUStore(opt.Capacity),
		opt:  opt,
		done: make(chan struct{}),
	}
	go b.startGC(opt.GCPeriod)
	return b
}

func (b *memoryBackend) Store(key string, e *Entry) error {
	b.mu.Lock()
	b.lru.add(key, e)
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) Lookup(key string) (*Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.lru.get(key)
	if e == nil {
		return nil, false
	}
	return e, true
}

func (b *memoryBackend) Evict(key string) {
	b.mu.Lock()
	b.lru.delete(key)
	b.mu.Unlock()
}

func (b *memoryBackend) DeleteFunc(fn func(e *Entry) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.deleteFunc(fn)
}

func (b *memoryBackend) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.size()
}

func (b *memoryBackend) Bytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.bytes
}

func (b *memoryBackend) Close() error {
	close(b.done)
	return nil
}

// Sweep out expired entries regularly. Expired entries that are looked up
// before the sweep reaches them are evicted by the cache front on read.
func (b *memoryBackend) startGC(period time.Duration) {
	for {
		select {
		case <-b.done:
			return
		case <-time.After(period):
		}
		now := time.Now()
		var total, removed int
		b.mu.Lock()
		removed = b.lru.deleteFunc(func(e *Entry) bool {
			return now.After(e.Expiry())
		})
		total = b.lru.size()
		b.mu.Unlock()

		Log.WithField("total", total).WithField("removed", removed).Debug("cache garbage collection")
	}
}

// lruStore keeps entries in a map with an intrusive doubly-linked list
// ordered by recency of use.
type lruStore struct {
	maxItems   int
	items      map[string]*lruItem
	head, tail *lruItem
	bytes      int64
}

type lruItem struct {
	key        string
	entry      *Entry
	size       int64
	prev, next *lruItem
}

func newLRUStore(capacity int) *lruStore {
	head := new(lruItem)
	tail := new(lruItem)
	head.next = tail
	tail.prev = head
	return &lruStore{
		maxItems: capacity,
		items:    make(map[string]*lruItem),
		head:     head,
		tail:     tail,
	}
}

func (c *lruStore) add(key string, e *Entry) {
	size := entrySize(key, e)
	if item := c.touch(key); item != nil {
		c.bytes += size - item.size
		item.entry = e
		item.size = size
		return
	}
	item := &lruItem{
		key:   key,
		entry: e,
		size:  size,
		next:  c.head.next,
		prev:  c.head,
	}
	c.head.next.prev = item
	c.head.next = item
	c.items[key] = item
	c.bytes += size
	c.resize()
}

func (c *lruStore) get(key string) *Entry {
	item := c.touch(key)
	if item == nil {
		return nil
	}
	return item.entry
}

// Move the item for the key to the top of the list, if present.
func (c *lruStore) touch(key string) *lruItem {
	item, ok := c.items[key]
	if !ok {
		return nil
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
	return item
}

func (c *lruStore) delete(key string) {
	item, ok := c.items[key]
	if !ok {
		return
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	c.bytes -= item.size
	delete(c.items, key)
}

func (c *lruStore) deleteFunc(fn func(e *Entry) bool) int {
	var removed int
	for key, item := range c.items {
		if fn(item.entry) {
			c.delete(key)
			removed++
		}
	}
	return removed
}

// Drop the least-recently used items until the store fits its capacity.
func (c *lruStore) resize() {
	if c.maxItems <= 0 {
		return
	}
	for len(c.items) > c.maxItems {
		last := c.tail.prev
		if last == c.head {
			return
		}
		c.delete(last.key)
	}
}

func (c *lruStore) size() int {
	return len(c.items)
}

// Approximate encoded size of an entry, used for cache stats.
func entrySize(key string, e *Entry) int64 {
	b, err := json.Marshal(e)
	if err != nil {
		return int64(len(key))
	}
	return int64(len(key) + len(b))
}
