package cache

import (
	"container/list"
	"sync"
)

// LRU evicts the least-recently-read entry once the delegate passes the
// bound; ties fall to insertion order. The recency list keeps its own lock so
// reads stay safe under the outer wrapper's shared lock.
type LRU struct {
	delegate Cache
	size     int

	mu    sync.Mutex
	order *list.List // front = most recent
	index map[string]*list.Element
}

// DefaultLRUSize bounds an LRU cache that declares no size.
const DefaultLRUSize = 1024

// NewLRU wraps delegate with an access-ordered bound.
func NewLRU(delegate Cache, size int) *LRU {
	if size <= 0 {
		size = DefaultLRUSize
	}
	return &LRU{
		delegate: delegate,
		size:     size,
		order:    list.New(),
		index:    map[string]*list.Element{},
	}
}

func (c *LRU) ID() string { return c.delegate.ID() }

func (c *LRU) Put(key, value any) {
	c.delegate.Put(key, value)
	if eldest := c.cycle(KeyOf(key)); eldest != "" {
		c.delegate.Remove(eldest)
	}
}

func (c *LRU) Get(key any) any {
	c.touch(KeyOf(key))
	return c.delegate.Get(key)
}

func (c *LRU) Remove(key any) any {
	c.mu.Lock()
	if e, ok := c.index[KeyOf(key)]; ok {
		c.order.Remove(e)
		delete(c.index, KeyOf(key))
	}
	c.mu.Unlock()
	return c.delegate.Remove(key)
}

func (c *LRU) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.index = map[string]*list.Element{}
	c.mu.Unlock()
	c.delegate.Clear()
}

func (c *LRU) Size() int { return c.delegate.Size() }

func (c *LRU) touch(k string) {
	c.mu.Lock()
	if e, ok := c.index[k]; ok {
		c.order.MoveToFront(e)
	}
	c.mu.Unlock()
}

// cycle records the key as most recent and returns the key to evict, if any.
func (c *LRU) cycle(k string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index[k]; ok {
		c.order.MoveToFront(e)
	} else {
		c.index[k] = c.order.PushFront(k)
	}
	if c.order.Len() <= c.size {
		return ""
	}
	back := c.order.Back()
	c.order.Remove(back)
	eldest := back.Value.(string)
	delete(c.index, eldest)
	return eldest
}
