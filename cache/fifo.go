package cache

import (
	"container/list"
	"sync"
)

// FIFO evicts in insertion order once the delegate passes the bound.
type FIFO struct {
	delegate Cache
	size     int

	mu    sync.Mutex
	queue *list.List
	seen  map[string]bool
}

// NewFIFO wraps delegate with an insertion-ordered bound.
func NewFIFO(delegate Cache, size int) *FIFO {
	if size <= 0 {
		size = DefaultLRUSize
	}
	return &FIFO{delegate: delegate, size: size, queue: list.New(), seen: map[string]bool{}}
}

func (c *FIFO) ID() string { return c.delegate.ID() }

func (c *FIFO) Put(key, value any) {
	k := KeyOf(key)
	c.mu.Lock()
	var evict string
	if !c.seen[k] {
		c.queue.PushBack(k)
		c.seen[k] = true
		if c.queue.Len() > c.size {
			front := c.queue.Front()
			c.queue.Remove(front)
			evict = front.Value.(string)
			delete(c.seen, evict)
		}
	}
	c.mu.Unlock()
	if evict != "" {
		c.delegate.Remove(evict)
	}
	c.delegate.Put(key, value)
}

func (c *FIFO) Get(key any) any { return c.delegate.Get(key) }

func (c *FIFO) Remove(key any) any { return c.delegate.Remove(key) }

func (c *FIFO) Clear() {
	c.mu.Lock()
	c.queue.Init()
	c.seen = map[string]bool{}
	c.mu.Unlock()
	c.delegate.Clear()
}

func (c *FIFO) Size() int { return c.delegate.Size() }
