package cache

import "sync"

// Synchronized is the outermost decorator of every shared chain: reads take
// the shared lock, writes the exclusive lock.
type Synchronized struct {
	delegate Cache
	mu       sync.RWMutex
}

// NewSynchronized wraps delegate for concurrent use.
func NewSynchronized(delegate Cache) *Synchronized {
	return &Synchronized{delegate: delegate}
}

func (c *Synchronized) ID() string { return c.delegate.ID() }

func (c *Synchronized) Put(key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Put(key, value)
}

func (c *Synchronized) Get(key any) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate.Get(key)
}

func (c *Synchronized) Remove(key any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Remove(key)
}

func (c *Synchronized) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}

func (c *Synchronized) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate.Size()
}
