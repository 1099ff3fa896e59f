package cache

import (
	"container/list"
	"sync"
	"weak"
)

type weakHolder struct{ value any }

// Weak stores entries behind weak pointers, keeping hard references only to
// the most recent retrievals so cold entries stay collectable. A reclaimed
// entry reads as absent.
type Weak struct {
	delegate Cache

	mu       sync.Mutex
	hard     *list.List // front = most recent retrieval
	hardSize int
}

// DefaultHardLinks is the retrieval window pinned against collection.
const DefaultHardLinks = 256

// NewWeak wraps delegate with weak-reference storage.
func NewWeak(delegate Cache) *Weak {
	return &Weak{delegate: delegate, hard: list.New(), hardSize: DefaultHardLinks}
}

// SetHardLinks adjusts the pinned-retrieval window.
func (c *Weak) SetHardLinks(n int) {
	c.mu.Lock()
	c.hardSize = n
	c.mu.Unlock()
}

func (c *Weak) ID() string { return c.delegate.ID() }

func (c *Weak) Put(key, value any) {
	h := &weakHolder{value: value}
	c.delegate.Put(key, weak.Make(h))
}

func (c *Weak) Get(key any) any {
	entry := c.delegate.Get(key)
	p, ok := entry.(weak.Pointer[weakHolder])
	if !ok {
		return nil
	}
	h := p.Value()
	if h == nil {
		c.delegate.Remove(key)
		return nil
	}
	c.retain(h)
	return h.value
}

func (c *Weak) retain(h *weakHolder) {
	c.mu.Lock()
	c.hard.PushFront(h)
	for c.hard.Len() > c.hardSize {
		c.hard.Remove(c.hard.Back())
	}
	c.mu.Unlock()
}

func (c *Weak) Remove(key any) any {
	entry := c.delegate.Remove(key)
	if p, ok := entry.(weak.Pointer[weakHolder]); ok {
		if h := p.Value(); h != nil {
			return h.value
		}
	}
	return nil
}

func (c *Weak) Clear() {
	c.mu.Lock()
	c.hard.Init()
	c.mu.Unlock()
	c.delegate.Clear()
}

func (c *Weak) Size() int { return c.delegate.Size() }
