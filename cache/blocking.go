package cache

import "sync"

// Blocking serializes cache misses per key: the first reader of an absent key
// holds the key's lock until it stores a value (or the transaction rolls the
// miss back), so concurrent sessions do not run the same query twice.
type Blocking struct {
	delegate Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBlocking wraps delegate with per-key miss locking.
func NewBlocking(delegate Cache) *Blocking {
	return &Blocking{delegate: delegate, locks: map[string]*sync.Mutex{}}
}

func (c *Blocking) ID() string { return c.delegate.ID() }

func (c *Blocking) lockFor(k string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

func (c *Blocking) Get(key any) any {
	k := KeyOf(key)
	l := c.lockFor(k)
	l.Lock()
	v := c.delegate.Get(key)
	if v != nil {
		l.Unlock()
	}
	// on miss the lock stays held until Put or Remove for this key
	return v
}

func (c *Blocking) Put(key, value any) {
	c.delegate.Put(key, value)
	c.release(KeyOf(key))
}

// Remove releases the key's lock without storing; it does not delete from the
// delegate, matching the miss-rollback use.
func (c *Blocking) Remove(key any) any {
	c.release(KeyOf(key))
	return nil
}

func (c *Blocking) release(k string) {
	c.mu.Lock()
	l, ok := c.locks[k]
	c.mu.Unlock()
	if ok {
		l.TryLock()
		l.Unlock()
	}
}

func (c *Blocking) Clear() { c.delegate.Clear() }

func (c *Blocking) Size() int { return c.delegate.Size() }
