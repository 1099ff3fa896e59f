package cache

// Transactional stages a session's writes against a shared cache. Writes
// become visible to the shared store only on Commit; Rollback discards the
// buffer and releases any blocking-miss locks.
type Transactional struct {
	delegate      Cache
	clearOnCommit bool
	toAdd         map[string]any
	missed        map[string]bool
}

// NewTransactional wraps a shared cache with a session staging buffer.
func NewTransactional(delegate Cache) *Transactional {
	return &Transactional{
		delegate: delegate,
		toAdd:    map[string]any{},
		missed:   map[string]bool{},
	}
}

func (c *Transactional) ID() string { return c.delegate.ID() }

func (c *Transactional) Get(key any) any {
	v := c.delegate.Get(key)
	if v == nil {
		c.missed[KeyOf(key)] = true
	}
	if c.clearOnCommit {
		return nil
	}
	return v
}

func (c *Transactional) Put(key, value any) {
	c.toAdd[KeyOf(key)] = value
}

func (c *Transactional) Remove(key any) any { return nil }

// Clear marks the delegate for clearing at commit and drops staged writes.
func (c *Transactional) Clear() {
	c.clearOnCommit = true
	c.toAdd = map[string]any{}
}

func (c *Transactional) Size() int { return c.delegate.Size() }

// Commit publishes the staged writes.
func (c *Transactional) Commit() {
	if c.clearOnCommit {
		c.delegate.Clear()
	}
	c.flush()
	c.reset()
}

// Rollback discards the staged writes.
func (c *Transactional) Rollback() {
	for k := range c.missed {
		c.delegate.Remove(k)
	}
	c.reset()
}

func (c *Transactional) flush() {
	for k, v := range c.toAdd {
		c.delegate.Put(k, v)
	}
	for k := range c.missed {
		if _, staged := c.toAdd[k]; !staged {
			c.delegate.Remove(k)
		}
	}
}

func (c *Transactional) reset() {
	c.clearOnCommit = false
	c.toAdd = map[string]any{}
	c.missed = map[string]bool{}
}
