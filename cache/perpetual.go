package cache

// Perpetual is the storage layer at the bottom of every decorator chain: an
// unbounded, unsynchronized map.
type Perpetual struct {
	id    string
	store map[string]any
}

// NewPerpetual returns storage owned by the given namespace.
func NewPerpetual(id string) *Perpetual {
	return &Perpetual{id: id, store: map[string]any{}}
}

func (c *Perpetual) ID() string { return c.id }

func (c *Perpetual) Put(key, value any) { c.store[KeyOf(key)] = value }

func (c *Perpetual) Get(key any) any { return c.store[KeyOf(key)] }

func (c *Perpetual) Remove(key any) any {
	k := KeyOf(key)
	v, ok := c.store[k]
	if !ok {
		return nil
	}
	delete(c.store, k)
	return v
}

func (c *Perpetual) Clear() { c.store = map[string]any{} }

func (c *Perpetual) Size() int { return len(c.store) }
