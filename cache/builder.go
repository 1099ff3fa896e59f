package cache

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Builder composes a namespace cache chain. Order is fixed: storage, then
// eviction, then the optional timed flush, readonly copying, blocking, and
// the synchronization wrapper outermost.
type Builder struct {
	id            string
	base          Cache
	eviction      string
	size          int
	flushInterval time.Duration
	readOnly      bool
	blocking      bool
}

// NewBuilder starts a chain for the namespace id.
func NewBuilder(id string) *Builder {
	return &Builder{id: id, eviction: "LRU", readOnly: false}
}

// Base replaces the storage layer, for remote backends.
func (b *Builder) Base(c Cache) *Builder { return set(b, func() { b.base = c }) }

// Eviction selects LRU, FIFO, or NONE.
func (b *Builder) Eviction(policy string) *Builder { return set(b, func() { b.eviction = policy }) }

// Size bounds the eviction decorator.
func (b *Builder) Size(n int) *Builder { return set(b, func() { b.size = n }) }

// FlushInterval adds the timed flush decorator.
func (b *Builder) FlushInterval(d time.Duration) *Builder {
	return set(b, func() { b.flushInterval = d })
}

// ReadOnly skips the defensive copy on reads.
func (b *Builder) ReadOnly(ro bool) *Builder { return set(b, func() { b.readOnly = ro }) }

// Blocking adds per-key miss locking.
func (b *Builder) Blocking(bl bool) *Builder { return set(b, func() { b.blocking = bl }) }

func set(b *Builder, f func()) *Builder { f(); return b }

// Build assembles the chain.
func (b *Builder) Build() Cache {
	var c Cache = b.base
	if c == nil {
		c = NewPerpetual(b.id)
	}
	switch b.eviction {
	case "FIFO":
		c = NewFIFO(c, b.size)
	case "NONE", "":
	case "WEAK":
		c = NewLRU(c, b.size)
		c = NewWeak(c)
	default:
		c = NewLRU(c, b.size)
	}
	if b.flushInterval > 0 {
		c = NewScheduled(c, b.flushInterval)
	}
	if !b.readOnly {
		c = NewSerialized(c)
	}
	if b.blocking {
		c = NewBlocking(c)
	}
	return NewSynchronized(c)
}

// Serialized deep-copies values through gob so read-write caches hand each
// session its own instance. Stored value types must be gob-registered.
type Serialized struct {
	delegate Cache
}

// NewSerialized wraps delegate with copy-on-read semantics.
func NewSerialized(delegate Cache) *Serialized { return &Serialized{delegate: delegate} }

func (c *Serialized) ID() string { return c.delegate.ID() }

func (c *Serialized) Put(key, value any) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		// unencodable values stay uncached rather than poisoning the chain
		return
	}
	c.delegate.Put(key, buf.Bytes())
}

func (c *Serialized) Get(key any) any {
	raw, ok := c.delegate.Get(key).([]byte)
	if !ok {
		return nil
	}
	var value any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&value); err != nil {
		return nil
	}
	return value
}

func (c *Serialized) Remove(key any) any {
	c.delegate.Remove(key)
	return nil
}

func (c *Serialized) Clear() { c.delegate.Clear() }

func (c *Serialized) Size() int { return c.delegate.Size() }
