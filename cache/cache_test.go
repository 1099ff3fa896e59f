package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// after 1025 inserts into a bound of 1024 with every other key touched, the
// one untouched key is the eviction victim
func TestLRUEvictsLeastRecentlyRead(t *testing.T) {
	c := NewLRU(NewPerpetual("ns"), 1024)
	for i := 0; i < 1024; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	// touch everything except k1
	for i := 0; i < 1024; i++ {
		if i != 1 {
			require.NotNil(t, c.Get(fmt.Sprintf("k%d", i)))
		}
	}
	c.Put("k1024", 1024)

	assert.Nil(t, c.Get("k1"))
	assert.Equal(t, 1024, c.Size())
	for i := 0; i < 1025; i++ {
		if i != 1 {
			assert.NotNil(t, c.Get(fmt.Sprintf("k%d", i)), "k%d", i)
		}
	}
}

func TestFIFOEvictsInInsertionOrder(t *testing.T) {
	c := NewFIFO(NewPerpetual("ns"), 2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // reads do not refresh FIFO order
	c.Put("c", 3)
	assert.Nil(t, c.Get("a"))
	assert.NotNil(t, c.Get("b"))
	assert.NotNil(t, c.Get("c"))
}

func TestScheduledFlush(t *testing.T) {
	c := NewScheduled(NewPerpetual("ns"), time.Millisecond)
	c.Put("a", 1)
	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, c.Get("a"))
	assert.Equal(t, 0, c.Size())
}

func TestTransactionalVisibility(t *testing.T) {
	shared := NewSynchronized(NewLRU(NewPerpetual("ns"), 0))
	writer := NewTransactional(shared)
	reader := NewTransactional(shared)

	writer.Put("k", "v")
	// staged writes are invisible to other sessions before commit
	assert.Nil(t, reader.Get("k"))

	writer.Commit()
	assert.Equal(t, "v", reader.Get("k"))
}

func TestTransactionalRollbackDiscards(t *testing.T) {
	shared := NewSynchronized(NewPerpetual("ns"))
	tx := NewTransactional(shared)
	tx.Put("k", "v")
	tx.Rollback()
	assert.Nil(t, shared.Get("k"))
}

func TestTransactionalClearOnCommit(t *testing.T) {
	shared := NewSynchronized(NewPerpetual("ns"))
	shared.Put("old", 1)
	tx := NewTransactional(shared)
	tx.Clear()
	// the clear is staged: other sessions still see the entry
	assert.Equal(t, 1, shared.Get("old"))
	tx.Commit()
	assert.Nil(t, shared.Get("old"))
}

func TestCacheKeySliceArrayEquality(t *testing.T) {
	a := NewCacheKey("stmt", 0, 10, "sql")
	a.Update([]int{3, 4, 5})
	b := NewCacheKey("stmt", 0, 10, "sql")
	b.Update([3]int{3, 4, 5})
	assert.True(t, a.Equals(b))
	assert.Equal(t, a.String(), b.String())

	c := NewCacheKey("stmt", 0, 10, "sql")
	c.Update([]int{3, 4, 6})
	assert.False(t, a.Equals(c))
}

func TestCacheKeyOrderMatters(t *testing.T) {
	a := NewCacheKey(1, 2)
	b := NewCacheKey(2, 1)
	assert.False(t, a.Equals(b))
}

func TestWeakReturnsStoredValue(t *testing.T) {
	c := NewWeak(NewPerpetual("ns"))
	c.Put("k", "value")
	// a value read right after its put comes back through the weak layer
	got := c.Get("k")
	assert.Equal(t, "value", got)
}
