package executor

import "math"

// RowBounds paginates by skipping offset rows and stopping after limit while
// consuming the cursor. It participates in the cache key.
type RowBounds struct {
	Offset int
	Limit  int
}

// DefaultRowBounds reads everything.
func DefaultRowBounds() RowBounds { return RowBounds{Offset: 0, Limit: math.MaxInt32} }

// IsDefault reports an unbounded read.
func (b RowBounds) IsDefault() bool { return b.Offset == 0 && b.Limit == math.MaxInt32 }
