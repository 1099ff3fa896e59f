package executor

import "sync"

// deferredLoad is the one-shot resolver handed out for lazy nested queries.
// The first Get runs the sub-select in the owning session; every later call
// returns the same value.
type deferredLoad struct {
	once sync.Once
	load func() (any, error)

	value any
	err   error
}

func newDeferredLoad(load func() (any, error)) *deferredLoad {
	return &deferredLoad{load: load}
}

// Get resolves on first use, then delegates forever after.
func (d *deferredLoad) Get() (any, error) {
	d.once.Do(func() {
		d.value, d.err = d.load()
		d.load = nil
	})
	return d.value, d.err
}
