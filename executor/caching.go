package executor

import (
	"github.com/myfstd/gbatis/cache"
	"github.com/myfstd/gbatis/mapping"
)

// Caching layers the shared second-tier cache over a delegate executor.
// Reads check the namespace cache through the session's transactional view;
// writes stage there until commit.
type Caching struct {
	delegate Executor
	cfg      *mapping.Configuration
	tcm      map[cache.Cache]*cache.Transactional
}

// NewCaching wraps delegate with second-tier caching.
func NewCaching(cfg *mapping.Configuration, delegate Executor) *Caching {
	return &Caching{delegate: delegate, cfg: cfg, tcm: map[cache.Cache]*cache.Transactional{}}
}

func (e *Caching) tx(c cache.Cache) *cache.Transactional {
	t, ok := e.tcm[c]
	if !ok {
		t = cache.NewTransactional(c)
		e.tcm[c] = t
	}
	return t
}

func (e *Caching) Query(ms *mapping.MappedStatement, param any, bounds RowBounds) ([]any, error) {
	c := ms.Cache
	if c == nil || !e.cfg.Settings.CacheEnabled {
		return e.delegate.Query(ms, param, bounds)
	}
	if ms.FlushCache {
		e.tx(c).Clear()
	}
	if !ms.UseCache {
		return e.delegate.Query(ms, param, bounds)
	}
	if err := ensureNoOutParams(ms, param); err != nil {
		return nil, err
	}
	bs, err := ms.Source.BoundSQL(param)
	if err != nil {
		return nil, &BindingError{StatementID: ms.ID, Err: err}
	}
	key, err := CreateCacheKey(e.cfg, ms, bs, bounds)
	if err != nil {
		return nil, err
	}
	if cached := e.tx(c).Get(key); cached != nil {
		if list, ok := cached.([]any); ok {
			return list, nil
		}
	}
	list, err := e.delegate.Query(ms, param, bounds)
	if err != nil {
		return nil, err
	}
	e.tx(c).Put(key, list)
	return list, nil
}

// ensureNoOutParams rejects caching statements with output parameters, whose
// results flow outside the row list.
func ensureNoOutParams(ms *mapping.MappedStatement, param any) error {
	bs, err := ms.Source.BoundSQL(param)
	if err != nil {
		return &BindingError{StatementID: ms.ID, Err: err}
	}
	for _, pm := range bs.ParameterMappings {
		if pm.Mode != mapping.ModeIn {
			return &BindingError{StatementID: ms.ID, Property: pm.Property,
				Detail: "caching statements with OUT parameters is not supported"}
		}
	}
	return nil
}

func (e *Caching) Update(ms *mapping.MappedStatement, param any) (int64, error) {
	if ms.Cache != nil && ms.FlushCache {
		e.tx(ms.Cache).Clear()
	}
	return e.delegate.Update(ms, param)
}

func (e *Caching) Commit(required bool) error {
	if err := e.delegate.Commit(required); err != nil {
		return err
	}
	for _, t := range e.tcm {
		t.Commit()
	}
	return nil
}

func (e *Caching) Rollback(required bool) error {
	err := e.delegate.Rollback(required)
	for _, t := range e.tcm {
		t.Rollback()
	}
	return err
}

func (e *Caching) Close(forceRollback bool) error {
	if forceRollback {
		for _, t := range e.tcm {
			t.Rollback()
		}
	} else {
		for _, t := range e.tcm {
			t.Commit()
		}
	}
	return e.delegate.Close(forceRollback)
}

func (e *Caching) ClearLocalCache() { e.delegate.ClearLocalCache() }
