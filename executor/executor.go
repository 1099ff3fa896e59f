package executor

import (
	"errors"
	"log"

	"github.com/myfstd/gbatis/cache"
	"github.com/myfstd/gbatis/driver"
	"github.com/myfstd/gbatis/mapping"
)

// Executor runs compiled statements for one session. Implementations are
// single-threaded by construction: a session must not be shared between
// goroutines.
type Executor interface {
	Query(ms *mapping.MappedStatement, param any, bounds RowBounds) ([]any, error)
	Update(ms *mapping.MappedStatement, param any) (int64, error)
	Commit(required bool) error
	Rollback(required bool) error
	Close(forceRollback bool) error
	ClearLocalCache()
}

// Simple is the plain executor: prepare, bind, execute, map, with the
// session-local first-tier cache in front of the execute/map path.
type Simple struct {
	cfg  *mapping.Configuration
	conn driver.Connection
	tx   driver.Transaction

	localCache *cache.Perpetual
	closed     bool
}

// NewSimple returns an executor over an open connection.
func NewSimple(cfg *mapping.Configuration, conn driver.Connection) *Simple {
	return &Simple{cfg: cfg, conn: conn, localCache: cache.NewPerpetual("LocalCache")}
}

// CreateCacheKey folds the invocation identity: statement id, pagination,
// final SQL, every bound value in order, and the environment id.
func CreateCacheKey(cfg *mapping.Configuration, ms *mapping.MappedStatement, bs *mapping.BoundSql, bounds RowBounds) (*cache.CacheKey, error) {
	key := cache.NewCacheKey(ms.ID, bounds.Offset, bounds.Limit, bs.SQL)
	for _, pm := range bs.ParameterMappings {
		if pm.Mode == mapping.ModeOut {
			continue
		}
		v, err := boundValue(cfg, ms, bs, pm)
		if err != nil {
			return nil, err
		}
		key.Update(v)
	}
	if cfg.Environment != "" {
		key.Update(cfg.Environment)
	}
	return key, nil
}

func (e *Simple) Query(ms *mapping.MappedStatement, param any, bounds RowBounds) ([]any, error) {
	if e.closed {
		return nil, errors.New("executor: session is closed")
	}
	if e.cfg.Settings.SafeRowBoundsEnabled && !bounds.IsDefault() {
		return nil, &BindingError{StatementID: ms.ID, Detail: "row bounds are disabled by safeRowBoundsEnabled"}
	}
	bs, err := ms.Source.BoundSQL(param)
	if err != nil {
		return nil, &BindingError{StatementID: ms.ID, Err: err}
	}
	key, err := CreateCacheKey(e.cfg, ms, bs, bounds)
	if err != nil {
		return nil, err
	}
	if ms.FlushCache {
		e.ClearLocalCache()
	}
	if cached := e.localCache.Get(key); cached != nil {
		return cached.([]any), nil
	}
	list, err := e.doQuery(ms, bs, bounds)
	if err != nil {
		return nil, err
	}
	e.localCache.Put(key, list)
	if e.cfg.Settings.LocalCacheScope == mapping.ScopeStatement {
		e.ClearLocalCache()
	}
	return list, nil
}

func (e *Simple) doQuery(ms *mapping.MappedStatement, bs *mapping.BoundSql, bounds RowBounds) ([]any, error) {
	st, err := e.prepare(ms, bs)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	cursor, err := st.Query()
	if err != nil {
		return nil, e.executionError(ms, bs, err)
	}
	defer cursor.Close()
	handler := NewResultSetHandler(e.cfg, e, ms, bounds)
	return handler.HandleResultSets(cursor)
}

func (e *Simple) prepare(ms *mapping.MappedStatement, bs *mapping.BoundSql) (driver.Statement, error) {
	if err := e.ensureTx(); err != nil {
		return nil, e.executionError(ms, bs, err)
	}
	log.Printf("gbatis: ==> %s: %s", ms.ID, bs.SQL)
	st, err := e.conn.Prepare(bs.SQL)
	if err != nil {
		return nil, e.executionError(ms, bs, err)
	}
	if ms.Timeout > 0 {
		st.SetTimeout(ms.Timeout)
	}
	if ms.FetchSize > 0 {
		st.SetFetchSize(ms.FetchSize)
	}
	if err := NewParameterHandler(e.cfg, ms, bs).BindTo(st); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func (e *Simple) Update(ms *mapping.MappedStatement, param any) (int64, error) {
	if e.closed {
		return 0, errors.New("executor: session is closed")
	}
	e.ClearLocalCache()
	if ms.SelectKey != nil && ms.SelectKeyBefore {
		if err := e.runSelectKey(ms, param); err != nil {
			return 0, err
		}
	}
	bs, err := ms.Source.BoundSQL(param)
	if err != nil {
		return 0, &BindingError{StatementID: ms.ID, Err: err}
	}
	st, err := e.prepare(ms, bs)
	if err != nil {
		return 0, err
	}
	defer st.Close()
	res, err := st.Exec()
	if err != nil {
		return 0, e.executionError(ms, bs, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, e.executionError(ms, bs, err)
	}
	if ms.UseGeneratedKeys && ms.KeyProperty != "" && param != nil {
		id, err := res.LastInsertID()
		if err == nil {
			if err := e.cfg.NewMetaObject(param).SetValue(ms.KeyProperty, id); err != nil {
				return 0, &BindingError{StatementID: ms.ID, Property: ms.KeyProperty, Err: err}
			}
		}
	}
	if ms.SelectKey != nil && !ms.SelectKeyBefore {
		if err := e.runSelectKey(ms, param); err != nil {
			return 0, err
		}
	}
	return rows, nil
}

// runSelectKey executes the companion key statement and writes its single
// value into the parameter's key property.
func (e *Simple) runSelectKey(ms *mapping.MappedStatement, param any) error {
	key := ms.SelectKey
	list, err := e.Query(key, param, DefaultRowBounds())
	if err != nil {
		return err
	}
	if len(list) == 0 || param == nil || key.KeyProperty == "" {
		return nil
	}
	if err := e.cfg.NewMetaObject(param).SetValue(key.KeyProperty, list[0]); err != nil {
		return &BindingError{StatementID: ms.ID, Property: key.KeyProperty, Err: err}
	}
	return nil
}

func (e *Simple) executionError(ms *mapping.MappedStatement, bs *mapping.BoundSql, err error) error {
	values, verr := NewParameterHandler(e.cfg, ms, bs).BoundValues()
	if verr != nil {
		values = nil
	}
	return &ExecutionError{StatementID: ms.ID, SQL: bs.SQL, Values: values, Err: err}
}

func (e *Simple) ensureTx() error {
	if e.tx != nil {
		return nil
	}
	tx, err := e.conn.Begin()
	if err != nil {
		return err
	}
	e.tx = tx
	return nil
}

func (e *Simple) Commit(required bool) error {
	if e.closed {
		return errors.New("executor: session is closed")
	}
	e.ClearLocalCache()
	if required && e.tx != nil {
		err := e.tx.Commit()
		e.tx = nil
		return err
	}
	return nil
}

func (e *Simple) Rollback(required bool) error {
	if e.closed {
		return nil
	}
	e.ClearLocalCache()
	if required && e.tx != nil {
		err := e.tx.Rollback()
		e.tx = nil
		return err
	}
	return nil
}

func (e *Simple) Close(forceRollback bool) error {
	if e.closed {
		return nil
	}
	if forceRollback {
		_ = e.Rollback(true)
	}
	e.closed = true
	return e.conn.Close()
}

// ClearLocalCache empties the first tier.
func (e *Simple) ClearLocalCache() {
	if !e.closed {
		e.localCache.Clear()
	}
}
