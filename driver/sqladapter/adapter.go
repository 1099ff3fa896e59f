// Package sqladapter adapts a database/sql pool to the driver contract the
// executor consumes.
package sqladapter

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/myfstd/gbatis/driver"
)

// Conn wraps a *sql.DB as a driver.Connection. While a transaction is open,
// statements prepare against it; otherwise they run on the pool.
type Conn struct {
	db *sql.DB
	tx *sql.Tx
}

// Wrap adapts an opened pool.
func Wrap(db *sql.DB) *Conn { return &Conn{db: db} }

// DB exposes the underlying pool.
func (c *Conn) DB() *sql.DB { return c.db }

func (c *Conn) Prepare(sqlText string) (driver.Statement, error) {
	return &stmt{conn: c, sql: sqlText}, nil
}

func (c *Conn) Begin() (driver.Transaction, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return &txn{conn: c, tx: tx}, nil
}

func (c *Conn) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.db.Close()
}

type txn struct {
	conn *Conn
	tx   *sql.Tx
}

func (t *txn) Commit() error {
	t.conn.tx = nil
	return t.tx.Commit()
}

func (t *txn) Rollback() error {
	t.conn.tx = nil
	return t.tx.Rollback()
}

// stmt buffers bound values until execution. Ordinals are 1-based.
type stmt struct {
	conn    *Conn
	sql     string
	args    []any
	timeout time.Duration
}

func (s *stmt) Bind(ordinal int, value any, dbType string) error {
	if ordinal < 1 {
		return errors.New("sqladapter: ordinals are 1-based")
	}
	for len(s.args) < ordinal {
		s.args = append(s.args, nil)
	}
	s.args[ordinal-1] = value
	return nil
}

func (s *stmt) BindOut(ordinal int, dbType string) error {
	return errors.New("sqladapter: output parameters are not supported by database/sql")
}

func (s *stmt) SetTimeout(seconds int) { s.timeout = time.Duration(seconds) * time.Second }

// SetFetchSize is accepted and ignored: database/sql drivers manage their own
// row buffering.
func (s *stmt) SetFetchSize(rows int) {}

func (s *stmt) ctx() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.Background(), func() {}
}

func (s *stmt) Query() (driver.Cursor, error) {
	ctx, cancel := s.ctx()
	var rows *sql.Rows
	var err error
	if s.conn.tx != nil {
		rows, err = s.conn.tx.QueryContext(ctx, s.sql, s.args...)
	} else {
		rows, err = s.conn.db.QueryContext(ctx, s.sql, s.args...)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	cur := &cursor{rows: rows, cancel: cancel}
	cur.reload()
	return cur, nil
}

func (s *stmt) Exec() (driver.Result, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	var res sql.Result
	var err error
	if s.conn.tx != nil {
		res, err = s.conn.tx.ExecContext(ctx, s.sql, s.args...)
	} else {
		res, err = s.conn.db.ExecContext(ctx, s.sql, s.args...)
	}
	if err != nil {
		return nil, err
	}
	return result{res}, nil
}

func (s *stmt) Close() error { return nil }

type result struct{ res sql.Result }

func (r result) LastInsertID() (int64, error) { return r.res.LastInsertId() }
func (r result) RowsAffected() (int64, error) { return r.res.RowsAffected() }

// cursor scans each row into an any-cell buffer so columns are readable by
// ordinal without declared destination types.
type cursor struct {
	rows    *sql.Rows
	cancel  context.CancelFunc
	columns []string
	cells   []any
	err     error
}

func (c *cursor) reload() {
	cols, err := c.rows.Columns()
	if err != nil {
		c.err = err
		return
	}
	c.columns = cols
	c.cells = make([]any, len(cols))
}

func (c *cursor) Columns() []string { return c.columns }

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	ptrs := make([]any, len(c.cells))
	for i := range c.cells {
		ptrs[i] = &c.cells[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *cursor) Get(index int) (any, error) {
	if index < 0 || index >= len(c.cells) {
		return nil, errors.New("sqladapter: column ordinal out of range")
	}
	return c.cells[index], nil
}

func (c *cursor) NextResultSet() bool {
	if !c.rows.NextResultSet() {
		return false
	}
	c.reload()
	return c.err == nil
}

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close() error {
	defer c.cancel()
	return c.rows.Close()
}
