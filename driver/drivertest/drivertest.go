// Package drivertest provides a scripted in-memory driver: tests register
// result sets per SQL fragment and assert on recorded executions.
package drivertest

import (
	"fmt"
	"strings"

	"github.com/myfstd/gbatis/driver"
)

// Call records one executed statement.
type Call struct {
	SQL      string
	Args     []any
	OutSlots []int
}

// script is one canned response.
type script struct {
	match   string
	columns []string
	rows    [][]any
	lastID  int64
	rowsAff int64
	err     error
}

// Conn is a scripted driver.Connection.
type Conn struct {
	scripts []*script

	Calls     []Call
	Commits   int
	Rollbacks int
	Closed    bool
}

// NewConn returns an empty scripted connection.
func NewConn() *Conn { return &Conn{} }

// On registers a result set for statements containing sqlFragment.
func (c *Conn) On(sqlFragment string, columns []string, rows [][]any) *Conn {
	c.scripts = append(c.scripts, &script{match: sqlFragment, columns: columns, rows: rows})
	return c
}

// OnExec registers an exec outcome for statements containing sqlFragment.
func (c *Conn) OnExec(sqlFragment string, lastID, rowsAffected int64) *Conn {
	c.scripts = append(c.scripts, &script{match: sqlFragment, lastID: lastID, rowsAff: rowsAffected})
	return c
}

// OnError registers a driver failure for statements containing sqlFragment.
func (c *Conn) OnError(sqlFragment string, err error) *Conn {
	c.scripts = append(c.scripts, &script{match: sqlFragment, err: err})
	return c
}

func (c *Conn) find(sql string) (*script, error) {
	for _, s := range c.scripts {
		if strings.Contains(sql, s.match) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("drivertest: no script matches %q", sql)
}

func (c *Conn) Prepare(sql string) (driver.Statement, error) {
	return &stmt{conn: c, sql: sql}, nil
}

func (c *Conn) Begin() (driver.Transaction, error) { return &txn{conn: c}, nil }

func (c *Conn) Close() error {
	c.Closed = true
	return nil
}

type txn struct{ conn *Conn }

func (t *txn) Commit() error {
	t.conn.Commits++
	return nil
}

func (t *txn) Rollback() error {
	t.conn.Rollbacks++
	return nil
}

type stmt struct {
	conn *Conn
	sql  string
	args []any
	outs []int
}

func (s *stmt) Bind(ordinal int, value any, dbType string) error {
	for len(s.args) < ordinal {
		s.args = append(s.args, nil)
	}
	s.args[ordinal-1] = value
	return nil
}

func (s *stmt) BindOut(ordinal int, dbType string) error {
	s.outs = append(s.outs, ordinal)
	return nil
}

func (s *stmt) SetTimeout(seconds int) {}
func (s *stmt) SetFetchSize(rows int)  {}

func (s *stmt) record() {
	s.conn.Calls = append(s.conn.Calls, Call{SQL: s.sql, Args: append([]any{}, s.args...), OutSlots: s.outs})
}

func (s *stmt) Query() (driver.Cursor, error) {
	sc, err := s.conn.find(s.sql)
	if err != nil {
		return nil, err
	}
	s.record()
	if sc.err != nil {
		return nil, sc.err
	}
	return &cursor{columns: sc.columns, rows: sc.rows, pos: -1}, nil
}

func (s *stmt) Exec() (driver.Result, error) {
	sc, err := s.conn.find(s.sql)
	if err != nil {
		return nil, err
	}
	s.record()
	if sc.err != nil {
		return nil, sc.err
	}
	return result{lastID: sc.lastID, rowsAff: sc.rowsAff}, nil
}

func (s *stmt) Close() error { return nil }

type result struct{ lastID, rowsAff int64 }

func (r result) LastInsertID() (int64, error) { return r.lastID, nil }
func (r result) RowsAffected() (int64, error) { return r.rowsAff, nil }

type cursor struct {
	columns []string
	rows    [][]any
	pos     int
}

func (c *cursor) Columns() []string { return c.columns }

func (c *cursor) Next() bool {
	c.pos++
	return c.pos < len(c.rows)
}

func (c *cursor) Get(index int) (any, error) {
	if index < 0 || index >= len(c.columns) {
		return nil, fmt.Errorf("drivertest: column %d out of range", index)
	}
	return c.rows[c.pos][index], nil
}

func (c *cursor) NextResultSet() bool { return false }
func (c *cursor) Err() error          { return nil }
func (c *cursor) Close() error        { return nil }
