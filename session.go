package gbatis

import (
	"errors"
	"fmt"

	"github.com/myfstd/gbatis/driver"
	"github.com/myfstd/gbatis/executor"
	"github.com/myfstd/gbatis/mapping"
)

// SessionFactory opens sessions against a compiled catalog. The catalog must
// be frozen (bootstrap complete) before the first session opens.
type SessionFactory struct {
	cfg  *mapping.Configuration
	open func() (driver.Connection, error)
}

// NewSessionFactory pairs a compiled configuration with a connection opener.
func NewSessionFactory(cfg *mapping.Configuration, open func() (driver.Connection, error)) *SessionFactory {
	return &SessionFactory{cfg: cfg, open: open}
}

// OpenSession opens a connection and builds the session's executor stack. A
// session is single-threaded; do not share it between goroutines.
func (f *SessionFactory) OpenSession() (*Session, error) {
	if !f.cfg.Frozen() {
		return nil, errors.New("gbatis: configuration must be built before opening sessions")
	}
	conn, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("gbatis: cannot open connection: %w", err)
	}
	var exec executor.Executor = executor.NewSimple(f.cfg, conn)
	if f.cfg.Settings.CacheEnabled {
		exec = executor.NewCaching(f.cfg, exec)
	}
	return &Session{cfg: f.cfg, exec: exec}, nil
}

// Session is the per-conversation facade: statement execution, transaction
// demarcation, and the session-scoped caches live here.
type Session struct {
	cfg  *mapping.Configuration
	exec executor.Executor
}

// Configuration exposes the catalog the session runs against.
func (s *Session) Configuration() *mapping.Configuration { return s.cfg }

// SelectList runs a SELECT statement and returns the mapped rows.
func (s *Session) SelectList(id string, param any) ([]any, error) {
	return s.SelectListBounds(id, param, executor.DefaultRowBounds())
}

// SelectListBounds runs a SELECT with pagination bounds.
func (s *Session) SelectListBounds(id string, param any, bounds executor.RowBounds) ([]any, error) {
	ms, err := s.statement(id, mapping.CommandSelect)
	if err != nil {
		return nil, err
	}
	return s.exec.Query(ms, param, bounds)
}

// SelectOne runs a SELECT expected to yield at most one row.
func (s *Session) SelectOne(id string, param any) (any, error) {
	list, err := s.SelectList(id, param)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	default:
		return nil, fmt.Errorf("gbatis: statement %q returned %d rows where one was expected", id, len(list))
	}
}

// Insert runs an INSERT statement and returns the affected row count.
func (s *Session) Insert(id string, param any) (int64, error) {
	return s.update(id, param, mapping.CommandInsert)
}

// Update runs an UPDATE statement and returns the affected row count.
func (s *Session) Update(id string, param any) (int64, error) {
	return s.update(id, param, mapping.CommandUpdate)
}

// Delete runs a DELETE statement and returns the affected row count.
func (s *Session) Delete(id string, param any) (int64, error) {
	return s.update(id, param, mapping.CommandDelete)
}

func (s *Session) update(id string, param any, kind mapping.CommandKind) (int64, error) {
	ms, err := s.statement(id, kind)
	if err != nil {
		return 0, err
	}
	return s.exec.Update(ms, param)
}

func (s *Session) statement(id string, kind mapping.CommandKind) (*mapping.MappedStatement, error) {
	ms, err := s.cfg.MappedStatement(id)
	if err != nil {
		return nil, err
	}
	if ms.Kind != kind {
		return nil, fmt.Errorf("gbatis: statement %q is %s, not %s", id, ms.Kind, kind)
	}
	return ms, nil
}

// Commit publishes this session's work: the transaction first, then the
// staged second-tier cache writes.
func (s *Session) Commit() error { return s.exec.Commit(true) }

// Rollback discards uncommitted work, including staged cache writes.
func (s *Session) Rollback() error { return s.exec.Rollback(true) }

// Close releases the connection; uncommitted work rolls back.
func (s *Session) Close() error { return s.exec.Close(true) }
