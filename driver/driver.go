// Package driver declares the row-cursor database contract the mapping layer
// executes against. Implementations live outside the core; sqladapter wraps
// database/sql.
package driver

// Connection prepares statements and opens transactions.
type Connection interface {
	Prepare(sql string) (Statement, error)
	Begin() (Transaction, error)
	Close() error
}

// Statement is a prepared statement with 1-based ordinal parameter slots.
type Statement interface {
	// Bind sets the value for one ? placeholder. dbType is the declared
	// database type name, or "" when undeclared.
	Bind(ordinal int, value any, dbType string) error
	// BindOut registers an output parameter at the ordinal.
	BindOut(ordinal int, dbType string) error
	// Query executes and returns a cursor over the result rows.
	Query() (Cursor, error)
	// Exec executes a non-query statement.
	Exec() (Result, error)
	SetTimeout(seconds int)
	SetFetchSize(rows int)
	Close() error
}

// Cursor iterates result rows. Get reports the cell at a zero-based column
// ordinal of the current row.
type Cursor interface {
	Columns() []string
	Next() bool
	Get(index int) (any, error)
	// NextResultSet advances to the following result set, when the driver
	// produced more than one.
	NextResultSet() bool
	Err() error
	Close() error
}

// Result reports the outcome of a non-query statement.
type Result interface {
	LastInsertID() (int64, error)
	RowsAffected() (int64, error)
}

// Transaction demarcates a unit of work on a connection.
type Transaction interface {
	Commit() error
	Rollback() error
}
