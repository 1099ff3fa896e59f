// Package executor runs compiled statements: it binds parameters, executes
// through the driver, maps result rows into objects, and layers the two-tier
// result cache over the execute/map path.
package executor

import "fmt"

// BindingError is a per-invocation failure before the driver statement ever
// executes: unresolvable property path, type mismatch, or missing codec.
type BindingError struct {
	StatementID string
	Property    string
	Detail      string
	Err         error
}

func (e *BindingError) Error() string {
	msg := fmt.Sprintf("executor: binding failed for statement %q", e.StatementID)
	if e.Property != "" {
		msg += fmt.Sprintf(", property %q", e.Property)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BindingError) Unwrap() error { return e.Err }

// ExecutionError wraps a driver failure with the offending SQL and the
// ordered bound values.
type ExecutionError struct {
	StatementID string
	SQL         string
	Values      []any
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executor: statement %q failed: %v\n  sql: %s\n  values: %v",
		e.StatementID, e.Err, e.SQL, e.Values)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// MappingError is a per-row failure decoding a cell into the declared
// property type.
type MappingError struct {
	StatementID string
	Column      string
	Property    string
	Err         error
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("executor: mapping failed for statement %q", e.StatementID)
	if e.Column != "" {
		msg += fmt.Sprintf(", column %q", e.Column)
	}
	if e.Property != "" {
		msg += fmt.Sprintf(", property %q", e.Property)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() error { return e.Err }
