// Package mapping holds the catalog records produced by the mapping compiler:
// statements, result maps, parameter descriptors, and the Configuration that
// registers them all. Everything here is built during bootstrap and read-only
// afterwards.
package mapping

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/myfstd/gbatis/cache"
)

// CommandKind is the SQL command class of a statement.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandSelect
	CommandInsert
	CommandUpdate
	CommandDelete
)

func (k CommandKind) String() string {
	switch k {
	case CommandSelect:
		return "SELECT"
	case CommandInsert:
		return "INSERT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

// SqlSource produces the final SQL text and ordered parameter descriptors for
// one invocation. Static sources ignore the parameter; dynamic sources
// evaluate their node tree against it.
type SqlSource interface {
	BoundSQL(param any) (*BoundSql, error)
}

// BoundSql is the evaluated form of a statement: final SQL with ? placeholders
// and the descriptor list that is the contract with the binder.
type BoundSql struct {
	SQL               string
	ParameterMappings []*ParameterMapping
	Parameter         any
	// AdditionalParams carries evaluation-scope bindings (bind variables,
	// foreach iteration slots) that outlive node evaluation.
	AdditionalParams map[string]any
}

// HasAdditional reports whether the first segment of path is a scope binding.
func (b *BoundSql) HasAdditional(path string) bool {
	if b.AdditionalParams == nil {
		return false
	}
	name := path
	if i := strings.IndexAny(name, ".["); i >= 0 {
		name = name[:i]
	}
	_, ok := b.AdditionalParams[name]
	return ok
}

// MappedStatement is one compiled statement of the catalog.
type MappedStatement struct {
	ID            string
	Resource      string
	Kind          CommandKind
	Source        SqlSource
	ParameterType reflect.Type
	ResultMaps    []*ResultMap
	FlushCache    bool
	UseCache      bool
	Timeout       int
	FetchSize     int
	StatementType string
	ResultSetType string
	DatabaseID    string

	KeyProperty      string
	KeyColumn        string
	UseGeneratedKeys bool
	// SelectKey is the companion key-retrieval statement, run before or
	// after the owning statement.
	SelectKey       *MappedStatement
	SelectKeyBefore bool

	Cache               cache.Cache
	HasNestedResultMaps bool
	HasNestedSelects    bool
}

// Namespace returns the statement id's namespace part.
func (ms *MappedStatement) Namespace() string {
	if i := strings.LastIndexByte(ms.ID, '.'); i >= 0 {
		return ms.ID[:i]
	}
	return ""
}

// Validate enforces the catalog invariants on a finished statement.
func (ms *MappedStatement) Validate() error {
	hasMaps := len(ms.ResultMaps) > 0
	if ms.Kind == CommandSelect && !hasMaps {
		return fmt.Errorf("mapping: select %q declares no result map or type", ms.ID)
	}
	if ms.Kind != CommandSelect && hasMaps {
		return fmt.Errorf("mapping: %s %q must not declare result maps", ms.Kind, ms.ID)
	}
	return nil
}
