// Package gbatis is an XML-driven SQL mapping layer: mapper documents compile
// into a catalog of statements and result maps, dynamic SQL trees evaluate
// against per-invocation parameter objects, and result rows map back into
// struct graphs through a cached reflection metamodel.
//
// Bootstrap builds the catalog once, then sessions run against the frozen
// configuration:
//
//	b := builder.NewConfigBuilder()
//	b.Configuration().RegisterType(Person{})
//	if err := b.AddMapperFile("person.xml"); err != nil { ... }
//	cfg, err := b.Build()
//
//	factory := gbatis.NewSessionFactory(cfg, func() (driver.Connection, error) {
//		return sqladapter.OpenMySQL(sqladapter.MySQLConfig{ ... })
//	})
//	s, err := factory.OpenSession()
//	people, err := s.SelectList("person.findByCity", map[string]any{"city": "Springfield"})
package gbatis

import (
	"github.com/myfstd/gbatis/executor"
	"github.com/myfstd/gbatis/mapping"
)

// Configuration is the compiled catalog sessions run against.
type Configuration = mapping.Configuration

// Lazy is the deferred-load handle for lazily fetched nested queries.
type Lazy = mapping.Lazy

// RowBounds paginates a select by offset and limit.
type RowBounds = executor.RowBounds
