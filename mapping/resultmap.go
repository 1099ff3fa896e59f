package mapping

import (
	"reflect"

	"github.com/myfstd/gbatis/codec"
)

// Lazy is the one-shot deferred-load handle attached to properties populated
// by lazy nested queries. The first Get executes the sub-select in the owning
// session; later calls return the cached value.
type Lazy interface {
	Get() (any, error)
}

// LazyType is the declared type a property must have to receive a deferred
// resolver instead of an eagerly loaded value.
var LazyType = reflect.TypeOf((*Lazy)(nil)).Elem()

// ResultMapping binds one column to one property path of the target type.
// Exactly one of nested select, nested result map, or leaf codec applies.
type ResultMapping struct {
	Property string
	Column   string
	JavaType reflect.Type
	JdbcType codec.JdbcType
	Handler  codec.TypeHandler

	ID          bool
	Constructor bool

	// NestedSelect names a statement executed with this column's value as
	// its parameter; LazyLoad defers it to first access.
	NestedSelect string
	LazyLoad     bool

	// NestedResultMap joins a child result map mapped under ColumnPrefix.
	NestedResultMap string
	ColumnPrefix    string
	// NotNullColumns guards child creation: the child is only produced when
	// at least one of these columns is non-null in the row.
	NotNullColumns []string
}

// Discriminator routes a row to a case result map by a column's decoded value.
// Cases may themselves carry discriminators.
type Discriminator struct {
	Column   string
	JavaType reflect.Type
	JdbcType codec.JdbcType
	Handler  codec.TypeHandler
	// Cases maps the stringified column value to a result map id.
	Cases map[string]string
}

// ResultMap describes how rows become objects of Type.
type ResultMap struct {
	ID      string
	Type    reflect.Type
	Extends string

	Mappings            []*ResultMapping
	IDMappings          []*ResultMapping
	ConstructorMappings []*ResultMapping
	PropertyMappings    []*ResultMapping
	Discriminator       *Discriminator

	// AutoMapping overrides the configuration's auto-map policy when set.
	AutoMapping *bool

	// MappedColumns lists every column this map mentions, upper-cased, for
	// the mapped/unmapped partition.
	MappedColumns map[string]bool

	HasNestedResultMaps bool
	HasNestedSelects    bool
}

// Index partitions the mapping list and records mentioned columns. Called
// once after the mapping list is final.
func (rm *ResultMap) Index() {
	rm.IDMappings = nil
	rm.ConstructorMappings = nil
	rm.PropertyMappings = nil
	rm.MappedColumns = map[string]bool{}
	rm.HasNestedResultMaps = false
	rm.HasNestedSelects = false
	for _, m := range rm.Mappings {
		if m.NestedResultMap != "" {
			rm.HasNestedResultMaps = true
		}
		if m.NestedSelect != "" {
			rm.HasNestedSelects = true
		}
		if m.Column != "" {
			rm.MappedColumns[upper(m.Column)] = true
		}
		for _, c := range m.NotNullColumns {
			rm.MappedColumns[upper(c)] = true
		}
		if m.Constructor {
			rm.ConstructorMappings = append(rm.ConstructorMappings, m)
		} else {
			rm.PropertyMappings = append(rm.PropertyMappings, m)
		}
		if m.ID {
			rm.IDMappings = append(rm.IDMappings, m)
		}
	}
	if rm.Discriminator != nil && rm.Discriminator.Column != "" {
		rm.MappedColumns[upper(rm.Discriminator.Column)] = true
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
