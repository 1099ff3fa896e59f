package codec

import (
	"fmt"
	"reflect"
	"time"
)

// Registry resolves handlers by (application type, database type). Lookup
// order: exact pair, application type alone, database type alone, opaque
// fallback. It is populated during bootstrap and read-only afterwards.
type Registry struct {
	byType   map[reflect.Type]map[JdbcType]TypeHandler
	byJdbc   map[JdbcType]TypeHandler
	fallback TypeHandler
}

// NewRegistry returns a registry with the built-in handlers installed.
func NewRegistry() *Registry {
	r := &Registry{
		byType:   map[reflect.Type]map[JdbcType]TypeHandler{},
		byJdbc:   map[JdbcType]TypeHandler{},
		fallback: AnyHandler{},
	}
	str := StringHandler{}
	integer := IntHandler{}
	flt := FloatHandler{}
	bl := BoolHandler{}
	tm := TimeHandler{}
	bs := BytesHandler{}

	r.Register(reflect.TypeOf(""), JdbcUnset, str)
	r.Register(reflect.TypeOf(""), JdbcVarchar, str)
	r.Register(reflect.TypeOf(""), JdbcChar, str)
	for _, t := range []any{int(0), int8(0), int16(0), int32(0), int64(0)} {
		r.Register(reflect.TypeOf(t), JdbcUnset, integer)
		r.Register(reflect.TypeOf(t), JdbcInteger, integer)
		r.Register(reflect.TypeOf(t), JdbcBigint, integer)
	}
	for _, t := range []any{float32(0), float64(0)} {
		r.Register(reflect.TypeOf(t), JdbcUnset, flt)
		r.Register(reflect.TypeOf(t), JdbcDouble, flt)
		r.Register(reflect.TypeOf(t), JdbcDecimal, flt)
	}
	r.Register(reflect.TypeOf(false), JdbcUnset, bl)
	r.Register(reflect.TypeOf(false), JdbcBoolean, bl)
	r.Register(reflect.TypeOf(time.Time{}), JdbcUnset, tm)
	r.Register(reflect.TypeOf(time.Time{}), JdbcTimestamp, tm)
	r.Register(reflect.TypeOf(time.Time{}), JdbcDate, tm)
	r.Register(reflect.TypeOf([]byte(nil)), JdbcUnset, bs)
	r.Register(reflect.TypeOf([]byte(nil)), JdbcBlob, bs)

	r.RegisterJdbc(JdbcVarchar, str)
	r.RegisterJdbc(JdbcChar, str)
	r.RegisterJdbc(JdbcClob, str)
	r.RegisterJdbc(JdbcInteger, integer)
	r.RegisterJdbc(JdbcBigint, integer)
	r.RegisterJdbc(JdbcSmallint, integer)
	r.RegisterJdbc(JdbcDouble, flt)
	r.RegisterJdbc(JdbcFloat, flt)
	r.RegisterJdbc(JdbcDecimal, flt)
	r.RegisterJdbc(JdbcNumeric, flt)
	r.RegisterJdbc(JdbcBoolean, bl)
	r.RegisterJdbc(JdbcTimestamp, tm)
	r.RegisterJdbc(JdbcDate, tm)
	r.RegisterJdbc(JdbcTime, tm)
	r.RegisterJdbc(JdbcBlob, bs)
	return r
}

// Register installs a handler for an application type under one database
// type; JdbcUnset registers the application-type-only entry.
func (r *Registry) Register(appType reflect.Type, dbType JdbcType, h TypeHandler) {
	m, ok := r.byType[appType]
	if !ok {
		m = map[JdbcType]TypeHandler{}
		r.byType[appType] = m
	}
	m[dbType] = h
}

// RegisterJdbc installs a database-type-only handler.
func (r *Registry) RegisterJdbc(dbType JdbcType, h TypeHandler) {
	r.byJdbc[dbType] = h
}

// Has reports whether the application type has a directly registered handler.
func (r *Registry) Has(appType reflect.Type) bool {
	if appType == nil {
		return false
	}
	_, ok := r.byType[appType]
	return ok
}

// Lookup resolves the handler for the declared pair. Named types with no
// direct registration fall back to a kind-based handler; string-kinded named
// types get the name-based enum handler.
func (r *Registry) Lookup(appType reflect.Type, dbType JdbcType) TypeHandler {
	if appType != nil {
		if m, ok := r.byType[appType]; ok {
			if h, ok := m[dbType]; ok {
				return h
			}
			if h, ok := m[JdbcUnset]; ok {
				return h
			}
		}
		if h := r.kindHandler(appType); h != nil {
			return h
		}
	}
	if h, ok := r.byJdbc[dbType]; ok {
		return h
	}
	return r.fallback
}

func (r *Registry) kindHandler(t reflect.Type) TypeHandler {
	switch t.Kind() {
	case reflect.String:
		if t != reflect.TypeOf("") {
			return EnumNameHandler{Type: t}
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntHandler{}
	case reflect.Float32, reflect.Float64:
		return FloatHandler{}
	case reflect.Bool:
		return BoolHandler{}
	case reflect.Ptr:
		return r.kindHandler(t.Elem())
	}
	return nil
}

// MustResolve looks a handler up by a registered name, for typeHandler=
// overrides in mapper documents.
func (r *Registry) MustResolve(name string) (TypeHandler, error) {
	if h, ok := namedHandlers[name]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("codec: unknown typeHandler %q", name)
}

var namedHandlers = map[string]TypeHandler{
	"string": StringHandler{},
	"int":    IntHandler{},
	"float":  FloatHandler{},
	"bool":   BoolHandler{},
	"time":   TimeHandler{},
	"bytes":  BytesHandler{},
	"any":    AnyHandler{},
}

// RegisterNamed exposes a handler to mapper documents under a name.
func RegisterNamed(name string, h TypeHandler) { namedHandlers[name] = h }
