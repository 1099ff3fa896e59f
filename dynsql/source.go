package dynsql

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/myfstd/gbatis/codec"
	"github.com/myfstd/gbatis/mapping"
	"github.com/myfstd/gbatis/reflectx"
)

// UnknownParameterOptionError reports an unrecognized option inside a #{}
// placeholder; it fails compilation.
type UnknownParameterOptionError struct {
	Option  string
	Content string
}

func (e *UnknownParameterOptionError) Error() string {
	return fmt.Sprintf("dynsql: unknown parameter option %q in #{%s}", e.Option, e.Content)
}

// SourceBuilder runs the token-parameter pass: every #{} placeholder becomes
// a single ? and appends one descriptor to the ordered list.
type SourceBuilder struct {
	cfg *mapping.Configuration
}

// NewSourceBuilder returns a builder against the catalog's registries.
func NewSourceBuilder(cfg *mapping.Configuration) *SourceBuilder {
	return &SourceBuilder{cfg: cfg}
}

// Parse substitutes #{} placeholders in sql. paramType is the declared
// parameter type (may be nil); additional carries evaluation-scope bindings
// whose types take precedence for descriptor typing.
func (b *SourceBuilder) Parse(sql string, paramType reflect.Type, additional map[string]any) (string, []*mapping.ParameterMapping, error) {
	var mappings []*mapping.ParameterMapping
	out, err := ParseTokens(sql, "#{", "}", func(content string) (string, error) {
		pm, err := b.buildMapping(content, paramType, additional)
		if err != nil {
			return "", err
		}
		mappings = append(mappings, pm)
		return "?", nil
	})
	if err != nil {
		return "", nil, err
	}
	return out, mappings, nil
}

func (b *SourceBuilder) buildMapping(content string, paramType reflect.Type, additional map[string]any) (*mapping.ParameterMapping, error) {
	parts := strings.Split(content, ",")
	property := strings.TrimSpace(parts[0])
	opts := map[string]string{}
	for _, part := range parts[1:] {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, &UnknownParameterOptionError{Option: strings.TrimSpace(part), Content: content}
		}
		opts[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	pm := &mapping.ParameterMapping{Property: property}

	if v, ok := opts["jdbcType"]; ok {
		t, err := codec.ParseJdbcType(v)
		if err != nil {
			return nil, err
		}
		pm.JdbcType = t
	}
	if v, ok := opts["mode"]; ok {
		switch strings.ToUpper(v) {
		case "IN":
			pm.Mode = mapping.ModeIn
		case "OUT":
			pm.Mode = mapping.ModeOut
		case "INOUT":
			pm.Mode = mapping.ModeInOut
		default:
			return nil, fmt.Errorf("dynsql: unknown parameter mode %q in #{%s}", v, content)
		}
	}

	// application type resolution: explicit javaType, then the declared
	// parameter type's property type, then OUT-cursor, then opaque
	if v, ok := opts["javaType"]; ok {
		t, err := b.cfg.ResolveAlias(v)
		if err != nil {
			return nil, err
		}
		pm.JavaType = t
	} else if v, ok := additionalValue(b.cfg, additional, property); ok {
		if v != nil {
			pm.JavaType = concreteType(reflect.TypeOf(v))
		}
	} else if paramType != nil && b.cfg.TypeHandlers.Has(paramType) {
		pm.JavaType = paramType
	} else if pm.JdbcType == codec.JdbcCursor {
		pm.JavaType = nil
	} else if paramType != nil && reflectx.Deref(paramType).Kind() == reflect.Struct {
		if t, err := reflectx.TypeAt(b.cfg.Mapper, paramType, property); err == nil && t != nil {
			pm.JavaType = concreteType(t)
		}
	}

	if v, ok := opts["numericScale"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("dynsql: bad numericScale %q in #{%s}", v, content)
		}
		pm.NumericScale = &n
	}
	if v, ok := opts["resultMap"]; ok {
		pm.ResultMapID = v
	}
	if v, ok := opts["jdbcTypeName"]; ok {
		pm.JdbcTypeName = v
	}
	for name := range opts {
		switch name {
		case "javaType", "jdbcType", "mode", "numericScale", "resultMap", "typeHandler", "jdbcTypeName":
		default:
			return nil, &UnknownParameterOptionError{Option: name, Content: content}
		}
	}

	if v, ok := opts["typeHandler"]; ok {
		h, err := b.cfg.TypeHandlers.MustResolve(v)
		if err != nil {
			return nil, err
		}
		pm.Handler = h
	} else {
		pm.Handler = b.cfg.TypeHandlers.Lookup(pm.JavaType, pm.JdbcType)
	}
	return pm, nil
}

// additionalValue resolves property against the evaluation-scope bindings,
// reporting whether its first segment is bound at all.
func additionalValue(cfg *mapping.Configuration, additional map[string]any, property string) (any, bool) {
	if additional == nil {
		return nil, false
	}
	tok, err := reflectx.TokenizeProperty(property)
	if err != nil {
		return nil, false
	}
	if _, ok := additional[tok.Name]; !ok {
		return nil, false
	}
	v, err := cfg.NewMetaObject(additional).GetValue(property)
	if err != nil {
		return nil, true
	}
	return v, true
}

// concreteType strips pointers and leaves interfaces untyped.
func concreteType(t reflect.Type) reflect.Type {
	t = reflectx.Deref(t)
	if t.Kind() == reflect.Interface {
		return nil
	}
	return t
}

// StaticSqlSource is a pre-parsed source: final SQL plus the ordered
// descriptor list, fixed at compile time.
type StaticSqlSource struct {
	SQL      string
	Mappings []*mapping.ParameterMapping
}

// BoundSQL returns the fixed text with the invocation's parameter attached.
func (s *StaticSqlSource) BoundSQL(param any) (*mapping.BoundSql, error) {
	return &mapping.BoundSql{
		SQL:               s.SQL,
		ParameterMappings: s.Mappings,
		Parameter:         param,
		AdditionalParams:  map[string]any{},
	}, nil
}

// RawSqlSource wraps a statement body with no dynamic content: the token
// parameter pass runs once, at compile time.
type RawSqlSource struct {
	static *StaticSqlSource
}

// NewRawSqlSource compiles the body immediately.
func NewRawSqlSource(cfg *mapping.Configuration, root Node, paramType reflect.Type) (*RawSqlSource, error) {
	ctx := NewContext(cfg, nil)
	if err := Apply(root, ctx); err != nil {
		return nil, err
	}
	sql, mappings, err := NewSourceBuilder(cfg).Parse(strings.TrimSpace(ctx.SQL()), paramType, nil)
	if err != nil {
		return nil, err
	}
	return &RawSqlSource{static: &StaticSqlSource{SQL: sql, Mappings: mappings}}, nil
}

func (s *RawSqlSource) BoundSQL(param any) (*mapping.BoundSql, error) {
	return s.static.BoundSQL(param)
}

// DynamicSqlSource evaluates its node tree per invocation, then runs the
// token-parameter pass over the produced text.
type DynamicSqlSource struct {
	cfg       *mapping.Configuration
	root      Node
	paramType reflect.Type
}

// NewDynamicSqlSource wraps a tree holding dynamic nodes.
func NewDynamicSqlSource(cfg *mapping.Configuration, root Node, paramType reflect.Type) *DynamicSqlSource {
	return &DynamicSqlSource{cfg: cfg, root: root, paramType: paramType}
}

func (s *DynamicSqlSource) BoundSQL(param any) (*mapping.BoundSql, error) {
	ctx := NewContext(s.cfg, param)
	if err := Apply(s.root, ctx); err != nil {
		return nil, err
	}
	paramType := s.paramType
	if paramType == nil && param != nil {
		paramType = reflect.TypeOf(param)
	}
	sql, mappings, err := NewSourceBuilder(s.cfg).Parse(strings.TrimSpace(ctx.SQL()), paramType, ctx.Bindings())
	if err != nil {
		return nil, err
	}
	return &mapping.BoundSql{
		SQL:               sql,
		ParameterMappings: mappings,
		Parameter:         param,
		AdditionalParams:  ctx.Bindings(),
	}, nil
}
