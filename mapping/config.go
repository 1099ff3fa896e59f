package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/myfstd/gbatis/cache"
	"github.com/myfstd/gbatis/codec"
	"github.com/myfstd/gbatis/reflectx"
)

// AutoMappingBehavior is the unmapped-column policy.
type AutoMappingBehavior int

const (
	AutoMappingNone AutoMappingBehavior = iota
	AutoMappingPartial
	AutoMappingFull
)

// UnknownColumnBehavior controls what happens to a column that matches
// neither the result map nor a target property.
type UnknownColumnBehavior int

const (
	UnknownColumnNone UnknownColumnBehavior = iota
	UnknownColumnWarning
	UnknownColumnFailing
)

// ExecutorType selects the executor implementation.
type ExecutorType int

const (
	ExecutorSimple ExecutorType = iota
	ExecutorReuse
	ExecutorBatch
)

// LocalCacheScope bounds the first-tier cache's lifetime.
type LocalCacheScope int

const (
	ScopeSession LocalCacheScope = iota
	ScopeStatement
)

// Settings are the recognized configuration document options with their
// defaults.
type Settings struct {
	CacheEnabled              bool
	LazyLoadingEnabled        bool
	AggressiveLazyLoading     bool
	MultipleResultSetsEnabled bool
	UseColumnLabel            bool
	UseGeneratedKeys          bool
	AutoMappingBehavior       AutoMappingBehavior
	AutoMappingUnknownColumn  UnknownColumnBehavior
	DefaultExecutorType       ExecutorType
	DefaultStatementTimeout   int
	DefaultFetchSize          int
	MapUnderscoreToCamelCase  bool
	SafeRowBoundsEnabled      bool
	LocalCacheScope           LocalCacheScope
	JdbcTypeForNull           codec.JdbcType
	LazyLoadTriggerMethods    []string
	UseActualParamName        bool
	ReturnInstanceForEmptyRow bool
	CallSettersOnNulls        bool
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:              true,
		MultipleResultSetsEnabled: true,
		UseColumnLabel:            true,
		AutoMappingBehavior:       AutoMappingPartial,
		AutoMappingUnknownColumn:  UnknownColumnNone,
		DefaultExecutorType:       ExecutorSimple,
		LocalCacheScope:           ScopeSession,
		JdbcTypeForNull:           codec.JdbcOther,
		LazyLoadTriggerMethods:    []string{"equals", "clone", "hashCode", "toString"},
		UseActualParamName:        true,
	}
}

// Configuration is the process-wide catalog: statements, result maps, caches,
// codecs, and settings. It is mutable during bootstrap; Freeze marks the
// transition to the read-only phase, which must precede the first invocation.
type Configuration struct {
	Settings    Settings
	Environment string
	DatabaseID  string

	TypeHandlers *codec.Registry
	Mapper       *reflectx.Mapper

	statements  map[string]*MappedStatement
	resultMaps  map[string]*ResultMap
	caches      map[string]cache.Cache
	shortNames  map[string]string
	ambiguous   map[string]bool
	typeAliases map[string]reflect.Type
	resources   map[string]bool

	frozen bool
}

// NewConfiguration returns an empty catalog with default settings and the
// built-in type aliases.
func NewConfiguration() *Configuration {
	c := &Configuration{
		Settings:     DefaultSettings(),
		TypeHandlers: codec.NewRegistry(),
		Mapper:       reflectx.NewMapper("db"),
		statements:   map[string]*MappedStatement{},
		resultMaps:   map[string]*ResultMap{},
		caches:       map[string]cache.Cache{},
		shortNames:   map[string]string{},
		ambiguous:    map[string]bool{},
		typeAliases:  map[string]reflect.Type{},
		resources:    map[string]bool{},
	}
	c.RegisterAlias("string", reflect.TypeOf(""))
	c.RegisterAlias("int", reflect.TypeOf(int(0)))
	c.RegisterAlias("long", reflect.TypeOf(int64(0)))
	c.RegisterAlias("int64", reflect.TypeOf(int64(0)))
	c.RegisterAlias("float64", reflect.TypeOf(float64(0)))
	c.RegisterAlias("double", reflect.TypeOf(float64(0)))
	c.RegisterAlias("bool", reflect.TypeOf(false))
	c.RegisterAlias("boolean", reflect.TypeOf(false))
	c.RegisterAlias("time", reflect.TypeOf(time.Time{}))
	c.RegisterAlias("map", reflect.TypeOf(map[string]any{}))
	c.RegisterAlias("bytes", reflect.TypeOf([]byte(nil)))
	return c
}

// Freeze completes bootstrap. After Freeze the catalog rejects registration.
func (c *Configuration) Freeze() { c.frozen = true }

// Frozen reports whether bootstrap has completed.
func (c *Configuration) Frozen() bool { return c.frozen }

func (c *Configuration) mutable(what string) error {
	if c.frozen {
		return fmt.Errorf("mapping: cannot register %s after bootstrap", what)
	}
	return nil
}

// RegisterAlias exposes an application type to mapper attributes under name.
func (c *Configuration) RegisterAlias(name string, t reflect.Type) {
	c.typeAliases[strings.ToLower(name)] = t
}

// RegisterType aliases a type under its own name.
func (c *Configuration) RegisterType(v any) {
	t := reflectx.Deref(reflect.TypeOf(v))
	c.typeAliases[strings.ToLower(t.Name())] = t
}

// ResolveAlias returns the type registered under name, or an error for an
// unknown alias.
func (c *Configuration) ResolveAlias(name string) (reflect.Type, error) {
	if name == "" {
		return nil, nil
	}
	if t, ok := c.typeAliases[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("mapping: unknown type alias %q", name)
}

func (c *Configuration) registerShort(full string) {
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		short := full[i+1:]
		if prev, taken := c.shortNames[short]; taken {
			if prev != full {
				c.ambiguous[short] = true
			}
			return
		}
		c.shortNames[short] = full
	}
}

func (c *Configuration) qualify(id string) (string, error) {
	if strings.ContainsRune(id, '.') {
		return id, nil
	}
	if c.ambiguous[id] {
		return "", fmt.Errorf("mapping: short name %q is ambiguous across namespaces", id)
	}
	if full, ok := c.shortNames[id]; ok {
		return full, nil
	}
	return id, nil
}

// AddMappedStatement registers a finished statement. A statement with a
// databaseId shadows the id-less variant of the same name.
func (c *Configuration) AddMappedStatement(ms *MappedStatement) error {
	if err := c.mutable("statement"); err != nil {
		return err
	}
	if err := ms.Validate(); err != nil {
		return err
	}
	if prev, ok := c.statements[ms.ID]; ok {
		if prev.DatabaseID != "" && ms.DatabaseID == "" {
			return nil // keep the dialect-specific variant
		}
		if prev.DatabaseID == ms.DatabaseID {
			return fmt.Errorf("mapping: duplicate statement %q", ms.ID)
		}
	}
	c.statements[ms.ID] = ms
	c.registerShort(ms.ID)
	return nil
}

// MappedStatement looks a statement up, qualifying dot-less names.
func (c *Configuration) MappedStatement(id string) (*MappedStatement, error) {
	full, err := c.qualify(id)
	if err != nil {
		return nil, err
	}
	ms, ok := c.statements[full]
	if !ok {
		return nil, fmt.Errorf("mapping: unknown statement %q", id)
	}
	return ms, nil
}

// HasStatement reports whether id resolves.
func (c *Configuration) HasStatement(id string) bool {
	ms, err := c.MappedStatement(id)
	return err == nil && ms != nil
}

// StatementIDs lists all registered statement ids.
func (c *Configuration) StatementIDs() []string {
	ids := make([]string, 0, len(c.statements))
	for id := range c.statements {
		ids = append(ids, id)
	}
	return ids
}

// AddResultMap registers a result map.
func (c *Configuration) AddResultMap(rm *ResultMap) error {
	if err := c.mutable("result map"); err != nil {
		return err
	}
	if _, ok := c.resultMaps[rm.ID]; ok {
		return fmt.Errorf("mapping: duplicate result map %q", rm.ID)
	}
	c.resultMaps[rm.ID] = rm
	c.registerShort(rm.ID)
	return nil
}

// ResultMap looks a result map up, qualifying dot-less names.
func (c *Configuration) ResultMap(id string) (*ResultMap, error) {
	full, err := c.qualify(id)
	if err != nil {
		return nil, err
	}
	rm, ok := c.resultMaps[full]
	if !ok {
		return nil, fmt.Errorf("mapping: unknown result map %q", id)
	}
	return rm, nil
}

// HasResultMap reports whether id resolves.
func (c *Configuration) HasResultMap(id string) bool {
	rm, err := c.ResultMap(id)
	return err == nil && rm != nil
}

// AddCache registers a namespace's cache.
func (c *Configuration) AddCache(cc cache.Cache) error {
	if err := c.mutable("cache"); err != nil {
		return err
	}
	if _, ok := c.caches[cc.ID()]; ok {
		return fmt.Errorf("mapping: duplicate cache for namespace %q", cc.ID())
	}
	c.caches[cc.ID()] = cc
	return nil
}

// CacheFor returns the cache registered for a namespace, or nil.
func (c *Configuration) CacheFor(namespace string) cache.Cache {
	return c.caches[namespace]
}

// MarkResource records a mapper resource as loaded; it reports whether the
// resource was new.
func (c *Configuration) MarkResource(name string) bool {
	if c.resources[name] {
		return false
	}
	c.resources[name] = true
	return true
}

// NewMetaObject wraps v in a navigator using the catalog's shared metamodel.
func (c *Configuration) NewMetaObject(v any) *reflectx.MetaObject {
	return reflectx.MetaOf(v, c.Mapper)
}
