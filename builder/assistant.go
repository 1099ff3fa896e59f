package builder

import (
	"strings"
	"time"

	"github.com/myfstd/gbatis/cache"
	"github.com/myfstd/gbatis/cache/rediscache"
	"github.com/myfstd/gbatis/mapping"
)

// Assistant carries the per-namespace build state: name qualification, the
// namespace's cache, and registration against the catalog.
type Assistant struct {
	cfg       *mapping.Configuration
	state     *State
	resource  string
	namespace string

	cache      cache.Cache
	cacheRefNS string
}

// NewAssistant starts building under a namespace.
func NewAssistant(cfg *mapping.Configuration, state *State, resource string) *Assistant {
	return &Assistant{cfg: cfg, state: state, resource: resource}
}

// SetNamespace fixes the namespace; it must be set once per mapper document.
func (a *Assistant) SetNamespace(ns string) error {
	if ns == "" {
		return &ConfigError{Resource: a.resource, Detail: "mapper requires a namespace"}
	}
	if a.namespace != "" && a.namespace != ns {
		return &ConfigError{Resource: a.resource, Detail: "namespace changed mid-document"}
	}
	a.namespace = ns
	return nil
}

// ApplyNamespace qualifies a dot-less name against the current namespace.
// Names already containing a dot are absolute. isReference does not change
// the result.
func (a *Assistant) ApplyNamespace(id string, isReference bool) string {
	if id == "" {
		return id
	}
	if strings.ContainsRune(id, '.') {
		return id
	}
	_ = isReference
	return a.namespace + "." + id
}

// UseCacheRef points this namespace at another namespace's cache instance.
// The target may not exist yet; the caller re-enqueues on IncompleteElement.
func (a *Assistant) UseCacheRef(ns string) error {
	a.cacheRefNS = ns
	c := a.cfg.CacheFor(ns)
	if c == nil {
		return &IncompleteElementError{Kind: "cache-ref", Ref: ns}
	}
	a.cache = c
	return nil
}

// RequireCache returns the namespace cache, raising IncompleteElement while a
// declared cache-ref is still dangling.
func (a *Assistant) RequireCache() (cache.Cache, error) {
	if a.cache == nil && a.cacheRefNS != "" {
		return nil, &IncompleteElementError{Kind: "cache-ref", Ref: a.cacheRefNS}
	}
	return a.cache, nil
}

// UseNewCache builds this namespace's cache chain from the <cache> element.
func (a *Assistant) UseNewCache(node *XNode) error {
	b := cache.NewBuilder(a.namespace).
		Eviction(strings.ToUpper(node.Attr("eviction", "LRU"))).
		Size(node.IntAttr("size", 0)).
		ReadOnly(node.BoolAttr("readOnly", false)).
		Blocking(node.BoolAttr("blocking", false))
	if ms := node.IntAttr("flushInterval", 0); ms > 0 {
		b.FlushInterval(time.Duration(ms) * time.Millisecond)
	}
	props := map[string]string{}
	for _, p := range node.Elements() {
		if p.Name == "property" {
			props[p.Attr("name", "")] = p.Attr("value", "")
		}
	}
	switch node.Attr("type", "") {
	case "", "PERPETUAL":
	case "redis":
		base, err := rediscache.New(a.namespace, rediscache.Options{
			Addr:     props["addr"],
			Password: props["password"],
			DB:       atoi(props["db"]),
			TTL:      time.Duration(node.IntAttr("flushInterval", 0)) * time.Millisecond,
		})
		if err != nil {
			return &ConfigError{Resource: a.resource, Detail: "cannot reach redis cache backend", Err: err}
		}
		b.Base(base)
	default:
		return &ConfigError{Resource: a.resource, Detail: "unknown cache type " + node.Attr("type", "")}
	}
	a.cache = b.Build()
	return a.cfg.AddCache(a.cache)
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0
		}
		n = n*10 + int(s[i]-'0')
	}
	return n
}

// Cache returns the namespace's cache, nil when none is declared.
func (a *Assistant) Cache() cache.Cache { return a.cache }

// AddResultMap merges inheritance and registers the map. A missing parent
// raises IncompleteElement for the fixed-point loop; an extends cycle fails
// immediately.
func (a *Assistant) AddResultMap(rm *mapping.ResultMap) error {
	if rm.Extends != "" {
		parentID := a.ApplyNamespace(rm.Extends, true)
		if a.state.cyclicExtends(rm.ID, parentID) {
			return &CyclicExtendsError{ID: rm.ID}
		}
		a.state.ExtendsOf[rm.ID] = parentID
		parent, err := a.cfg.ResultMap(parentID)
		if err != nil {
			return &IncompleteElementError{Kind: "result map", Ref: parentID}
		}
		rm.Mappings = mergeExtends(parent, rm)
	}
	rm.Index()
	return a.cfg.AddResultMap(rm)
}

// mergeExtends keeps parent mappings the child does not override by
// (column, property); a child declaring any constructor mapping drops the
// parent's constructor mappings entirely.
func mergeExtends(parent *mapping.ResultMap, child *mapping.ResultMap) []*mapping.ResultMapping {
	overridden := map[string]bool{}
	childHasCtor := false
	for _, m := range child.Mappings {
		overridden[m.Column+"|"+m.Property] = true
		if m.Constructor {
			childHasCtor = true
		}
	}
	merged := append([]*mapping.ResultMapping{}, child.Mappings...)
	for _, m := range parent.Mappings {
		if overridden[m.Column+"|"+m.Property] {
			continue
		}
		if m.Constructor && childHasCtor {
			continue
		}
		merged = append(merged, m)
	}
	return merged
}
