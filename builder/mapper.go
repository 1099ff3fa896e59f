package builder

import (
	"reflect"
	"strings"

	"github.com/myfstd/gbatis/codec"
	"github.com/myfstd/gbatis/mapping"
	"github.com/myfstd/gbatis/reflectx"
)

// State is the cross-document build state shared by all mapper builders of
// one bootstrap: the fragment catalog, the extends graph, and the pending
// queue driven to a fixed point by ConfigBuilder.Build.
type State struct {
	Fragments map[string]*XNode
	ExtendsOf map[string]string

	pending []pendingItem
}

type pendingItem struct {
	ref string
	try func() error
}

// NewState returns empty build state.
func NewState() *State {
	return &State{Fragments: map[string]*XNode{}, ExtendsOf: map[string]string{}}
}

func (s *State) enqueue(ref string, try func() error) {
	s.pending = append(s.pending, pendingItem{ref: ref, try: try})
}

// cyclicExtends reports whether linking id to parent closes an extends loop.
func (s *State) cyclicExtends(id, parent string) bool {
	seen := map[string]bool{id: true}
	for parent != "" {
		if seen[parent] {
			return true
		}
		seen[parent] = true
		parent = s.ExtendsOf[parent]
	}
	return false
}

// MapperBuilder compiles one mapper document.
type MapperBuilder struct {
	cfg       *mapping.Configuration
	state     *State
	assistant *Assistant
	resource  string
}

// NewMapperBuilder prepares a builder for one document.
func NewMapperBuilder(cfg *mapping.Configuration, state *State, resource string) *MapperBuilder {
	return &MapperBuilder{
		cfg:       cfg,
		state:     state,
		assistant: NewAssistant(cfg, state, resource),
		resource:  resource,
	}
}

// Parse runs pass 1 over the document: namespace, fragments, cache
// declarations, and eager attempts at result maps and statements. Attempts
// blocked on forward references land in the pending queue.
func (m *MapperBuilder) Parse(data []byte) error {
	root, err := ParseXML(data)
	if err != nil {
		return &ConfigError{Resource: m.resource, Detail: "malformed mapper document", Err: err}
	}
	if root == nil || root.Name != "mapper" {
		return &ConfigError{Resource: m.resource, Detail: "mapper document must be rooted at <mapper>"}
	}
	if err := m.assistant.SetNamespace(root.Attr("namespace", "")); err != nil {
		return err
	}
	if !m.cfg.MarkResource(m.resource) {
		return nil // already loaded
	}

	// fragments register before anything tries to include them
	for _, el := range root.Elements() {
		if el.Name == "sql" {
			if el.Attr("id", "") == "" {
				return &ConfigError{Resource: m.resource, Detail: "<sql> requires an id"}
			}
			m.state.Fragments[m.assistant.ApplyNamespace(el.Attr("id", ""), false)] = el
		}
	}

	for _, el := range root.Elements() {
		switch el.Name {
		case "sql":
			// handled above
		case "cache-ref":
			ns := el.Attr("namespace", "")
			if ns == "" {
				return &ConfigError{Resource: m.resource, Detail: "<cache-ref> requires a namespace"}
			}
			m.tryOrDefer("cache-ref "+ns, func() error { return m.assistant.UseCacheRef(ns) })
		case "cache":
			if err := m.assistant.UseNewCache(el); err != nil {
				return err
			}
		case "resultMap":
			el := el
			m.tryOrDefer("resultMap "+el.Attr("id", ""), func() error { return m.parseResultMap(el) })
		case "select", "insert", "update", "delete":
			el := el
			m.tryOrDefer("statement "+el.Attr("id", ""), func() error { return m.parseStatement(el) })
		default:
			return &ConfigError{Resource: m.resource, Detail: "unknown mapper element <" + el.Name + ">"}
		}
	}
	return nil
}

// tryOrDefer runs a build step now, deferring it to the fixed point when it
// is blocked on a forward reference.
func (m *MapperBuilder) tryOrDefer(ref string, try func() error) {
	if err := try(); err != nil {
		if _, incomplete := err.(*IncompleteElementError); incomplete {
			m.state.enqueue(ref, try)
			return
		}
		m.state.enqueue(ref, func() error { return err }) // surface fatal errors at Build
	}
}

// parseResultMap compiles a <resultMap> element, or the inline children of an
// association/collection.
func (m *MapperBuilder) parseResultMap(node *XNode) error {
	id := m.assistant.ApplyNamespace(node.Attr("id", ""), false)
	typeName := node.Attr("type", node.Attr("ofType", ""))
	targetType, err := m.cfg.ResolveAlias(typeName)
	if err != nil {
		return &ConfigError{Resource: m.resource, Detail: "resultMap " + id, Err: err}
	}
	if targetType == nil {
		return &ConfigError{Resource: m.resource, Detail: "resultMap " + id + " requires a type"}
	}
	rm := &mapping.ResultMap{
		ID:      id,
		Type:    targetType,
		Extends: node.Attr("extends", ""),
	}
	if v, ok := node.Attrs["autoMapping"]; ok {
		b := v == "true"
		rm.AutoMapping = &b
	}
	for _, el := range node.Elements() {
		switch el.Name {
		case "constructor":
			for _, arg := range el.Elements() {
				rmm, err := m.parseMapping(arg, targetType, id)
				if err != nil {
					return err
				}
				rmm.Constructor = true
				rmm.ID = arg.Name == "idArg"
				rm.Mappings = append(rm.Mappings, rmm)
			}
		case "id", "result", "association", "collection":
			rmm, err := m.parseMapping(el, targetType, id)
			if err != nil {
				return err
			}
			rmm.ID = el.Name == "id"
			rm.Mappings = append(rm.Mappings, rmm)
		case "discriminator":
			d, err := m.parseDiscriminator(el, id)
			if err != nil {
				return err
			}
			rm.Discriminator = d
		default:
			return &ConfigError{Resource: m.resource, Detail: "unknown <resultMap> child <" + el.Name + ">"}
		}
	}
	return m.assistant.AddResultMap(rm)
}

// parseMapping compiles one <id>/<result>/<association>/<collection> or
// constructor argument entry.
func (m *MapperBuilder) parseMapping(node *XNode, targetType reflect.Type, owner string) (*mapping.ResultMapping, error) {
	rmm := &mapping.ResultMapping{
		Property:     node.Attr("property", node.Attr("name", "")),
		Column:       node.Attr("column", ""),
		ColumnPrefix: node.Attr("columnPrefix", ""),
	}
	if v := node.Attr("notNullColumn", ""); v != "" {
		rmm.NotNullColumns = strings.Split(v, ",")
	}
	jt, err := m.cfg.ResolveAlias(node.Attr("javaType", ""))
	if err != nil {
		return nil, &ConfigError{Resource: m.resource, Detail: owner, Err: err}
	}
	rmm.JavaType = jt
	dt, err := codec.ParseJdbcType(node.Attr("jdbcType", ""))
	if err != nil {
		return nil, &ConfigError{Resource: m.resource, Detail: owner, Err: err}
	}
	rmm.JdbcType = dt

	switch {
	case node.Attr("select", "") != "":
		rmm.NestedSelect = m.assistant.ApplyNamespace(node.Attr("select", ""), true)
		fetch := node.Attr("fetchType", "")
		rmm.LazyLoad = fetch == "lazy" || fetch == "" && m.cfg.Settings.LazyLoadingEnabled
	case node.Attr("resultMap", "") != "":
		rmm.NestedResultMap = m.assistant.ApplyNamespace(node.Attr("resultMap", ""), true)
	case (node.Name == "association" || node.Name == "collection") && len(node.Elements()) > 0:
		// inline nested map registered under a derived id
		nestedID := owner + "_" + capitalize(node.Name) + "_" + rmm.Property
		nested := node.Clone()
		nested.Attrs["id"] = localPart(nestedID)
		if nested.Attr("type", nested.Attr("ofType", "")) == "" {
			nested.Attrs["type"] = nested.Attr("javaType", "")
		}
		if nested.Attr("type", nested.Attr("ofType", "")) == "" {
			return nil, &ConfigError{Resource: m.resource, Detail: "nested <" + node.Name + "> on " + owner + " requires javaType or ofType"}
		}
		if err := m.parseResultMap(nested); err != nil {
			return nil, err
		}
		rmm.NestedResultMap = m.assistant.ApplyNamespace(localPart(nestedID), true)
	}

	// leaf mappings resolve their codec now
	if rmm.NestedResultMap == "" && rmm.NestedSelect == "" {
		if rmm.JavaType == nil && targetType != nil && reflectx.Deref(targetType).Kind() == reflect.Struct {
			if t, err := reflectx.TypeAt(m.cfg.Mapper, targetType, rmm.Property); err == nil && t != nil {
				if t.Kind() != reflect.Interface {
					rmm.JavaType = reflectx.Deref(t)
				}
			}
		}
		if name := node.Attr("typeHandler", ""); name != "" {
			h, err := m.cfg.TypeHandlers.MustResolve(name)
			if err != nil {
				return nil, &ConfigError{Resource: m.resource, Detail: owner, Err: err}
			}
			rmm.Handler = h
		} else {
			rmm.Handler = m.cfg.TypeHandlers.Lookup(rmm.JavaType, rmm.JdbcType)
		}
	}
	return rmm, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func localPart(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[i+1:]
	}
	return id
}

func (m *MapperBuilder) parseDiscriminator(node *XNode, owner string) (*mapping.Discriminator, error) {
	d := &mapping.Discriminator{
		Column: node.Attr("column", ""),
		Cases:  map[string]string{},
	}
	jt, err := m.cfg.ResolveAlias(node.Attr("javaType", ""))
	if err != nil {
		return nil, &ConfigError{Resource: m.resource, Detail: owner, Err: err}
	}
	d.JavaType = jt
	dt, err := codec.ParseJdbcType(node.Attr("jdbcType", ""))
	if err != nil {
		return nil, &ConfigError{Resource: m.resource, Detail: owner, Err: err}
	}
	d.JdbcType = dt
	d.Handler = m.cfg.TypeHandlers.Lookup(d.JavaType, d.JdbcType)
	for _, c := range node.Elements() {
		if c.Name != "case" {
			return nil, &ConfigError{Resource: m.resource, Detail: "unexpected <" + c.Name + "> inside <discriminator>"}
		}
		value := c.Attr("value", "")
		ref := c.Attr("resultMap", "")
		if ref == "" {
			// inline case body becomes its own result map
			caseID := localPart(owner) + "_Case_" + value
			inline := c.Clone()
			inline.Name = "resultMap"
			inline.Attrs["id"] = caseID
			if inline.Attr("type", "") == "" {
				return nil, &ConfigError{Resource: m.resource, Detail: "discriminator case " + value + " requires resultMap or type"}
			}
			if err := m.parseResultMap(inline); err != nil {
				return nil, err
			}
			ref = caseID
		}
		d.Cases[value] = m.assistant.ApplyNamespace(ref, true)
	}
	return d, nil
}
