package builder

import (
	"strings"

	"github.com/myfstd/gbatis/mapping"
)

var commandKinds = map[string]mapping.CommandKind{
	"select": mapping.CommandSelect,
	"insert": mapping.CommandInsert,
	"update": mapping.CommandUpdate,
	"delete": mapping.CommandDelete,
}

// parseStatement compiles one statement element into the catalog. Includes
// are resolved first; a <selectKey> child becomes a companion statement.
func (m *MapperBuilder) parseStatement(node *XNode) error {
	kind := commandKinds[node.Name]
	id := m.assistant.ApplyNamespace(node.Attr("id", ""), false)
	if node.Attr("id", "") == "" {
		return &ConfigError{Resource: m.resource, Detail: "<" + node.Name + "> requires an id"}
	}

	// dialect selection: keep only matching statements when a database id is
	// configured; id-less variants are shadowed at registration
	dbID := node.Attr("databaseId", "")
	if m.cfg.DatabaseID != "" {
		if dbID != "" && dbID != m.cfg.DatabaseID {
			return nil
		}
	} else if dbID != "" {
		return nil
	}

	// work on a copy so a pending retry re-parses pristine content
	node = node.Clone()
	if err := m.applyIncludes(node, map[string]string{}, false, map[string]bool{}); err != nil {
		return err
	}

	paramType, err := m.cfg.ResolveAlias(node.Attr("parameterType", ""))
	if err != nil {
		return &ConfigError{Resource: m.resource, Detail: "statement " + id, Err: err}
	}

	ms := &mapping.MappedStatement{
		ID:            id,
		Resource:      m.resource,
		Kind:          kind,
		ParameterType: paramType,
		StatementType: node.Attr("statementType", "PREPARED"),
		ResultSetType: node.Attr("resultSetType", ""),
		DatabaseID:    dbID,
		Timeout:       node.IntAttr("timeout", m.cfg.Settings.DefaultStatementTimeout),
		FetchSize:     node.IntAttr("fetchSize", m.cfg.Settings.DefaultFetchSize),
		FlushCache:    node.BoolAttr("flushCache", kind != mapping.CommandSelect),
		UseCache:      node.BoolAttr("useCache", kind == mapping.CommandSelect),

		KeyProperty:      node.Attr("keyProperty", ""),
		KeyColumn:        node.Attr("keyColumn", ""),
		UseGeneratedKeys: node.BoolAttr("useGeneratedKeys", m.cfg.Settings.UseGeneratedKeys && kind == mapping.CommandInsert),
	}

	if kind == mapping.CommandSelect {
		if err := m.resolveResultMaps(ms, node); err != nil {
			return err
		}
	}
	// every statement carries the namespace cache: selects read through it,
	// flushCache statements invalidate it on commit
	c, err := m.assistant.RequireCache()
	if err != nil {
		return err
	}
	ms.Cache = c

	if err := m.parseSelectKey(ms, node); err != nil {
		return err
	}

	src, err := buildSqlSource(m.cfg, node, paramType)
	if err != nil {
		return err
	}
	ms.Source = src
	return m.cfg.AddMappedStatement(ms)
}

// resolveResultMaps attaches the declared result maps, synthesizing an inline
// map for resultType selects.
func (m *MapperBuilder) resolveResultMaps(ms *mapping.MappedStatement, node *XNode) error {
	if refs := node.Attr("resultMap", ""); refs != "" {
		for _, ref := range strings.Split(refs, ",") {
			ref = m.assistant.ApplyNamespace(strings.TrimSpace(ref), true)
			rm, err := m.cfg.ResultMap(ref)
			if err != nil {
				return &IncompleteElementError{Kind: "result map", Ref: ref}
			}
			ms.ResultMaps = append(ms.ResultMaps, rm)
			if rm.HasNestedResultMaps {
				ms.HasNestedResultMaps = true
			}
			if rm.HasNestedSelects {
				ms.HasNestedSelects = true
			}
		}
		return nil
	}
	typeName := node.Attr("resultType", "")
	if typeName == "" {
		return &ConfigError{Resource: m.resource, Detail: "select " + ms.ID + " requires resultMap or resultType"}
	}
	t, err := m.cfg.ResolveAlias(typeName)
	if err != nil {
		return &ConfigError{Resource: m.resource, Detail: "select " + ms.ID, Err: err}
	}
	inline := &mapping.ResultMap{ID: ms.ID + "-Inline", Type: t}
	inline.Index()
	ms.ResultMaps = append(ms.ResultMaps, inline)
	return nil
}

// parseSelectKey extracts a <selectKey> child into a companion statement and
// removes it from the body.
func (m *MapperBuilder) parseSelectKey(ms *mapping.MappedStatement, node *XNode) error {
	var rest []*XNode
	for _, child := range node.Children {
		if child.IsText() || child.Name != "selectKey" {
			rest = append(rest, child)
			continue
		}
		t, err := m.cfg.ResolveAlias(child.Attr("resultType", ""))
		if err != nil {
			return &ConfigError{Resource: m.resource, Detail: "selectKey of " + ms.ID, Err: err}
		}
		if t == nil {
			return &ConfigError{Resource: m.resource, Detail: "selectKey of " + ms.ID + " requires a resultType"}
		}
		inline := &mapping.ResultMap{ID: ms.ID + "!selectKey-Inline", Type: t}
		inline.Index()
		src, err := buildSqlSource(m.cfg, child, ms.ParameterType)
		if err != nil {
			return err
		}
		key := &mapping.MappedStatement{
			ID:          ms.ID + "!selectKey",
			Resource:    m.resource,
			Kind:        mapping.CommandSelect,
			Source:      src,
			ResultMaps:  []*mapping.ResultMap{inline},
			KeyProperty: child.Attr("keyProperty", ms.KeyProperty),
			KeyColumn:   child.Attr("keyColumn", ""),
			FlushCache:  false,
			UseCache:    false,
		}
		ms.SelectKey = key
		ms.SelectKeyBefore = child.Attr("order", "AFTER") == "BEFORE"
	}
	node.Children = rest
	return nil
}
