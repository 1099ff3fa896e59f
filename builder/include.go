package builder

import (
	"strings"

	"github.com/myfstd/gbatis/dynsql"
)

// substituteProps replaces ${name} occurrences in s from vars. Unknown names
// stay as-is so evaluation-time interpolation is untouched.
func substituteProps(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "${") {
		return s
	}
	out, _ := dynsql.ParseTokens(s, "${", "}", func(content string) (string, error) {
		if v, ok := vars[strings.TrimSpace(content)]; ok {
			return v, nil
		}
		return "${" + content + "}", nil
	})
	return out
}

// applyIncludes resolves <include refid> nodes by splicing the referenced
// <sql> fragment's children in place, applying <property> bindings as ${}
// substitutions on attributes and text of the included subtree. Recursive
// includes are followed; revisiting an active refid fails.
func (m *MapperBuilder) applyIncludes(node *XNode, vars map[string]string, included bool, active map[string]bool) error {
	var out []*XNode
	for _, child := range node.Children {
		if child.IsText() {
			if included && len(vars) > 0 {
				child.Text = substituteProps(child.Text, vars)
			}
			out = append(out, child)
			continue
		}
		if child.Name != "include" {
			if included && len(vars) > 0 {
				for k, v := range child.Attrs {
					child.Attrs[k] = substituteProps(v, vars)
				}
			}
			if err := m.applyIncludes(child, vars, included, active); err != nil {
				return err
			}
			out = append(out, child)
			continue
		}

		refid := substituteProps(child.Attr("refid", ""), vars)
		refid = m.assistant.ApplyNamespace(refid, true)
		if active[refid] {
			return &CyclicIncludeError{RefID: refid}
		}
		fragment, ok := m.state.Fragments[refid]
		if !ok {
			return &IncompleteElementError{Kind: "include", Ref: refid}
		}
		fragment = fragment.Clone()

		childVars, err := includeVars(child, vars)
		if err != nil {
			return err
		}
		active[refid] = true
		// substitute into the fragment's own attributes before descending
		for k, v := range fragment.Attrs {
			fragment.Attrs[k] = substituteProps(v, childVars)
		}
		if err := m.applyIncludes(fragment, childVars, true, active); err != nil {
			return err
		}
		delete(active, refid)
		out = append(out, fragment.Children...)
	}
	node.Children = out
	return nil
}

// includeVars merges the include's <property> children over the inherited
// bindings. Values themselves may reference inherited bindings.
func includeVars(include *XNode, inherited map[string]string) (map[string]string, error) {
	var declared map[string]string
	for _, p := range include.Elements() {
		if p.Name != "property" {
			continue
		}
		name := p.Attr("name", "")
		value := substituteProps(p.Attr("value", ""), inherited)
		if declared == nil {
			declared = map[string]string{}
		}
		if _, dup := declared[name]; dup {
			return nil, &ConfigError{Detail: "property " + name + " defined twice in the same include"}
		}
		declared[name] = value
	}
	if declared == nil {
		return inherited, nil
	}
	merged := make(map[string]string, len(inherited)+len(declared))
	for k, v := range inherited {
		merged[k] = v
	}
	for k, v := range declared {
		merged[k] = v
	}
	return merged, nil
}
