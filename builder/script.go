package builder

import (
	"reflect"

	"github.com/myfstd/gbatis/dynsql"
	"github.com/myfstd/gbatis/mapping"
)

// buildSqlSource turns a statement body into its SQL source: a dynamic tree
// when any dynamic tag or ${} interpolation is present, a pre-parsed static
// source otherwise.
func buildSqlSource(cfg *mapping.Configuration, body *XNode, paramType reflect.Type) (mapping.SqlSource, error) {
	root, dynamic, err := parseDynamicTags(body)
	if err != nil {
		return nil, err
	}
	if dynamic {
		return dynsql.NewDynamicSqlSource(cfg, root, paramType), nil
	}
	return dynsql.NewRawSqlSource(cfg, root, paramType)
}

// parseDynamicTags walks a body subtree into the node tree; the dispatch over
// tag names is exhaustive, unknown tags fail compilation.
func parseDynamicTags(node *XNode) (dynsql.Node, bool, error) {
	var children []dynsql.Node
	dynamic := false
	for _, child := range node.Children {
		if child.IsText() {
			text := &dynsql.TextNode{Text: trimBody(child.Text)}
			if text.Text == "" {
				continue
			}
			if text.IsDynamic() {
				dynamic = true
				children = append(children, text)
			} else {
				children = append(children, &dynsql.StaticTextNode{Text: text.Text})
			}
			continue
		}
		n, err := parseTag(child)
		if err != nil {
			return nil, false, err
		}
		dynamic = true
		children = append(children, n)
	}
	if len(children) == 1 {
		return children[0], dynamic, nil
	}
	return &dynsql.MixedNode{Children: children}, dynamic, nil
}

func parseTag(node *XNode) (dynsql.Node, error) {
	switch node.Name {
	case "if":
		child, _, err := parseDynamicTags(node)
		if err != nil {
			return nil, err
		}
		test := node.Attr("test", "")
		if test == "" {
			return nil, &ConfigError{Detail: "<if> requires a test attribute"}
		}
		return &dynsql.IfNode{Test: test, Child: child}, nil
	case "where":
		child, _, err := parseDynamicTags(node)
		if err != nil {
			return nil, err
		}
		return dynsql.NewWhere(child), nil
	case "set":
		child, _, err := parseDynamicTags(node)
		if err != nil {
			return nil, err
		}
		return dynsql.NewSet(child), nil
	case "trim":
		child, _, err := parseDynamicTags(node)
		if err != nil {
			return nil, err
		}
		return &dynsql.TrimNode{
			Child:           child,
			Prefix:          node.Attr("prefix", ""),
			Suffix:          node.Attr("suffix", ""),
			PrefixOverrides: dynsql.ParseOverrides(node.Attr("prefixOverrides", "")),
			SuffixOverrides: dynsql.ParseOverrides(node.Attr("suffixOverrides", "")),
		}, nil
	case "foreach":
		child, _, err := parseDynamicTags(node)
		if err != nil {
			return nil, err
		}
		collection := node.Attr("collection", "")
		if collection == "" {
			return nil, &ConfigError{Detail: "<foreach> requires a collection attribute"}
		}
		return &dynsql.ForEachNode{
			Collection: collection,
			Item:       node.Attr("item", "item"),
			Index:      node.Attr("index", "index"),
			Open:       node.Attr("open", ""),
			Close:      node.Attr("close", ""),
			Separator:  node.Attr("separator", ""),
			Child:      child,
		}, nil
	case "choose":
		choose := &dynsql.ChooseNode{}
		for _, branch := range node.Elements() {
			child, _, err := parseDynamicTags(branch)
			if err != nil {
				return nil, err
			}
			switch branch.Name {
			case "when":
				test := branch.Attr("test", "")
				if test == "" {
					return nil, &ConfigError{Detail: "<when> requires a test attribute"}
				}
				choose.Whens = append(choose.Whens, &dynsql.IfNode{Test: test, Child: child})
			case "otherwise":
				if choose.Otherwise != nil {
					return nil, &ConfigError{Detail: "<choose> allows a single <otherwise>"}
				}
				choose.Otherwise = child
			default:
				return nil, &ConfigError{Detail: "unexpected <" + branch.Name + "> inside <choose>"}
			}
		}
		return choose, nil
	case "bind":
		name := node.Attr("name", "")
		value := node.Attr("value", "")
		if name == "" || value == "" {
			return nil, &ConfigError{Detail: "<bind> requires name and value attributes"}
		}
		return &dynsql.VarDeclNode{Name: name, Expression: value}, nil
	default:
		return nil, &ConfigError{Detail: "unknown dynamic SQL tag <" + node.Name + ">"}
	}
}

// trimBody collapses the XML indentation around a text chunk while keeping
// the interior verbatim.
func trimBody(s string) string {
	start := 0
	for start < len(s) && isSpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
