package dynsql

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/myfstd/gbatis/exprs"
)

// Node is one fragment of a dynamic SQL tree. The set of implementations is
// closed: apply is unexported, so every variant lives in this package and the
// script builder's dispatch is exhaustive.
type Node interface {
	// apply appends the node's contribution to the context. The result
	// reports whether the node contributed (used by choose).
	apply(c *Context) (bool, error)
}

// Apply evaluates a tree into the context.
func Apply(n Node, c *Context) error {
	_, err := n.apply(c)
	return err
}

// NullForEachError reports a foreach over a collection that resolved to nil.
type NullForEachError struct {
	Collection string
}

func (e *NullForEachError) Error() string {
	return fmt.Sprintf("dynsql: foreach collection %q is null", e.Collection)
}

// StaticTextNode appends its literal unchanged.
type StaticTextNode struct {
	Text string
}

func (n *StaticTextNode) apply(c *Context) (bool, error) {
	c.AppendSQL(n.Text)
	return true, nil
}

// TextNode carries ${} interpolation resolved against the scope at
// evaluation time. No binding is produced; the value is spliced as text.
type TextNode struct {
	Text string
}

// IsDynamic reports whether text actually interpolates.
func (n *TextNode) IsDynamic() bool { return ContainsToken(n.Text, "${") }

func (n *TextNode) apply(c *Context) (bool, error) {
	out, err := ParseTokens(n.Text, "${", "}", func(content string) (string, error) {
		v, err := exprs.Value(strings.TrimSpace(content), c.resolver)
		if err != nil {
			return "", &EvalError{Node: "${}", Detail: content, Err: err}
		}
		if v == nil {
			return "", &EvalError{Node: "${}", Detail: content + " resolved to null"}
		}
		return fmt.Sprintf("%v", v), nil
	})
	if err != nil {
		return false, err
	}
	c.AppendSQL(out)
	return true, nil
}

// IfNode evaluates its child when the test expression is truthy.
type IfNode struct {
	Test  string
	Child Node
}

func (n *IfNode) apply(c *Context) (bool, error) {
	ok, err := exprs.Truthy(n.Test, c.resolver)
	if err != nil {
		return false, &EvalError{Node: "if", Detail: n.Test, Err: err}
	}
	if !ok {
		return false, nil
	}
	if _, err := n.Child.apply(c); err != nil {
		return false, err
	}
	return true, nil
}

// ChooseNode evaluates whens in declaration order, stopping at the first
// truthy test, falling through to otherwise.
type ChooseNode struct {
	Whens     []*IfNode
	Otherwise Node
}

func (n *ChooseNode) apply(c *Context) (bool, error) {
	for _, w := range n.Whens {
		applied, err := w.apply(c)
		if err != nil {
			return false, err
		}
		if applied {
			return true, nil
		}
	}
	if n.Otherwise != nil {
		if _, err := n.Otherwise.apply(c); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// TrimNode evaluates its child into a side buffer, strips matching overrides
// from the edges, and wraps the remainder in prefix/suffix when non-empty.
type TrimNode struct {
	Child           Node
	Prefix          string
	Suffix          string
	PrefixOverrides []string
	SuffixOverrides []string
}

// NewWhere returns the WHERE-specialized trim.
func NewWhere(child Node) *TrimNode {
	return &TrimNode{
		Child:           child,
		Prefix:          "WHERE",
		PrefixOverrides: []string{"AND ", "OR ", "AND\t", "OR\t", "AND\n", "OR\n"},
	}
}

// NewSet returns the SET-specialized trim.
func NewSet(child Node) *TrimNode {
	return &TrimNode{
		Child:           child,
		Prefix:          "SET",
		SuffixOverrides: []string{","},
	}
}

// ParseOverrides splits a pipe-separated override attribute.
func ParseOverrides(attr string) []string {
	if attr == "" {
		return nil
	}
	return strings.Split(attr, "|")
}

func (n *TrimNode) apply(c *Context) (bool, error) {
	body, err := c.capture(func() error {
		_, err := n.Child.apply(c)
		return err
	})
	if err != nil {
		return false, err
	}
	trimmed := strings.TrimSpace(body)
	for _, o := range n.PrefixOverrides {
		if len(trimmed) >= len(o) && strings.EqualFold(trimmed[:len(o)], o) {
			trimmed = strings.TrimLeft(trimmed[len(o):], " \t\n")
			break
		}
	}
	for _, o := range n.SuffixOverrides {
		if len(trimmed) >= len(o) && strings.EqualFold(trimmed[len(trimmed)-len(o):], o) {
			trimmed = strings.TrimRight(trimmed[:len(trimmed)-len(o)], " \t\n")
			break
		}
	}
	if trimmed == "" {
		return false, nil
	}
	var out strings.Builder
	if n.Prefix != "" {
		out.WriteString(n.Prefix)
		out.WriteByte(' ')
	}
	out.WriteString(trimmed)
	if n.Suffix != "" {
		out.WriteByte(' ')
		out.WriteString(n.Suffix)
	}
	c.AppendSQL(out.String())
	return true, nil
}

// ForEachNode iterates a sequence, array, or map from the scope. Each
// iteration binds the item and index names in a fresh slot and uniquifies the
// #{} references inside the body so bindings stay distinct.
type ForEachNode struct {
	Collection string
	Item       string
	Index      string
	Open       string
	Close      string
	Separator  string
	Child      Node
}

func (n *ForEachNode) apply(c *Context) (bool, error) {
	v, found, err := c.Resolve(n.Collection)
	if err != nil {
		return false, &EvalError{Node: "foreach", Detail: n.Collection, Err: err}
	}
	if !found || v == nil {
		return false, &NullForEachError{Collection: n.Collection}
	}
	keys, items, err := sequence(v)
	if err != nil {
		return false, &EvalError{Node: "foreach", Detail: n.Collection, Err: err}
	}

	var out strings.Builder
	out.WriteString(n.Open)
	for i := range items {
		if i > 0 {
			out.WriteString(n.Separator)
		}
		frag, err := n.applyItem(c, keys[i], items[i])
		if err != nil {
			return false, err
		}
		out.WriteString(frag)
	}
	out.WriteString(n.Close)
	c.AppendSQL(out.String())
	return true, nil
}

func (n *ForEachNode) applyItem(c *Context, key, item any) (string, error) {
	seq := c.Uniquify()
	itemSlot := fmt.Sprintf("__frch_%s_%d", n.Item, seq)
	indexSlot := fmt.Sprintf("__frch_%s_%d", n.Index, seq)
	if n.Item != "" {
		c.Bind(n.Item, item)
		c.Bind(itemSlot, item)
	}
	if n.Index != "" {
		c.Bind(n.Index, key)
		c.Bind(indexSlot, key)
	}
	body, err := c.capture(func() error {
		_, err := n.Child.apply(c)
		return err
	})
	if err != nil {
		return "", err
	}
	// rewrite #{item...} and #{index...} to the iteration slots
	return ParseTokens(body, "#{", "}", func(content string) (string, error) {
		prop := content
		rest := ""
		if i := strings.IndexByte(content, ','); i >= 0 {
			prop, rest = content[:i], content[i:]
		}
		prop = strings.TrimSpace(prop)
		if n.Item != "" && matchesName(prop, n.Item) {
			prop = itemSlot + prop[len(n.Item):]
		} else if n.Index != "" && matchesName(prop, n.Index) {
			prop = indexSlot + prop[len(n.Index):]
		}
		return "#{" + prop + rest + "}", nil
	})
}

// matchesName reports whether prop is name or a path rooted at name.
func matchesName(prop, name string) bool {
	if !strings.HasPrefix(prop, name) {
		return false
	}
	if len(prop) == len(name) {
		return true
	}
	return prop[len(name)] == '.' || prop[len(name)] == '['
}

// sequence normalizes the iterable into parallel key and item lists. Map keys
// are sorted so evaluation is deterministic.
func sequence(v any) (keys []any, items []any, err error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			keys = append(keys, i)
			items = append(items, rv.Index(i).Interface())
		}
		return keys, items, nil
	case reflect.Map:
		mk := rv.MapKeys()
		sort.Slice(mk, func(i, j int) bool {
			return fmt.Sprintf("%v", mk[i].Interface()) < fmt.Sprintf("%v", mk[j].Interface())
		})
		for _, k := range mk {
			keys = append(keys, k.Interface())
			items = append(items, rv.MapIndex(k).Interface())
		}
		return keys, items, nil
	default:
		return nil, nil, fmt.Errorf("cannot iterate %T", v)
	}
}

// VarDeclNode computes a value and binds it into the scope for the nodes that
// follow.
type VarDeclNode struct {
	Name       string
	Expression string
}

func (n *VarDeclNode) apply(c *Context) (bool, error) {
	v, err := exprs.Value(n.Expression, c.resolver)
	if err != nil {
		return false, &EvalError{Node: "bind", Detail: n.Expression, Err: err}
	}
	c.Bind(n.Name, v)
	return true, nil
}

// MixedNode evaluates children in order.
type MixedNode struct {
	Children []Node
}

func (n *MixedNode) apply(c *Context) (bool, error) {
	for _, child := range n.Children {
		if _, err := child.apply(c); err != nil {
			return false, err
		}
	}
	return true, nil
}
