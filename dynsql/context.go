// Package dynsql evaluates dynamic SQL trees: a per-invocation context scopes
// names over the caller's parameter object, nodes append text and placeholder
// descriptors, and sources produce the final BoundSql.
package dynsql

import (
	"bytes"
	"fmt"

	"github.com/myfstd/gbatis/mapping"
	"github.com/myfstd/gbatis/reflectx"
)

// ParameterName is the scope binding that always resolves to the whole
// parameter object.
const ParameterName = "_parameter"

// Context is the mutable state of one evaluation: the linear SQL accumulator
// and the name->value scope layered over the parameter object.
type Context struct {
	cfg   *mapping.Configuration
	param any

	bindings map[string]any
	buf      *bytes.Buffer
	uniq     int
}

// NewContext starts an evaluation against param.
func NewContext(cfg *mapping.Configuration, param any) *Context {
	c := &Context{
		cfg:      cfg,
		param:    param,
		bindings: map[string]any{ParameterName: param},
		buf:      &bytes.Buffer{},
	}
	return c
}

// Bind installs a scope local for subsequent nodes.
func (c *Context) Bind(name string, value any) { c.bindings[name] = value }

// Bindings exposes the scope locals accumulated during evaluation.
func (c *Context) Bindings() map[string]any { return c.bindings }

// AppendSQL appends a fragment to the accumulator, separated by one space
// from any text already there.
func (c *Context) AppendSQL(fragment string) {
	if c.buf.Len() > 0 {
		c.buf.WriteByte(' ')
	}
	c.buf.WriteString(fragment)
}

// SQL returns the accumulated text.
func (c *Context) SQL() string { return c.buf.String() }

// Uniquify returns the next per-evaluation unique number, used to keep
// foreach placeholder bindings distinct across iterations.
func (c *Context) Uniquify() int {
	n := c.uniq
	c.uniq++
	return n
}

// capture runs f with a fresh accumulator and returns what it appended.
func (c *Context) capture(f func() error) (string, error) {
	old := c.buf
	c.buf = &bytes.Buffer{}
	err := f()
	out := c.buf.String()
	c.buf = old
	return out, err
}

// Resolve reads a property path: scope locals first, then the parameter
// object's properties. The second result reports whether the name resolved.
func (c *Context) Resolve(path string) (any, bool, error) {
	tok, err := reflectx.TokenizeProperty(path)
	if err != nil {
		return nil, false, err
	}
	if local, ok := c.bindings[tok.Name]; ok {
		if tok.Index == "" && !tok.HasNext() {
			return local, true, nil
		}
		// navigate the remainder relative to the local
		root := map[string]any{tok.Name: local}
		v, err := c.cfg.NewMetaObject(root).GetValue(path)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}
	if c.param == nil {
		return nil, false, nil
	}
	meta := c.cfg.NewMetaObject(c.param)
	if !meta.HasReadable(path) {
		// map parameters resolve keys dynamically
		v, err := meta.GetValue(path)
		if err != nil || v == nil {
			return nil, false, err
		}
		return v, true, nil
	}
	v, err := meta.GetValue(path)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// resolver adapts Resolve for expression evaluation.
func (c *Context) resolver(path string) (any, bool) {
	v, ok, err := c.Resolve(path)
	if err != nil {
		return nil, false
	}
	return v, ok
}

// EvalError reports a node that could not evaluate against the scope.
type EvalError struct {
	Node   string
	Detail string
	Err    error
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dynsql: %s %s: %v", e.Node, e.Detail, e.Err)
	}
	return fmt.Sprintf("dynsql: %s %s", e.Node, e.Detail)
}

func (e *EvalError) Unwrap() error { return e.Err }
