// Package reflectx implements the cached struct metamodel and the property
// navigator used to read parameter values out of, and write row values into,
// application object graphs. Field names are taken from the `db` struct tag
// when present and from the Go field name otherwise.
package reflectx

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// AmbiguousAccessorError reports two fields of one struct mapping to the same
// property name.
type AmbiguousAccessorError struct {
	Type reflect.Type
	Name string
}

func (e *AmbiguousAccessorError) Error() string {
	return fmt.Sprintf("ambiguous accessor for property %q on type %s", e.Name, e.Type)
}

// FieldInfo is one reachable property of an analyzed type: its mapped name,
// dotted path from the root, and the field-index chain that reaches it. The
// Read/Slot pair is the property's accessor.
type FieldInfo struct {
	Name    string
	Path    string
	Index   []int
	Field   reflect.StructField
	Options map[string]string

	// depth counts embedded-struct promotions; shallower fields shadow
	// deeper ones when names collide.
	depth int
}

// ElemType resolves the element type of a field declared as a slice or array,
// and the field's own dereferenced type otherwise.
func (f *FieldInfo) ElemType() reflect.Type {
	t := Deref(f.Field.Type)
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		return Deref(t.Elem())
	}
	return t
}

// Read walks the index chain without allocating. A nil intermediate yields
// the zero Value.
func (f *FieldInfo) Read(v reflect.Value) reflect.Value {
	for _, i := range f.Index {
		v = reflect.Indirect(v)
		if !v.IsValid() {
			return reflect.Value{}
		}
		v = v.Field(i)
		if v.Kind() == reflect.Ptr && v.IsNil() {
			return reflect.Value{}
		}
	}
	return v
}

// Slot walks the index chain for writing, allocating nil pointers and maps on
// the way so the result is settable.
func (f *FieldInfo) Slot(v reflect.Value) reflect.Value {
	for _, i := range f.Index {
		v = reflect.Indirect(v).Field(i)
		switch v.Kind() {
		case reflect.Ptr:
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
		case reflect.Map:
			if v.IsNil() {
				v.Set(reflect.MakeMap(v.Type()))
			}
		}
	}
	return v
}

// StructMap is the published metamodel of one struct type: every reachable
// property with its accessor, plus the name tables used to match
// column-derived names.
type StructMap struct {
	typ    reflect.Type
	fields []*FieldInfo

	byPath map[string]*FieldInfo
	names  map[string]*FieldInfo // top-level, exact
	folded map[string]*FieldInfo // top-level, lower-cased

	ambiguous map[string]bool // folded names with unrelated claimants
}

// PropertyNames lists the top-level property names in declaration order.
// Exported fields are both readable and writable, so one list serves as both
// sets.
func (sm *StructMap) PropertyNames() []string {
	var out []string
	for _, fi := range sm.fields {
		if !strings.ContainsRune(fi.Path, '.') && sm.names[fi.Name] == fi {
			out = append(out, fi.Name)
		}
	}
	sort.Strings(out)
	return out
}

// GetByPath returns the property at a dotted path, or nil.
func (sm *StructMap) GetByPath(path string) *FieldInfo { return sm.byPath[path] }

// GetByName returns the property for a name. The exact name wins; a
// case-insensitive match is tried next, failing with AmbiguousAccessorError
// when unrelated fields share the folded name.
func (sm *StructMap) GetByName(name string) (*FieldInfo, error) {
	if fi, ok := sm.names[name]; ok {
		return fi, nil
	}
	key := strings.ToLower(name)
	if sm.ambiguous[key] {
		return nil, &AmbiguousAccessorError{Type: sm.typ, Name: name}
	}
	if fi, ok := sm.folded[key]; ok {
		return fi, nil
	}
	return nil, nil
}

// claim enters a top-level property into the name tables. Conflicts resolve
// by promotion depth: a shallower field shadows a deeper embedded one, and
// unrelated fields at equal depth poison the folded name.
func (sm *StructMap) claim(fi *FieldInfo) {
	if prev, ok := sm.names[fi.Name]; !ok || fi.depth < prev.depth {
		sm.names[fi.Name] = fi
	}
	key := strings.ToLower(fi.Name)
	prev, ok := sm.folded[key]
	switch {
	case !ok:
		sm.folded[key] = fi
	case fi.depth < prev.depth:
		sm.folded[key] = fi
		delete(sm.ambiguous, key)
	case fi.depth == prev.depth && fi.Name != prev.Name:
		sm.ambiguous[key] = true
	}
}

// Mapper analyzes types once and publishes the result process-wide. First
// populations of the same type may race; LoadOrStore guarantees they converge
// to a single published StructMap.
type Mapper struct {
	tagName string
	cache   sync.Map // reflect.Type -> *StructMap
}

// NewMapper returns a Mapper keyed on the given struct tag.
func NewMapper(tagName string) *Mapper {
	return &Mapper{tagName: tagName}
}

// TypeMap returns the metamodel for t, computing it on first use.
func (m *Mapper) TypeMap(t reflect.Type) *StructMap {
	t = Deref(t)
	if cached, ok := m.cache.Load(t); ok {
		return cached.(*StructMap)
	}
	sm := &StructMap{
		typ:       t,
		byPath:    map[string]*FieldInfo{},
		names:     map[string]*FieldInfo{},
		folded:    map[string]*FieldInfo{},
		ambiguous: map[string]bool{},
	}
	if t.Kind() == reflect.Struct {
		m.walk(sm, t, nil, "", 0, map[reflect.Type]bool{t: true})
	}
	published, _ := m.cache.LoadOrStore(t, sm)
	return published.(*StructMap)
}

// walk descends t collecting properties. index and path locate t relative to
// the root; depth counts embedded promotions into the root's top level; seen
// guards the current branch against self-referential types.
func (m *Mapper) walk(sm *StructMap, t reflect.Type, index []int, path string, depth int, seen map[reflect.Type]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue
		}
		name, opts := m.fieldName(f)
		if name == "-" {
			continue
		}
		chain := make([]int, len(index)+1)
		copy(chain, index)
		chain[len(index)] = i

		ft := Deref(f.Type)
		if f.Anonymous && ft.Kind() == reflect.Struct && !m.tagged(f) {
			// untagged embedded struct: its fields promote into this level
			if !seen[ft] {
				seen[ft] = true
				m.walk(sm, ft, chain, path, depth+1, seen)
				delete(seen, ft)
			}
			continue
		}

		fi := &FieldInfo{
			Name:    name,
			Path:    joinPath(path, name),
			Index:   chain,
			Field:   f,
			Options: opts,
			depth:   depth,
		}
		sm.fields = append(sm.fields, fi)
		if prev, taken := sm.byPath[fi.Path]; !taken || fi.depth < prev.depth {
			sm.byPath[fi.Path] = fi
		}
		if path == "" {
			sm.claim(fi)
		}
		if ft.Kind() == reflect.Struct && !seen[ft] {
			seen[ft] = true
			m.walk(sm, ft, chain, fi.Path, depth, seen)
			delete(seen, ft)
		}
	}
}

// fieldName resolves a field's mapped name and tag options.
func (m *Mapper) fieldName(f reflect.StructField) (string, map[string]string) {
	if !m.tagged(f) {
		return f.Name, nil
	}
	tag := f.Tag.Get(m.tagName)
	name, rest, _ := strings.Cut(tag, ",")
	opts := map[string]string{}
	for rest != "" {
		var opt string
		opt, rest, _ = strings.Cut(rest, ",")
		k, v, _ := strings.Cut(opt, "=")
		opts[k] = v
	}
	if name == "" {
		name = f.Name
	}
	return name, opts
}

func (m *Mapper) tagged(f reflect.StructField) bool {
	if m.tagName == "" {
		return false
	}
	_, ok := f.Tag.Lookup(m.tagName)
	return ok
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Deref strips one level of pointer indirection from a type.
func Deref(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
