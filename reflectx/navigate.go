package reflectx

import (
	"fmt"
	"reflect"
	"strconv"
)

// UnindexableNodeError reports an indexed segment applied to a value that is
// neither a sequence nor a string-keyed map.
type UnindexableNodeError struct {
	Path string
	Kind reflect.Kind
}

func (e *UnindexableNodeError) Error() string {
	return fmt.Sprintf("cannot index %s at %q", e.Kind, e.Path)
}

// NoDefaultConstructorError reports a write that would need to materialize an
// intermediate value of a type that cannot be constructed.
type NoDefaultConstructorError struct {
	Path string
	Type reflect.Type
}

func (e *NoDefaultConstructorError) Error() string {
	return fmt.Sprintf("cannot materialize %s at %q", e.Type, e.Path)
}

// MetaObject navigates one root object through dotted, optionally indexed
// property expressions. Reads are side-effect-free; writes mutate only the
// leaf, materializing nil intermediates on the way down.
type MetaObject struct {
	root   reflect.Value
	mapper *Mapper
}

// MetaOf wraps v for navigation. v should be a pointer for writes to stick.
func MetaOf(v any, m *Mapper) *MetaObject {
	return &MetaObject{root: reflect.ValueOf(v), mapper: m}
}

// HasValue reports whether the root is non-nil.
func (o *MetaObject) HasValue() bool {
	return o.root.IsValid() && !(o.root.Kind() == reflect.Ptr && o.root.IsNil())
}

// GetValue reads the value at path. A nil intermediate yields nil, nil.
func (o *MetaObject) GetValue(path string) (any, error) {
	v, err := o.resolveRead(path)
	if err != nil || !v.IsValid() {
		return nil, err
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, nil
	}
	return v.Interface(), nil
}

// HasReadable reports whether path resolves against the root's type.
func (o *MetaObject) HasReadable(path string) bool {
	if !o.root.IsValid() {
		return false
	}
	t, err := o.typeAt(Deref(o.root.Type()), path)
	return err == nil && t != nil
}

// HasWritable reports whether path names a settable location.
func (o *MetaObject) HasWritable(path string) bool {
	return o.HasReadable(path)
}

// GetterType returns the declared type at path, or nil when the path does not
// resolve.
func (o *MetaObject) GetterType(path string) (reflect.Type, error) {
	if !o.root.IsValid() {
		return nil, nil
	}
	return o.typeAt(Deref(o.root.Type()), path)
}

func (o *MetaObject) typeAt(t reflect.Type, path string) (reflect.Type, error) {
	tok, err := TokenizeProperty(path)
	if err != nil {
		return nil, err
	}
	for {
		t = Deref(t)
		switch t.Kind() {
		case reflect.Map:
			t = t.Elem()
		case reflect.Struct:
			fi, err := o.mapper.TypeMap(t).GetByName(tok.Name)
			if err != nil {
				return nil, err
			}
			if fi == nil {
				return nil, nil
			}
			t = fi.Field.Type
		case reflect.Interface:
			return anyType, nil
		default:
			return nil, nil
		}
		if tok.Index != "" {
			t = Deref(t)
			switch t.Kind() {
			case reflect.Slice, reflect.Array:
				t = t.Elem()
			case reflect.Map:
				t = t.Elem()
			case reflect.Interface:
				t = anyType
			default:
				return nil, &UnindexableNodeError{Path: tok.IndexedName, Kind: t.Kind()}
			}
		}
		if !tok.HasNext() {
			return t, nil
		}
		if tok, err = tok.Next(); err != nil {
			return nil, err
		}
	}
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// TypeAt resolves the declared type at a property path of root, without an
// instance. It returns nil when the path does not resolve.
func TypeAt(m *Mapper, root reflect.Type, path string) (reflect.Type, error) {
	if root == nil {
		return nil, nil
	}
	o := &MetaObject{mapper: m}
	return o.typeAt(Deref(root), path)
}

func (o *MetaObject) resolveRead(path string) (reflect.Value, error) {
	tok, err := TokenizeProperty(path)
	if err != nil {
		return reflect.Value{}, err
	}
	v := o.root
	for {
		v, err = readSegment(v, tok, o.mapper)
		if err != nil || !v.IsValid() {
			return reflect.Value{}, err
		}
		if !tok.HasNext() {
			return v, nil
		}
		if tok, err = tok.Next(); err != nil {
			return reflect.Value{}, err
		}
	}
}

func readSegment(v reflect.Value, tok PropToken, m *Mapper) (reflect.Value, error) {
	v = indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, nil
	}
	if tok.Name != "" {
		switch v.Kind() {
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				return reflect.Value{}, nil
			}
			v = indirect(v.MapIndex(reflect.ValueOf(tok.Name).Convert(v.Type().Key())))
		case reflect.Struct:
			fi, err := m.TypeMap(v.Type()).GetByName(tok.Name)
			if err != nil {
				return reflect.Value{}, err
			}
			if fi == nil {
				return reflect.Value{}, nil
			}
			v = fi.Read(v)
		default:
			return reflect.Value{}, nil
		}
		if !v.IsValid() {
			return reflect.Value{}, nil
		}
	}
	if tok.Index != "" {
		v = indirect(v)
		if !v.IsValid() {
			return reflect.Value{}, nil
		}
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			i, err := strconv.Atoi(tok.Index)
			if err != nil {
				return reflect.Value{}, &UnindexableNodeError{Path: tok.IndexedName, Kind: v.Kind()}
			}
			if i < 0 || i >= v.Len() {
				return reflect.Value{}, nil
			}
			v = v.Index(i)
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				return reflect.Value{}, &UnindexableNodeError{Path: tok.IndexedName, Kind: v.Kind()}
			}
			v = v.MapIndex(reflect.ValueOf(tok.Index).Convert(v.Type().Key()))
		default:
			return reflect.Value{}, &UnindexableNodeError{Path: tok.IndexedName, Kind: v.Kind()}
		}
	}
	return v, nil
}

// indirect unwraps pointers and interfaces without allocating.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.Kind() == reflect.Ptr && v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// SetValue writes value at path, materializing intermediates through their
// declared types.
func (o *MetaObject) SetValue(path string, value any) error {
	tok, err := TokenizeProperty(path)
	if err != nil {
		return err
	}
	v := o.root
	for {
		if tok.HasNext() {
			v, err = o.descendForWrite(v, tok)
			if err != nil {
				return err
			}
			if tok, err = tok.Next(); err != nil {
				return err
			}
			continue
		}
		return o.setLeaf(v, tok, value)
	}
}

// descendForWrite resolves one intermediate segment, allocating nil values.
func (o *MetaObject) descendForWrite(v reflect.Value, tok PropToken) (reflect.Value, error) {
	v = writableDeref(v)
	if !v.IsValid() {
		return v, &NoDefaultConstructorError{Path: tok.IndexedName}
	}
	if tok.Name != "" {
		next, err := o.propertyForWrite(v, tok.Name)
		if err != nil || !next.IsValid() {
			return reflect.Value{}, err
		}
		v = next
	}
	if tok.Index != "" {
		return o.indexForWrite(v, tok)
	}
	return v, nil
}

func (o *MetaObject) propertyForWrite(v reflect.Value, name string) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("reflectx: map key type %s cannot hold property names", v.Type().Key())
		}
		key := reflect.ValueOf(name).Convert(v.Type().Key())
		elem := v.MapIndex(key)
		if !elem.IsValid() || needsConstruct(elem) {
			et := v.Type().Elem()
			if et.Kind() == reflect.Interface {
				// untyped map entries materialize as map[string]any
				fresh := reflect.ValueOf(map[string]any{})
				v.SetMapIndex(key, fresh)
				return fresh, nil
			}
			fresh, err := construct(et, name)
			if err != nil {
				return reflect.Value{}, err
			}
			v.SetMapIndex(key, fresh)
			return fresh, nil
		}
		return elem, nil
	case reflect.Struct:
		fi, err := o.mapper.TypeMap(v.Type()).GetByName(name)
		if err != nil {
			return reflect.Value{}, err
		}
		if fi == nil {
			return reflect.Value{}, fmt.Errorf("reflectx: no property %q on %s", name, v.Type())
		}
		fv := fi.Slot(v)
		if needsConstruct(fv) {
			fresh, err := construct(fv.Type(), name)
			if err != nil {
				return reflect.Value{}, err
			}
			fv.Set(fresh)
		}
		return fv, nil
	default:
		return reflect.Value{}, fmt.Errorf("reflectx: cannot write property %q through %s", name, v.Kind())
	}
}

func (o *MetaObject) indexForWrite(v reflect.Value, tok PropToken) (reflect.Value, error) {
	v = writableDeref(v)
	switch v.Kind() {
	case reflect.Slice:
		i, err := strconv.Atoi(tok.Index)
		if err != nil {
			return reflect.Value{}, &UnindexableNodeError{Path: tok.IndexedName, Kind: v.Kind()}
		}
		if i >= v.Len() {
			if !v.CanSet() {
				return reflect.Value{}, fmt.Errorf("reflectx: cannot grow unaddressable slice at %q", tok.IndexedName)
			}
			grown := reflect.MakeSlice(v.Type(), i+1, i+1)
			reflect.Copy(grown, v)
			v.Set(grown)
		}
		elem := v.Index(i)
		if needsConstruct(elem) {
			fresh, err := construct(elem.Type(), tok.IndexedName)
			if err != nil {
				return reflect.Value{}, err
			}
			elem.Set(fresh)
		}
		return elem, nil
	case reflect.Array:
		i, err := strconv.Atoi(tok.Index)
		if err != nil || i < 0 || i >= v.Len() {
			return reflect.Value{}, &UnindexableNodeError{Path: tok.IndexedName, Kind: v.Kind()}
		}
		return v.Index(i), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, &UnindexableNodeError{Path: tok.IndexedName, Kind: v.Kind()}
		}
		key := reflect.ValueOf(tok.Index).Convert(v.Type().Key())
		elem := v.MapIndex(key)
		if !elem.IsValid() {
			fresh, err := construct(v.Type().Elem(), tok.IndexedName)
			if err != nil {
				return reflect.Value{}, err
			}
			v.SetMapIndex(key, fresh)
			return fresh, nil
		}
		return elem, nil
	default:
		return reflect.Value{}, &UnindexableNodeError{Path: tok.IndexedName, Kind: v.Kind()}
	}
}

func (o *MetaObject) setLeaf(v reflect.Value, tok PropToken, value any) error {
	v = writableDeref(v)
	if tok.Index != "" {
		parent := v
		if tok.Name != "" {
			var err error
			parent, err = o.propertyForWrite(v, tok.Name)
			if err != nil {
				return err
			}
			parent = writableDeref(parent)
		}
		if parent.Kind() == reflect.Map {
			if parent.Type().Key().Kind() != reflect.String {
				return &UnindexableNodeError{Path: tok.IndexedName, Kind: parent.Kind()}
			}
			elem := reflect.New(parent.Type().Elem()).Elem()
			if err := assign(elem, value); err != nil {
				return err
			}
			parent.SetMapIndex(reflect.ValueOf(tok.Index).Convert(parent.Type().Key()), elem)
			return nil
		}
		slot, err := o.indexForWrite(parent, PropToken{IndexedName: tok.IndexedName, Index: tok.Index})
		if err != nil {
			return err
		}
		return assign(slot, value)
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("reflectx: map key type %s cannot hold property names", v.Type().Key())
		}
		key := reflect.ValueOf(tok.Name).Convert(v.Type().Key())
		if value == nil {
			v.SetMapIndex(key, reflect.Zero(v.Type().Elem()))
			return nil
		}
		rv := reflect.ValueOf(value)
		if !rv.Type().AssignableTo(v.Type().Elem()) {
			if !rv.Type().ConvertibleTo(v.Type().Elem()) {
				return fmt.Errorf("reflectx: cannot assign %T to map element %s", value, v.Type().Elem())
			}
			rv = rv.Convert(v.Type().Elem())
		}
		v.SetMapIndex(key, rv)
		return nil
	case reflect.Struct:
		fi, err := o.mapper.TypeMap(v.Type()).GetByName(tok.Name)
		if err != nil {
			return err
		}
		if fi == nil {
			return fmt.Errorf("reflectx: no property %q on %s", tok.Name, v.Type())
		}
		return assign(fi.Slot(v), value)
	default:
		return fmt.Errorf("reflectx: cannot set property %q on %s", tok.Name, v.Kind())
	}
}

// writableDeref unwraps interfaces and non-nil pointers, keeping settability.
func writableDeref(v reflect.Value) reflect.Value {
	for v.IsValid() {
		if v.Kind() == reflect.Interface && !v.IsNil() {
			v = v.Elem()
			continue
		}
		if v.Kind() == reflect.Ptr && !v.IsNil() {
			v = v.Elem()
			continue
		}
		return v
	}
	return v
}

func needsConstruct(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// construct builds a fresh value of the declared type t. Interfaces and
// channels have no usable zero construction.
func construct(t reflect.Type, at string) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.Ptr:
		inner, err := construct(t.Elem(), at)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	case reflect.Map:
		return reflect.MakeMap(t), nil
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0), nil
	case reflect.Interface, reflect.Chan, reflect.Func:
		return reflect.Value{}, &NoDefaultConstructorError{Path: at, Type: t}
	default:
		return reflect.New(t).Elem(), nil
	}
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// assign writes value into slot, converting between compatible kinds.
func assign(slot reflect.Value, value any) error {
	if !slot.CanSet() {
		return fmt.Errorf("reflectx: unsettable target %s", slot.Type())
	}
	if value == nil {
		slot.Set(reflect.Zero(slot.Type()))
		return nil
	}
	rv := reflect.ValueOf(value)
	st := slot.Type()
	if rv.Type().AssignableTo(st) {
		slot.Set(rv)
		return nil
	}
	if st.Kind() == reflect.Ptr {
		if rv.Type().AssignableTo(st.Elem()) {
			p := reflect.New(st.Elem())
			p.Elem().Set(rv)
			slot.Set(p)
			return nil
		}
		if rv.Type().ConvertibleTo(st.Elem()) {
			p := reflect.New(st.Elem())
			p.Elem().Set(rv.Convert(st.Elem()))
			slot.Set(p)
			return nil
		}
	}
	if rv.Type().ConvertibleTo(st) {
		// refuse the rune-casting string<->numeric conversions reflect allows
		if isNumeric(rv.Kind()) && st.Kind() == reflect.String ||
			rv.Kind() == reflect.String && isNumeric(st.Kind()) {
			return fmt.Errorf("reflectx: cannot assign %T to %s", value, st)
		}
		slot.Set(rv.Convert(st))
		return nil
	}
	return fmt.Errorf("reflectx: cannot assign %T to %s", value, st)
}
