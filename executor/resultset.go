package executor

import (
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/myfstd/gbatis/codec"
	"github.com/myfstd/gbatis/driver"
	"github.com/myfstd/gbatis/mapping"
	"github.com/myfstd/gbatis/reflectx"
)

// ResultSetWrapper buffers the current row of a cursor and answers cell reads
// by case-insensitive column name. It implements codec.Row.
type ResultSetWrapper struct {
	cursor  driver.Cursor
	columns []string
	index   map[string]int // upper-cased name -> ordinal
	row     []any

	partitions map[string]*partition
}

// partition is the mapped/unmapped column split for one (result map, prefix).
type partition struct {
	mapped   []string
	unmapped []string
}

// NewResultSetWrapper wraps the cursor's current result set.
func NewResultSetWrapper(cursor driver.Cursor) *ResultSetWrapper {
	w := &ResultSetWrapper{
		cursor:     cursor,
		columns:    cursor.Columns(),
		index:      map[string]int{},
		partitions: map[string]*partition{},
	}
	for i, c := range w.columns {
		w.index[strings.ToUpper(c)] = i
	}
	w.row = make([]any, len(w.columns))
	return w
}

// Next advances the cursor and buffers the row's cells.
func (w *ResultSetWrapper) Next() (bool, error) {
	if !w.cursor.Next() {
		return false, w.cursor.Err()
	}
	for i := range w.columns {
		cell, err := w.cursor.Get(i)
		if err != nil {
			return false, err
		}
		w.row[i] = cell
	}
	return true, nil
}

// Columns lists the result set's column names.
func (w *ResultSetWrapper) Columns() []string { return w.columns }

// Has reports whether the column exists in this result set.
func (w *ResultSetWrapper) Has(column string) bool {
	_, ok := w.index[strings.ToUpper(column)]
	return ok
}

// Cell returns the current row's cell for a column name.
func (w *ResultSetWrapper) Cell(column string) (any, error) {
	i, ok := w.index[strings.ToUpper(column)]
	if !ok {
		return nil, fmt.Errorf("no column %q in result set", column)
	}
	return w.row[i], nil
}

// split partitions the columns against a result map under a prefix.
func (w *ResultSetWrapper) split(rm *mapping.ResultMap, prefix string) *partition {
	cacheKey := rm.ID + ":" + prefix
	if p, ok := w.partitions[cacheKey]; ok {
		return p
	}
	p := &partition{}
	up := strings.ToUpper(prefix)
	for _, col := range w.columns {
		name := strings.ToUpper(col)
		if up != "" {
			if !strings.HasPrefix(name, up) {
				p.unmapped = append(p.unmapped, col)
				continue
			}
			name = name[len(up):]
		}
		if rm.MappedColumns[name] {
			p.mapped = append(p.mapped, col)
		} else {
			p.unmapped = append(p.unmapped, col)
		}
	}
	w.partitions[cacheKey] = p
	return p
}

// ResultSetHandler maps cursor rows into objects per the statement's result
// maps.
type ResultSetHandler struct {
	cfg    *mapping.Configuration
	exec   Executor
	ms     *mapping.MappedStatement
	bounds RowBounds
}

// NewResultSetHandler prepares mapping for one invocation.
func NewResultSetHandler(cfg *mapping.Configuration, exec Executor, ms *mapping.MappedStatement, bounds RowBounds) *ResultSetHandler {
	return &ResultSetHandler{cfg: cfg, exec: exec, ms: ms, bounds: bounds}
}

// HandleResultSets consumes every result set: the statement's result maps
// apply in order to successive result sets. With a single map the mapped rows
// are returned directly; with several, one list per result set.
func (h *ResultSetHandler) HandleResultSets(cursor driver.Cursor) ([]any, error) {
	var lists [][]any
	for i, rm := range h.ms.ResultMaps {
		if i > 0 {
			if !h.cfg.Settings.MultipleResultSetsEnabled || !cursor.NextResultSet() {
				break
			}
		}
		w := NewResultSetWrapper(cursor)
		list, err := h.handleRows(w, rm)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	if len(lists) == 1 {
		return lists[0], nil
	}
	out := make([]any, len(lists))
	for i, l := range lists {
		out[i] = l
	}
	return out, nil
}

func (h *ResultSetHandler) handleRows(w *ResultSetWrapper, rm *mapping.ResultMap) ([]any, error) {
	if rm.HasNestedResultMaps {
		return h.handleNestedRows(w, rm)
	}
	return h.handleSimpleRows(w, rm)
}

func (h *ResultSetHandler) handleSimpleRows(w *ResultSetWrapper, rm *mapping.ResultMap) ([]any, error) {
	var results []any
	skipped := 0
	for len(results) < h.bounds.Limit {
		ok, err := w.Next()
		if err != nil {
			return nil, &ExecutionError{StatementID: h.ms.ID, Err: err}
		}
		if !ok {
			break
		}
		if skipped < h.bounds.Offset {
			skipped++
			continue
		}
		actual, err := h.discriminate(w, rm)
		if err != nil {
			return nil, err
		}
		obj, _, err := h.mapRow(w, actual, "")
		if err != nil {
			return nil, err
		}
		results = append(results, obj)
	}
	return results, nil
}

// discriminate resolves the effective result map for the current row,
// following nested discriminators.
func (h *ResultSetHandler) discriminate(w *ResultSetWrapper, rm *mapping.ResultMap) (*mapping.ResultMap, error) {
	seen := map[string]bool{rm.ID: true}
	for rm.Discriminator != nil {
		d := rm.Discriminator
		v, err := d.Handler.Result(w, d.Column)
		if err != nil {
			return nil, &MappingError{StatementID: h.ms.ID, Column: d.Column, Err: err}
		}
		ref, ok := d.Cases[fmt.Sprintf("%v", v)]
		if !ok {
			return rm, nil
		}
		next, err := h.cfg.ResultMap(ref)
		if err != nil {
			return nil, &MappingError{StatementID: h.ms.ID, Column: d.Column, Err: err}
		}
		if seen[next.ID] {
			return next, nil
		}
		seen[next.ID] = true
		rm = next
	}
	return rm, nil
}

// mapRow builds one object from the current row. The second result reports
// whether any mapped column was non-null.
func (h *ResultSetHandler) mapRow(w *ResultSetWrapper, rm *mapping.ResultMap, prefix string) (any, bool, error) {
	target := reflectx.Deref(rm.Type)

	// scalar results decode the single column directly
	if h.cfg.TypeHandlers.Has(target) && len(rm.PropertyMappings) == 0 {
		col := w.Columns()[0]
		handler := h.cfg.TypeHandlers.Lookup(target, codec.JdbcUnset)
		v, err := handler.Result(w, col)
		if err != nil {
			return nil, false, &MappingError{StatementID: h.ms.ID, Column: col, Err: err}
		}
		return v, v != nil, nil
	}

	if target.Kind() == reflect.Map {
		return h.mapRowIntoMap(w, rm, prefix)
	}

	obj, found, err := h.createResult(w, rm, prefix)
	if err != nil {
		return nil, false, err
	}
	meta := h.cfg.NewMetaObject(obj)

	if f, err2 := h.applyAutomap(w, rm, prefix, meta); err2 != nil {
		return nil, false, err2
	} else if f {
		found = true
	}
	if f, err2 := h.applyPropertyMappings(w, rm, prefix, meta); err2 != nil {
		return nil, false, err2
	} else if f {
		found = true
	}

	if !found && !h.cfg.Settings.ReturnInstanceForEmptyRow {
		return nil, false, nil
	}
	return obj, found, nil
}

func (h *ResultSetHandler) mapRowIntoMap(w *ResultSetWrapper, rm *mapping.ResultMap, prefix string) (any, bool, error) {
	out := map[string]any{}
	found := false
	p := w.split(rm, prefix)
	for _, col := range append(append([]string{}, p.mapped...), p.unmapped...) {
		v, err := w.Cell(col)
		if err != nil {
			return nil, false, &MappingError{StatementID: h.ms.ID, Column: col, Err: err}
		}
		name := strings.TrimPrefix(strings.ToLower(col), strings.ToLower(prefix))
		out[name] = v
		if v != nil {
			found = true
		}
	}
	if !found && !h.cfg.Settings.ReturnInstanceForEmptyRow {
		return nil, false, nil
	}
	return out, found, nil
}

// createResult constructs the target object: constructor mappings feed their
// decoded values into the matching fields, otherwise the zero value is used.
func (h *ResultSetHandler) createResult(w *ResultSetWrapper, rm *mapping.ResultMap, prefix string) (any, bool, error) {
	target := reflectx.Deref(rm.Type)
	obj := reflect.New(target)
	found := false
	if len(rm.ConstructorMappings) > 0 {
		meta := h.cfg.NewMetaObject(obj.Interface())
		for i, cm := range rm.ConstructorMappings {
			v, err := h.readMappedCell(w, cm, prefix)
			if err != nil {
				return nil, false, err
			}
			if v != nil {
				found = true
			}
			if cm.Property != "" {
				if err := meta.SetValue(cm.Property, v); err != nil {
					return nil, false, &MappingError{StatementID: h.ms.ID, Column: cm.Column, Property: cm.Property, Err: err}
				}
				continue
			}
			// unnamed argument: positional field assignment
			if i >= target.NumField() {
				return nil, false, &MappingError{StatementID: h.ms.ID, Column: cm.Column,
					Err: fmt.Errorf("constructor argument %d exceeds %s field count", i, target)}
			}
			fv := obj.Elem().Field(i)
			if v != nil {
				rv := reflect.ValueOf(v)
				if !rv.Type().AssignableTo(fv.Type()) {
					if !rv.Type().ConvertibleTo(fv.Type()) {
						return nil, false, &MappingError{StatementID: h.ms.ID, Column: cm.Column,
							Err: fmt.Errorf("cannot assign %T to constructor argument %s", v, fv.Type())}
					}
					rv = rv.Convert(fv.Type())
				}
				fv.Set(rv)
			}
		}
	}
	return obj.Interface(), found, nil
}

func (h *ResultSetHandler) readMappedCell(w *ResultSetWrapper, m *mapping.ResultMapping, prefix string) (any, error) {
	col := prefix + m.Column
	if !w.Has(col) {
		return nil, nil
	}
	handler := m.Handler
	if handler == nil {
		handler = h.cfg.TypeHandlers.Lookup(m.JavaType, m.JdbcType)
	}
	v, err := handler.Result(w, col)
	if err != nil {
		return nil, &MappingError{StatementID: h.ms.ID, Column: col, Property: m.Property, Err: err}
	}
	return v, nil
}

// applyPropertyMappings writes the explicitly mapped columns, wires nested
// selects, and skips nested result maps (handled by the nested row loop).
func (h *ResultSetHandler) applyPropertyMappings(w *ResultSetWrapper, rm *mapping.ResultMap, prefix string, meta *reflectx.MetaObject) (bool, error) {
	found := false
	for _, m := range rm.PropertyMappings {
		if m.NestedResultMap != "" {
			continue
		}
		if m.NestedSelect != "" {
			f, err := h.applyNestedSelect(w, m, prefix, meta)
			if err != nil {
				return false, err
			}
			if f {
				found = true
			}
			continue
		}
		v, err := h.readMappedCell(w, m, prefix)
		if err != nil {
			return false, err
		}
		if v == nil && !h.cfg.Settings.CallSettersOnNulls {
			continue
		}
		if v != nil {
			found = true
		}
		if err := meta.SetValue(m.Property, v); err != nil {
			return false, &MappingError{StatementID: h.ms.ID, Column: prefix + m.Column, Property: m.Property, Err: err}
		}
	}
	return found, nil
}

// applyNestedSelect executes or defers the sub-select keyed by the column
// value.
func (h *ResultSetHandler) applyNestedSelect(w *ResultSetWrapper, m *mapping.ResultMapping, prefix string, meta *reflectx.MetaObject) (bool, error) {
	key, err := h.readMappedCell(w, m, prefix)
	if err != nil {
		return false, err
	}
	if key == nil {
		return false, nil
	}
	sub, err := h.cfg.MappedStatement(m.NestedSelect)
	if err != nil {
		return false, &MappingError{StatementID: h.ms.ID, Property: m.Property, Err: err}
	}
	load := func() (any, error) {
		list, err := h.exec.Query(sub, key, DefaultRowBounds())
		if err != nil {
			return nil, err
		}
		return h.shapeNested(m, meta, list)
	}
	declared, _ := meta.GetterType(m.Property)
	if m.LazyLoad && declared == mapping.LazyType {
		if err := meta.SetValue(m.Property, mapping.Lazy(newDeferredLoad(load))); err != nil {
			return false, &MappingError{StatementID: h.ms.ID, Property: m.Property, Err: err}
		}
		return true, nil
	}
	v, err := load()
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	if err := meta.SetValue(m.Property, v); err != nil {
		return false, &MappingError{StatementID: h.ms.ID, Property: m.Property, Err: err}
	}
	return true, nil
}

// shapeNested adapts a sub-select's row list to the property's declared
// shape: the list for sequences, the single row otherwise.
func (h *ResultSetHandler) shapeNested(m *mapping.ResultMapping, meta *reflectx.MetaObject, list []any) (any, error) {
	declared, err := meta.GetterType(m.Property)
	if err != nil {
		return nil, err
	}
	if declared == mapping.LazyType {
		// deferred resolvers hand back the full row list
		return list, nil
	}
	if declared != nil && declared.Kind() == reflect.Slice {
		out := reflect.MakeSlice(declared, 0, len(list))
		for _, item := range list {
			rv := reflect.ValueOf(item)
			if rv.Type().AssignableTo(declared.Elem()) {
				out = reflect.Append(out, rv)
			} else if rv.Kind() == reflect.Ptr && rv.Elem().Type().AssignableTo(declared.Elem()) {
				out = reflect.Append(out, rv.Elem())
			} else {
				return nil, fmt.Errorf("cannot place %T into %s", item, declared)
			}
		}
		return out.Interface(), nil
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// applyAutomap assigns unmapped columns per the auto-map policy.
func (h *ResultSetHandler) applyAutomap(w *ResultSetWrapper, rm *mapping.ResultMap, prefix string, meta *reflectx.MetaObject) (bool, error) {
	policy := h.cfg.Settings.AutoMappingBehavior
	if rm.AutoMapping != nil {
		if *rm.AutoMapping {
			policy = mapping.AutoMappingFull
		} else {
			policy = mapping.AutoMappingNone
		}
	}
	if policy == mapping.AutoMappingNone {
		return false, nil
	}
	if policy == mapping.AutoMappingPartial && rm.HasNestedResultMaps {
		return false, nil
	}
	found := false
	p := w.split(rm, prefix)
	for _, col := range p.unmapped {
		name := col
		if prefix != "" {
			if !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix)) {
				continue
			}
			name = name[len(prefix):]
		}
		prop := name
		if h.cfg.Settings.MapUnderscoreToCamelCase {
			prop = underscoreToCamel(prop)
		}
		// the unknown-column check fires before any codec lookup
		if !meta.HasWritable(prop) {
			switch h.cfg.Settings.AutoMappingUnknownColumn {
			case mapping.UnknownColumnWarning:
				log.Printf("gbatis: statement %s: unknown column %q has no matching property", h.ms.ID, col)
			case mapping.UnknownColumnFailing:
				return false, &MappingError{StatementID: h.ms.ID, Column: col,
					Err: fmt.Errorf("no property matches unknown column")}
			}
			continue
		}
		declared, err := meta.GetterType(prop)
		if err != nil {
			return false, &MappingError{StatementID: h.ms.ID, Column: col, Property: prop, Err: err}
		}
		handler := h.cfg.TypeHandlers.Lookup(reflectx.Deref(declared), codec.JdbcUnset)
		v, err := handler.Result(w, col)
		if err != nil {
			return false, &MappingError{StatementID: h.ms.ID, Column: col, Property: prop, Err: err}
		}
		if v == nil && !h.cfg.Settings.CallSettersOnNulls {
			continue
		}
		if v != nil {
			found = true
		}
		if err := meta.SetValue(prop, v); err != nil {
			return false, &MappingError{StatementID: h.ms.ID, Column: col, Property: prop, Err: err}
		}
	}
	return found, nil
}

func underscoreToCamel(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
