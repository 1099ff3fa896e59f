package executor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/myfstd/gbatis/mapping"
	"github.com/myfstd/gbatis/reflectx"
)

// handleNestedRows maps joined rows: parents are identity-tracked by their
// id-flagged columns, and successive rows with the same identity attach
// children to the same parent instead of duplicating it.
func (h *ResultSetHandler) handleNestedRows(w *ResultSetWrapper, rm *mapping.ResultMap) ([]any, error) {
	var results []any
	var last any
	var lastMeta *reflectx.MetaObject
	lastKey := ""
	children := map[string]any{}
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
		key, err := h.rowKey(w, actual, "")
		if err != nil {
			return nil, err
		}
		if last != nil && key == lastKey {
			if err := h.applyNested(w, actual, "", lastMeta, children, ""); err != nil {
				return nil, err
			}
			continue
		}
		if last != nil {
			results = append(results, last)
		}
		obj, _, err := h.mapRow(w, actual, "")
		if err != nil {
			return nil, err
		}
		children = map[string]any{}
		last, lastKey = obj, key
		if obj != nil {
			lastMeta = h.cfg.NewMetaObject(obj)
			if err := h.applyNested(w, actual, "", lastMeta, children, ""); err != nil {
				return nil, err
			}
		}
	}
	if last != nil && len(results) < h.bounds.Limit {
		results = append(results, last)
	}
	return results, nil
}

// rowKey renders the row's identity under a result map: the id-flagged
// columns when declared, every mapped leaf column otherwise.
func (h *ResultSetHandler) rowKey(w *ResultSetWrapper, rm *mapping.ResultMap, prefix string) (string, error) {
	mappings := rm.IDMappings
	if len(mappings) == 0 {
		mappings = rm.PropertyMappings
	}
	var b strings.Builder
	b.WriteString(rm.ID)
	for _, m := range mappings {
		if m.Column == "" {
			continue
		}
		col := prefix + m.Column
		if !w.Has(col) {
			continue
		}
		cell, err := w.Cell(col)
		if err != nil {
			return "", &MappingError{StatementID: h.ms.ID, Column: col, Err: err}
		}
		fmt.Fprintf(&b, "|%s=%v", col, cell)
	}
	return b.String(), nil
}

// applyNested maps this row's joined child mappings into the parent. The
// children map deduplicates by (scope, property, child identity) so repeated
// rows for the same child only recurse.
func (h *ResultSetHandler) applyNested(w *ResultSetWrapper, rm *mapping.ResultMap, prefix string, parentMeta *reflectx.MetaObject, children map[string]any, scope string) error {
	for _, m := range rm.PropertyMappings {
		if m.NestedResultMap == "" {
			continue
		}
		childRM, err := h.cfg.ResultMap(m.NestedResultMap)
		if err != nil {
			return &MappingError{StatementID: h.ms.ID, Property: m.Property, Err: err}
		}
		childPrefix := prefix + m.ColumnPrefix
		if !h.notNullSatisfied(w, m, childPrefix) {
			continue
		}
		childKey, err := h.rowKey(w, childRM, childPrefix)
		if err != nil {
			return err
		}
		slot := scope + "/" + m.Property + "|" + childKey

		if existing, ok := children[slot]; ok {
			if childRM.HasNestedResultMaps && existing != nil {
				if err := h.applyNested(w, childRM, childPrefix, h.cfg.NewMetaObject(existing), children, slot); err != nil {
					return err
				}
			}
			continue
		}

		obj, found, err := h.mapRow(w, childRM, childPrefix)
		if err != nil {
			return err
		}
		children[slot] = obj
		if obj == nil || !found {
			continue
		}
		if childRM.HasNestedResultMaps {
			if err := h.applyNested(w, childRM, childPrefix, h.cfg.NewMetaObject(obj), children, slot); err != nil {
				return err
			}
		}
		if err := h.attach(parentMeta, m.Property, obj); err != nil {
			return err
		}
	}
	return nil
}

// notNullSatisfied applies the not-null guard columns of a nested mapping.
func (h *ResultSetHandler) notNullSatisfied(w *ResultSetWrapper, m *mapping.ResultMapping, prefix string) bool {
	if len(m.NotNullColumns) == 0 {
		return true
	}
	for _, col := range m.NotNullColumns {
		cell, err := w.Cell(prefix + strings.TrimSpace(col))
		if err == nil && cell != nil {
			return true
		}
	}
	return false
}

// attach writes a child into the parent: collections append, associations
// assign.
func (h *ResultSetHandler) attach(parentMeta *reflectx.MetaObject, property string, child any) error {
	declared, err := parentMeta.GetterType(property)
	if err != nil {
		return &MappingError{StatementID: h.ms.ID, Property: property, Err: err}
	}
	if declared == nil || declared.Kind() != reflect.Slice {
		if err := parentMeta.SetValue(property, child); err != nil {
			return &MappingError{StatementID: h.ms.ID, Property: property, Err: err}
		}
		return nil
	}
	current, err := parentMeta.GetValue(property)
	if err != nil {
		return &MappingError{StatementID: h.ms.ID, Property: property, Err: err}
	}
	slice := reflect.ValueOf(current)
	if current == nil {
		slice = reflect.MakeSlice(declared, 0, 4)
	}
	rv := reflect.ValueOf(child)
	switch {
	case rv.Type().AssignableTo(declared.Elem()):
	case rv.Kind() == reflect.Ptr && rv.Elem().Type().AssignableTo(declared.Elem()):
		rv = rv.Elem()
	default:
		return &MappingError{StatementID: h.ms.ID, Property: property,
			Err: fmt.Errorf("cannot place %T into %s", child, declared)}
	}
	slice = reflect.Append(slice, rv)
	if err := parentMeta.SetValue(property, slice.Interface()); err != nil {
		return &MappingError{StatementID: h.ms.ID, Property: property, Err: err}
	}
	return nil
}
