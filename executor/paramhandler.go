package executor

import (
	"reflect"

	"github.com/myfstd/gbatis/codec"
	"github.com/myfstd/gbatis/driver"
	"github.com/myfstd/gbatis/mapping"
)

// ParameterHandler walks the ordered descriptor list and applies each value
// to the driver statement. Ordinals are 1-based and contiguous.
type ParameterHandler struct {
	cfg *mapping.Configuration
	ms  *mapping.MappedStatement
	bs  *mapping.BoundSql
}

// NewParameterHandler binds one invocation's descriptors.
func NewParameterHandler(cfg *mapping.Configuration, ms *mapping.MappedStatement, bs *mapping.BoundSql) *ParameterHandler {
	return &ParameterHandler{cfg: cfg, ms: ms, bs: bs}
}

// BindTo applies every descriptor: OUT registers an output slot, INOUT does
// both, IN binds the value through its codec.
func (h *ParameterHandler) BindTo(st driver.Statement) error {
	for i, pm := range h.bs.ParameterMappings {
		ordinal := i + 1
		if pm.Mode == mapping.ModeOut || pm.Mode == mapping.ModeInOut {
			dbType := string(pm.JdbcType)
			if pm.JdbcTypeName != "" {
				dbType = pm.JdbcTypeName
			}
			if err := st.BindOut(ordinal, dbType); err != nil {
				return &BindingError{StatementID: h.ms.ID, Property: pm.Property, Detail: "cannot register output parameter", Err: err}
			}
			if pm.Mode == mapping.ModeOut {
				continue
			}
		}
		value, err := boundValue(h.cfg, h.ms, h.bs, pm)
		if err != nil {
			return err
		}
		handler := pm.Handler
		if _, opaque := handler.(codec.AnyHandler); (opaque || handler == nil) && value != nil {
			// the descriptor's type was opaque at compile time; the runtime
			// value's type is known now
			handler = h.cfg.TypeHandlers.Lookup(reflect.TypeOf(value), pm.JdbcType)
		}
		if handler == nil {
			handler = codec.AnyHandler{}
		}
		dbType := pm.JdbcType
		if value == nil && dbType == codec.JdbcUnset {
			dbType = h.cfg.Settings.JdbcTypeForNull
		}
		if err := handler.SetParameter(st, ordinal, value, dbType); err != nil {
			return &BindingError{StatementID: h.ms.ID, Property: pm.Property, Err: err}
		}
	}
	return nil
}

// BoundValues resolves every IN value in order, for error reporting and cache
// keys.
func (h *ParameterHandler) BoundValues() ([]any, error) {
	var out []any
	for _, pm := range h.bs.ParameterMappings {
		if pm.Mode == mapping.ModeOut {
			continue
		}
		v, err := boundValue(h.cfg, h.ms, h.bs, pm)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// boundValue reads one descriptor's value: evaluation-scope bindings first,
// then the parameter object itself for directly codec-able types, then the
// descriptor's property path.
func boundValue(cfg *mapping.Configuration, ms *mapping.MappedStatement, bs *mapping.BoundSql, pm *mapping.ParameterMapping) (any, error) {
	if bs.HasAdditional(pm.Property) {
		v, err := cfg.NewMetaObject(bs.AdditionalParams).GetValue(pm.Property)
		if err != nil {
			return nil, &BindingError{StatementID: ms.ID, Property: pm.Property, Err: err}
		}
		return v, nil
	}
	param := bs.Parameter
	if param == nil {
		return nil, nil
	}
	if cfg.TypeHandlers.Has(reflect.TypeOf(param)) {
		return param, nil
	}
	meta := cfg.NewMetaObject(param)
	v, err := meta.GetValue(pm.Property)
	if err != nil {
		return nil, &BindingError{StatementID: ms.ID, Property: pm.Property, Err: err}
	}
	return v, nil
}
