package codec

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/myfstd/gbatis/driver"
)

// Row exposes one result row's cells by column name. The result-set wrapper
// implements it over the driver cursor.
type Row interface {
	Cell(column string) (any, error)
}

// TypeHandler converts one application type to and from database cells.
type TypeHandler interface {
	// SetParameter applies value to the statement's ordinal slot.
	SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error
	// Result decodes the named column of the current row.
	Result(row Row, column string) (any, error)
}

// AnyHandler passes values through untouched. It is the opaque fallback.
type AnyHandler struct{}

func (AnyHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	return st.Bind(ordinal, value, string(dbType))
}

func (AnyHandler) Result(row Row, column string) (any, error) {
	return row.Cell(column)
}

// StringHandler maps string columns, accepting []byte cells.
type StringHandler struct{}

func (StringHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	if value == nil {
		return st.Bind(ordinal, nil, string(dbType))
	}
	return st.Bind(ordinal, toString(value), string(dbType))
}

func (StringHandler) Result(row Row, column string) (any, error) {
	cell, err := row.Cell(column)
	if err != nil || cell == nil {
		return nil, err
	}
	return toString(cell), nil
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.String {
			return rv.String()
		}
		return fmt.Sprintf("%v", v)
	}
}

// IntHandler maps the signed integer kinds through int64 cells.
type IntHandler struct{}

func (IntHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	if value == nil {
		return st.Bind(ordinal, nil, string(dbType))
	}
	n, err := toInt64(value)
	if err != nil {
		return err
	}
	return st.Bind(ordinal, n, string(dbType))
}

func (IntHandler) Result(row Row, column string) (any, error) {
	cell, err := row.Cell(column)
	if err != nil || cell == nil {
		return nil, err
	}
	return toInt64(cell)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint()), nil
		}
		return 0, fmt.Errorf("codec: cannot decode %T as integer", v)
	}
}

// FloatHandler maps the floating kinds through float64 cells.
type FloatHandler struct{}

func (FloatHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	if value == nil {
		return st.Bind(ordinal, nil, string(dbType))
	}
	f, err := toFloat64(value)
	if err != nil {
		return err
	}
	return st.Bind(ordinal, f, string(dbType))
}

func (FloatHandler) Result(row Row, column string) (any, error) {
	cell, err := row.Cell(column)
	if err != nil || cell == nil {
		return nil, err
	}
	return toFloat64(cell)
}

func toFloat64(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case int64:
		return float64(f), nil
	case []byte:
		return strconv.ParseFloat(string(f), 64)
	case string:
		return strconv.ParseFloat(f, 64)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		}
		return 0, fmt.Errorf("codec: cannot decode %T as float", v)
	}
}

// BoolHandler maps booleans, tolerating numeric 0/1 cells.
type BoolHandler struct{}

func (BoolHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	if value == nil {
		return st.Bind(ordinal, nil, string(dbType))
	}
	b, err := toBool(value)
	if err != nil {
		return err
	}
	return st.Bind(ordinal, b, string(dbType))
}

func (BoolHandler) Result(row Row, column string) (any, error) {
	cell, err := row.Cell(column)
	if err != nil || cell == nil {
		return nil, err
	}
	return toBool(cell)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case []byte:
		return strconv.ParseBool(string(b))
	case string:
		return strconv.ParseBool(b)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
		return false, fmt.Errorf("codec: cannot decode %T as bool", v)
	}
}

// TimeHandler maps time.Time cells, parsing common textual layouts.
type TimeHandler struct{}

func (TimeHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	return st.Bind(ordinal, value, string(dbType))
}

func (TimeHandler) Result(row Row, column string) (any, error) {
	cell, err := row.Cell(column)
	if err != nil || cell == nil {
		return nil, err
	}
	switch t := cell.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	}
	return nil, fmt.Errorf("codec: cannot decode %T as time", cell)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("codec: unparseable time %q", s)
}

// BytesHandler maps raw []byte columns.
type BytesHandler struct{}

func (BytesHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	return st.Bind(ordinal, value, string(dbType))
}

func (BytesHandler) Result(row Row, column string) (any, error) {
	cell, err := row.Cell(column)
	if err != nil || cell == nil {
		return nil, err
	}
	switch b := cell.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("codec: cannot decode %T as bytes", cell)
}

// EnumNameHandler maps a named string type by its name. It is the default for
// string-kinded named types unless overridden.
type EnumNameHandler struct {
	Type reflect.Type
}

func (h EnumNameHandler) SetParameter(st driver.Statement, ordinal int, value any, dbType JdbcType) error {
	if value == nil {
		return st.Bind(ordinal, nil, string(dbType))
	}
	return st.Bind(ordinal, toString(value), string(dbType))
}

func (h EnumNameHandler) Result(row Row, column string) (any, error) {
	cell, err := row.Cell(column)
	if err != nil || cell == nil {
		return nil, err
	}
	return reflect.ValueOf(toString(cell)).Convert(h.Type).Interface(), nil
}
