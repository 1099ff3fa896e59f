// Package codec resolves bidirectional converters between application values
// and database cells. Handlers are keyed primarily by application type and
// secondarily by database type.
package codec

import (
	"fmt"
	"strings"
)

// JdbcType names the declared database type of a parameter or column.
type JdbcType string

const (
	JdbcUnset     JdbcType = ""
	JdbcVarchar   JdbcType = "VARCHAR"
	JdbcChar      JdbcType = "CHAR"
	JdbcInteger   JdbcType = "INTEGER"
	JdbcBigint    JdbcType = "BIGINT"
	JdbcSmallint  JdbcType = "SMALLINT"
	JdbcDouble    JdbcType = "DOUBLE"
	JdbcFloat     JdbcType = "FLOAT"
	JdbcDecimal   JdbcType = "DECIMAL"
	JdbcNumeric   JdbcType = "NUMERIC"
	JdbcBoolean   JdbcType = "BOOLEAN"
	JdbcDate      JdbcType = "DATE"
	JdbcTime      JdbcType = "TIME"
	JdbcTimestamp JdbcType = "TIMESTAMP"
	JdbcBlob      JdbcType = "BLOB"
	JdbcClob      JdbcType = "CLOB"
	JdbcCursor    JdbcType = "CURSOR"
	JdbcNull      JdbcType = "NULL"
	JdbcOther     JdbcType = "OTHER"
)

var jdbcTypes = map[string]JdbcType{}

func init() {
	for _, t := range []JdbcType{
		JdbcVarchar, JdbcChar, JdbcInteger, JdbcBigint, JdbcSmallint,
		JdbcDouble, JdbcFloat, JdbcDecimal, JdbcNumeric, JdbcBoolean,
		JdbcDate, JdbcTime, JdbcTimestamp, JdbcBlob, JdbcClob,
		JdbcCursor, JdbcNull, JdbcOther,
	} {
		jdbcTypes[string(t)] = t
	}
}

// ParseJdbcType resolves a database type name from a mapper attribute.
func ParseJdbcType(name string) (JdbcType, error) {
	if name == "" {
		return JdbcUnset, nil
	}
	if t, ok := jdbcTypes[strings.ToUpper(name)]; ok {
		return t, nil
	}
	return JdbcUnset, fmt.Errorf("codec: unknown jdbcType %q", name)
}
