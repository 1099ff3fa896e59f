package mapping

import (
	"reflect"

	"github.com/myfstd/gbatis/codec"
)

// ParameterMode distinguishes input, output, and bidirectional parameters.
type ParameterMode int

const (
	ModeIn ParameterMode = iota
	ModeOut
	ModeInOut
)

func (m ParameterMode) String() string {
	switch m {
	case ModeOut:
		return "OUT"
	case ModeInOut:
		return "INOUT"
	}
	return "IN"
}

// ParameterMapping describes one ? placeholder: its ordinal position is its
// index in the statement's descriptor list.
type ParameterMapping struct {
	Property     string
	Mode         ParameterMode
	JavaType     reflect.Type
	JdbcType     codec.JdbcType
	JdbcTypeName string
	NumericScale *int
	Handler      codec.TypeHandler
	// ResultMapID types an OUT cursor parameter.
	ResultMapID string
}
