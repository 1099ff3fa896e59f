package codec

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow map[string]any

func (r fakeRow) Cell(column string) (any, error) { return r[column], nil }

func TestLookupOrder(t *testing.T) {
	r := NewRegistry()

	// exact (app type, db type) pair
	h := r.Lookup(reflect.TypeOf(""), JdbcVarchar)
	assert.IsType(t, StringHandler{}, h)

	// app type alone
	h = r.Lookup(reflect.TypeOf(int64(0)), JdbcOther)
	assert.IsType(t, IntHandler{}, h)

	// db type alone
	h = r.Lookup(nil, JdbcTimestamp)
	assert.IsType(t, TimeHandler{}, h)

	// opaque fallback
	h = r.Lookup(nil, JdbcUnset)
	assert.IsType(t, AnyHandler{}, h)
}

type color string

func TestEnumDefaultsToNameCodec(t *testing.T) {
	r := NewRegistry()
	h := r.Lookup(reflect.TypeOf(color("")), JdbcUnset)
	require.IsType(t, EnumNameHandler{}, h)

	v, err := h.Result(fakeRow{"c": "red"}, "c")
	require.NoError(t, err)
	assert.Equal(t, color("red"), v)
}

func TestIntDecoding(t *testing.T) {
	h := IntHandler{}
	for _, cell := range []any{int64(7), int32(7), float64(7), []byte("7"), "7"} {
		v, err := h.Result(fakeRow{"n": cell}, "n")
		require.NoError(t, err, "%T", cell)
		assert.Equal(t, int64(7), v, "%T", cell)
	}
	_, err := h.Result(fakeRow{"n": "seven"}, "n")
	require.Error(t, err)
}

func TestTimeDecoding(t *testing.T) {
	h := TimeHandler{}
	now := time.Date(2024, 4, 30, 8, 34, 0, 0, time.UTC)
	v, err := h.Result(fakeRow{"t": now}, "t")
	require.NoError(t, err)
	assert.Equal(t, now, v)

	v, err = h.Result(fakeRow{"t": "2024-04-30 08:34:00"}, "t")
	require.NoError(t, err)
	assert.Equal(t, now, v)
}

func TestParseJdbcType(t *testing.T) {
	jt, err := ParseJdbcType("varchar")
	require.NoError(t, err)
	assert.Equal(t, JdbcVarchar, jt)

	_, err = ParseJdbcType("NOPE")
	require.Error(t, err)
}
