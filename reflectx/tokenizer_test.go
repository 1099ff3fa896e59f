package reflectx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeProperty(t *testing.T) {
	tok, err := TokenizeProperty("a.b[k].c[0]")
	require.NoError(t, err)
	assert.Equal(t, "a", tok.Name)
	assert.Equal(t, "", tok.Index)
	assert.Equal(t, "b[k].c[0]", tok.Children)
	require.True(t, tok.HasNext())

	tok, err = tok.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", tok.Name)
	assert.Equal(t, "b[k]", tok.IndexedName)
	assert.Equal(t, "k", tok.Index)

	tok, err = tok.Next()
	require.NoError(t, err)
	assert.Equal(t, "c", tok.Name)
	assert.Equal(t, "0", tok.Index)
	assert.False(t, tok.HasNext())
}

func TestTokenizeDotInsideBrackets(t *testing.T) {
	tok, err := TokenizeProperty("a[b.c]")
	require.NoError(t, err)
	assert.Equal(t, "a", tok.Name)
	assert.Equal(t, "b.c", tok.Index)
	assert.False(t, tok.HasNext())
}

func TestTokenizeNestedBracketsFail(t *testing.T) {
	_, err := TokenizeProperty("a[b[c]]")
	var mp *MalformedPathError
	require.ErrorAs(t, err, &mp)

	_, err = TokenizeProperty("a[b")
	require.ErrorAs(t, err, &mp)
}

// re-tokenizing a reassembled path yields identical segments
func TestTokenizeIdempotent(t *testing.T) {
	first, err := TokenizeProperty("orders[2].lines[sku].qty")
	require.NoError(t, err)
	again, err := TokenizeProperty(first.IndexedName + "." + first.Children)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}
