package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_decodeXMLValue(t *testing.T) {
	t.Run("leaf element decodes to its trimmed text", func(t *testing.T) {
		v, err := decodeXMLValue([]byte("<name>  Brazil \n</name>"))
		require.NoError(t, err)
		assert.Equal(t, "Brazil", v)
	})

	t.Run("empty element decodes to the empty string", func(t *testing.T) {
		v, err := decodeXMLValue([]byte("<name/>"))
		require.NoError(t, err)
		assert.Equal(t, "", v)
	})

	t.Run("nested elements decode to maps", func(t *testing.T) {
		v, err := decodeXMLValue([]byte(`<country><name>Brazil</name><continent>South America</continent></country>`))
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{
			"name":      "Brazil",
			"continent": "South America",
		}, v)
	})

	t.Run("repeated element names decode to slices", func(t *testing.T) {
		v, err := decodeXMLValue([]byte(`<operations><elem>a</elem><elem>b</elem></operations>`))
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{
			"elem": []interface{}{"a", "b"},
		}, v)
	})

	t.Run("no root element", func(t *testing.T) {
		_, err := decodeXMLValue([]byte("   "))
		assert.Error(t, err)
	})

	t.Run("unbalanced document", func(t *testing.T) {
		_, err := decodeXMLValue([]byte("<a><b></a>"))
		assert.Error(t, err)
	})
}

func Test_xmlListValue(t *testing.T) {
	t.Run("plain slice passes through", func(t *testing.T) {
		list, ok := xmlListValue([]interface{}{"a", "b"})
		require.True(t, ok)
		assert.Equal(t, []interface{}{"a", "b"}, list)
	})

	t.Run("single-key wrapper with a slice unwraps", func(t *testing.T) {
		list, ok := xmlListValue(map[string]interface{}{
			"elem": []interface{}{"a", "b"},
		})
		require.True(t, ok)
		assert.Equal(t, []interface{}{"a", "b"}, list)
	})

	t.Run("single-key wrapper with one child becomes a one-element list", func(t *testing.T) {
		list, ok := xmlListValue(map[string]interface{}{
			"elem": map[string]interface{}{"a": "1"},
		})
		require.True(t, ok)
		require.Len(t, list, 1)
	})

	t.Run("empty string is the empty list", func(t *testing.T) {
		list, ok := xmlListValue("")
		require.True(t, ok)
		assert.Empty(t, list)
	})

	t.Run("multi-key maps are not lists", func(t *testing.T) {
		_, ok := xmlListValue(map[string]interface{}{"a": "1", "b": "2"})
		assert.False(t, ok)
	})

	t.Run("nil is not a list", func(t *testing.T) {
		_, ok := xmlListValue(nil)
		assert.False(t, ok)
	})
}
