package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	t.Run("should parse a JSON array", func(t *testing.T) {
		items, err := ParseResponse([]byte(`[{"index":1,"score":85,"explanation":"same trade"},{"index":2,"score":10.5}]`))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, 1, items[0].Index)
		assert.Equal(t, 85.0, *items[0].Score)
		assert.Equal(t, "same trade", items[0].Explanation)
		assert.Equal(t, 10.5, *items[1].Score)
	})

	t.Run("should strip a json code fence", func(t *testing.T) {
		items, err := ParseResponse([]byte("```json\n[{\"index\":1,\"score\":70,\"explanation\":\"ok\"}]\n```"))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 70.0, *items[0].Score)
	})

	t.Run("should strip a bare code fence", func(t *testing.T) {
		items, err := ParseResponse([]byte("```\n[{\"index\":1,\"score\":70}]\n```"))
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("should accept a results object", func(t *testing.T) {
		items, err := ParseResponse([]byte(`{"results":[{"index":3,"score":20}]}`))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 3, items[0].Index)
	})

	t.Run("should accept an empty array", func(t *testing.T) {
		items, err := ParseResponse([]byte(`[]`))
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("should reject prose", func(t *testing.T) {
		_, err := ParseResponse([]byte("The first candidate is very similar."))
		var parseErr *ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("should reject an empty body", func(t *testing.T) {
		_, err := ParseResponse([]byte("   "))
		assert.Error(t, err)
	})

	t.Run("should reject an object without results", func(t *testing.T) {
		_, err := ParseResponse([]byte(`{"scores":[]}`))
		assert.Error(t, err)
	})

	t.Run("should reject items without a score", func(t *testing.T) {
		_, err := ParseResponse([]byte(`[{"index":1,"explanation":"no score"}]`))
		assert.Error(t, err)
	})

	t.Run("should reject items without a valid index", func(t *testing.T) {
		_, err := ParseResponse([]byte(`[{"score":50}]`))
		assert.Error(t, err)

		_, err = ParseResponse([]byte(`[{"index":-1,"score":50}]`))
		assert.Error(t, err)
	})

	t.Run("should reject scores that are not numbers", func(t *testing.T) {
		_, err := ParseResponse([]byte(`[{"index":1,"score":"high"}]`))
		assert.Error(t, err)
	})
}
