package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestExtractorString(t *testing.T) {
	e := New()
	record := models.Record{
		"id":       "u-1",
		"username": "kim",
		"age":      float64(41),
		"profile": map[string]any{
			"bio": "welder",
		},
		"skills": []any{"welding", "rebar"},
	}

	t.Run("should read a top level field", func(t *testing.T) {
		assert.Equal(t, "kim", e.String(record, "username"))
	})

	t.Run("should read a nested field", func(t *testing.T) {
		assert.Equal(t, "welder", e.String(record, "profile.bio"))
	})

	t.Run("should render numbers without trailing zeros", func(t *testing.T) {
		assert.Equal(t, "41", e.String(record, "age"))
	})

	t.Run("should join lists", func(t *testing.T) {
		assert.Equal(t, "welding, rebar", e.String(record, "skills"))
		assert.Equal(t, "rebar", e.String(record, "skills[1]"))
	})

	t.Run("should return empty for missing fields", func(t *testing.T) {
		assert.Equal(t, "", e.String(record, "email"))
	})

	t.Run("should return empty for invalid paths", func(t *testing.T) {
		assert.Equal(t, "", e.String(record, "skills[[["))
	})
}

func TestExtractorValidate(t *testing.T) {
	e := New()
	require.NoError(t, e.Validate("profile.bio"))
	assert.Error(t, e.Validate(""))
	assert.Error(t, e.Validate("a[[["))
}
