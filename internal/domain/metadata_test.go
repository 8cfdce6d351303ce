package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeMetadata(t *testing.T) {
	t.Run("properties merge key by key", func(t *testing.T) {
		old := Metadata{
			Properties: map[string]any{"gpu_memory_mb": 16384, "status": "available"},
		}
		patch := Metadata{
			Properties: map[string]any{"status": "busy"},
		}

		merged := MergeMetadata(old, patch)

		assert.Equal(t, 16384, merged.Properties["gpu_memory_mb"])
		assert.Equal(t, "busy", merged.Properties["status"])
	})

	t.Run("new keys are added", func(t *testing.T) {
		old := Metadata{Properties: map[string]any{"a": 1}}
		patch := Metadata{Properties: map[string]any{"b": 2}}

		merged := MergeMetadata(old, patch)

		assert.Equal(t, 1, merged.Properties["a"])
		assert.Equal(t, 2, merged.Properties["b"])
	})

	t.Run("tags replace wholesale", func(t *testing.T) {
		old := Metadata{Tags: []string{"gpu", "fast"}}
		patch := Metadata{Tags: []string{"cpu"}}

		merged := MergeMetadata(old, patch)

		assert.ElementsMatch(t, []string{"cpu"}, merged.Tags)
	})

	t.Run("absent tags preserve old tags", func(t *testing.T) {
		old := Metadata{Tags: []string{"gpu"}}
		patch := Metadata{Properties: map[string]any{"status": "busy"}}

		merged := MergeMetadata(old, patch)

		assert.ElementsMatch(t, []string{"gpu"}, merged.Tags)
	})

	t.Run("empty tag list clears tags", func(t *testing.T) {
		old := Metadata{Tags: []string{"gpu"}}
		patch := Metadata{Tags: []string{}}

		merged := MergeMetadata(old, patch)

		assert.Empty(t, merged.Tags)
	})

	t.Run("inputs are untouched", func(t *testing.T) {
		old := Metadata{Properties: map[string]any{"status": "available"}}
		patch := Metadata{Properties: map[string]any{"status": "busy"}}

		_ = MergeMetadata(old, patch)

		assert.Equal(t, "available", old.Properties["status"])
		assert.Equal(t, "busy", patch.Properties["status"])
	})
}

func TestValidateProperties(t *testing.T) {
	t.Run("scalars pass", func(t *testing.T) {
		err := ValidateProperties(map[string]any{
			"name":   "worker-1",
			"memory": 16384,
			"ratio":  0.5,
			"busy":   false,
		})
		require.NoError(t, err)
	})

	t.Run("nested structures are rejected", func(t *testing.T) {
		err := ValidateProperties(map[string]any{
			"nested": map[string]any{"a": 1},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("lists are rejected", func(t *testing.T) {
		err := ValidateProperties(map[string]any{
			"list": []any{1, 2},
		})
		require.Error(t, err)
	})

	t.Run("null values are rejected", func(t *testing.T) {
		err := ValidateProperties(map[string]any{
			"status": nil,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
