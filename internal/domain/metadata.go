package domain

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Metadata is peer-supplied discovery material: free-form tags plus a flat
// map of scalar properties.
type Metadata struct {
	Tags       []string       `json:"tags,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// TagSet exposes the tags with set semantics.
func (m Metadata) TagSet() mapset.Set[string] {
	return mapset.NewSet(m.Tags...)
}

func (m Metadata) normalized() Metadata {
	out := Metadata{
		Properties: make(map[string]any, len(m.Properties)),
	}
	if m.Tags != nil {
		out.Tags = mapset.NewSet(m.Tags...).ToSlice()
	}
	for k, v := range m.Properties {
		out.Properties[k] = v
	}
	return out
}

// MergeMetadata applies a partial update: properties are merged key by key
// (new keys added, existing keys overwritten, untouched keys preserved)
// while a non-nil tag list replaces the previous tags wholesale. Both
// inputs are left untouched.
func MergeMetadata(old, patch Metadata) Metadata {
	merged := Metadata{
		Tags:       old.Tags,
		Properties: make(map[string]any, len(old.Properties)+len(patch.Properties)),
	}

	for k, v := range old.Properties {
		merged.Properties[k] = v
	}
	for k, v := range patch.Properties {
		merged.Properties[k] = v
	}

	if patch.Tags != nil {
		merged.Tags = mapset.NewSet(patch.Tags...).ToSlice()
	}

	return merged
}

// ValidateProperties rejects non-scalar property values: filters match
// strings, numbers and booleans only, so nested structures are refused at
// the door instead of silently never matching.
func ValidateProperties(props map[string]any) error {
	for key, value := range props {
		switch value.(type) {
		case string, bool, float64, int, int64:
		default:
			return fmt.Errorf("%w: property %q must be a scalar", ErrInvalidInput, key)
		}
	}
	return nil
}
