package ir

import (
	"github.com/gomlx/exceptions"
)

// Attrs holds the attributes of a node: operation parameters filled in by the
// node factories, plus flags annotated by rewriting passes.
//
// Readers use the *Or accessors, which return the given default when the
// attribute is absent and panic when it is present with the wrong type:
// a type mismatch is always a programming error in the pass or factory that
// set the attribute.
type Attrs map[string]any

// Has reports whether the attribute is set.
func (a Attrs) Has(key string) bool {
	_, found := a[key]
	return found
}

// Set stores the attribute value.
func (a Attrs) Set(key string, value any) {
	a[key] = value
}

func attrOr[T any](a Attrs, key string, defaultValue T) T {
	raw, found := a[key]
	if !found {
		return defaultValue
	}
	value, ok := raw.(T)
	if !ok {
		exceptions.Panicf("attribute %q holds %T, accessed as %T", key, raw, defaultValue)
	}
	return value
}

// BoolOr returns the bool attribute, or defaultValue if absent.
func (a Attrs) BoolOr(key string, defaultValue bool) bool {
	return attrOr(a, key, defaultValue)
}

// IntOr returns the int attribute, or defaultValue if absent.
func (a Attrs) IntOr(key string, defaultValue int) int {
	return attrOr(a, key, defaultValue)
}

// FloatOr returns the float32 attribute, or defaultValue if absent.
func (a Attrs) FloatOr(key string, defaultValue float32) float32 {
	return attrOr(a, key, defaultValue)
}

// StrOr returns the string attribute, or defaultValue if absent.
func (a Attrs) StrOr(key string, defaultValue string) string {
	return attrOr(a, key, defaultValue)
}

// IntsOr returns the []int attribute, or defaultValue if absent.
func (a Attrs) IntsOr(key string, defaultValue []int) []int {
	return attrOr(a, key, defaultValue)
}

// FloatsOr returns the []float32 attribute, or defaultValue if absent.
func (a Attrs) FloatsOr(key string, defaultValue []float32) []float32 {
	return attrOr(a, key, defaultValue)
}

// StringsOr returns the []string attribute, or defaultValue if absent.
func (a Attrs) StringsOr(key string, defaultValue []string) []string {
	return attrOr(a, key, defaultValue)
}
