package ops

import (
	"slices"

	"github.com/gomlx/exceptions"
)

// Argument validation helpers shared by the factories. They panic (throw
// exceptions) with a message naming the op, the node and the offending
// argument.

// checkPositiveInt requires value > 0.
func checkPositiveInt(op, name, arg string, value int) {
	if value <= 0 {
		exceptions.Panicf("%s(%q): %s must be positive, got %d", op, name, arg, value)
	}
}

// checkNonNegativeInt requires value >= 0.
func checkNonNegativeInt(op, name, arg string, value int) {
	if value < 0 {
		exceptions.Panicf("%s(%q): %s must be non-negative, got %d", op, name, arg, value)
	}
}

// checkPositiveFloat requires value > 0.
func checkPositiveFloat(op, name, arg string, value float32) {
	if value <= 0 {
		exceptions.Panicf("%s(%q): %s must be positive, got %g", op, name, arg, value)
	}
}

// checkEnum requires value to be one of allowed.
func checkEnum(op, name, arg, value string, allowed ...string) {
	if !slices.Contains(allowed, value) {
		exceptions.Panicf("%s(%q): %s must be one of %q, got %q", op, name, arg, allowed, value)
	}
}
