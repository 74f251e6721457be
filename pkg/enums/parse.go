package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parse matches value, trimmed and case-insensitively, against known.
func parse[T ~string](kind, value string, known []T) (T, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if i := slices.IndexFunc(known, func(k T) bool { return string(k) == value }); i >= 0 {
		return known[i], nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
