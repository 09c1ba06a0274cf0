package screen

import (
	"strings"
)

// NormalizeName lower-cases a name, trims it and collapses internal
// whitespace runs to a single space. NormalizeName(NormalizeName(x)) ==
// NormalizeName(x).
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
