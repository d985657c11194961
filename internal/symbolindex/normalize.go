package symbolindex

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize folds s to its case-insensitive form, trims it, and collapses
// every run of Unicode whitespace into a single ASCII space. Keys, query
// prefixes and substring needles all pass through it.
func Normalize(s string) string {
	folded := cases.Fold().String(s)
	return strings.Join(strings.Fields(folded), " ")
}
