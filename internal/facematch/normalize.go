package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var labelFolder = cases.Fold()

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel returns the comparison key of a label: trimmed, inner
// whitespace collapsed and case folded. Diacritics are kept, "Jiří" and
// "Jiri" are different people.
func NormalizeLabel(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	return labelFolder.String(label)
}

// CleanLabel returns the display form of a label (trimmed, inner whitespace collapsed).
func CleanLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// NormalizePersonName normalizes a name for loose comparison (lowercase, no diacritics, spaces for dashes).
// Used to deduplicate name hints coming from different sources.
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// MergeHints merges name hint lists, keeping the first spelling of every
// person and dropping blanks.
func MergeHints(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, name := range list {
			name = CleanLabel(name)
			if name == "" {
				continue
			}
			key := NormalizePersonName(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
