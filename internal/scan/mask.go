package scan

import (
	"regexp"
	"strings"
)

// MarkerFor returns the redaction marker substituted for literals of a PII
// category, e.g. "[MASKED EMAIL ADDRESS]" for CategoryEmail. Markers never
// re-match a detection rule, so masking already-masked text is a no-op.
func MarkerFor(category string) string {
	return "[MASKED " + strings.ToUpper(category) + "]"
}

// Mask returns a display variant of text with every occurrence of every
// distinct detected literal replaced by its category's marker. Matching is by
// exact literal substring, not by offset, so a literal flagged once is masked
// everywhere it appears. When enabled is false the text is returned unchanged.
//
// A literal flagged under several categories takes the marker of the category
// seen first, matching rule order.
func Mask(text string, entities []Entity, enabled bool) string {
	if !enabled || len(entities) == 0 {
		return text
	}

	// Distinct literals in first-seen order.
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		if e.Text == "" || seen[e.Text] {
			continue
		}
		seen[e.Text] = true
		// QuoteMeta neutralizes regex metacharacters in the literal, e.g.
		// the dots and plus signs common in email addresses.
		re := regexp.MustCompile(regexp.QuoteMeta(e.Text))
		text = re.ReplaceAllLiteralString(text, MarkerFor(e.Category))
	}
	return text
}
