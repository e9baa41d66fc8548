package identity

import (
	"strings"

	"medintake/internal/filename"
)

// honorificTokens are title abbreviations that appear in front of patient
// names but never inside them. Matching compares names with these removed.
var honorificTokens = map[string]struct{}{
	"DR":    {},
	"DRA":   {},
	"ING":   {},
	"LIC":   {},
	"PROF":  {},
	"PROFR": {},
}

// NormalizeName prepares a display name for similarity comparison:
// uppercase, diacritics folded, punctuation stripped, whitespace collapsed,
// honorific tokens removed. A name consisting only of honorifics is returned
// without the removal step so it stays matchable.
func NormalizeName(name string) string {
	normalized := filename.NormalizeName(name)
	if normalized == "" {
		return ""
	}
	tokens := strings.Fields(normalized)
	kept := tokens[:0]
	for _, token := range tokens {
		if _, ok := honorificTokens[token]; ok {
			continue
		}
		kept = append(kept, token)
	}
	if len(kept) == 0 {
		return normalized
	}
	return strings.Join(kept, " ")
}
