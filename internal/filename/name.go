package filename

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldDiacritics replaces accented characters with their base Latin letter.
// Input that fails to transform is returned unchanged.
func FoldDiacritics(value string) string {
	folded, _, err := transform.String(diacriticFolder, value)
	if err != nil {
		return value
	}
	return folded
}

// canonicalNameTokens expands the abbreviated spellings that appear in
// scanned-filename names to their canonical form. Keys are compared after
// uppercasing and stripping a trailing period.
var canonicalNameTokens = map[string]string{
	"MA":   "MARIA",
	"FCO":  "FRANCISCO",
	"FCA":  "FRANCISCA",
	"GPE":  "GUADALUPE",
	"JSE":  "JOSE",
	"HDEZ": "HERNANDEZ",
	"HRDZ": "HERNANDEZ",
	"MTZ":  "MARTINEZ",
	"GZZ":  "GONZALEZ",
	"GLZ":  "GONZALEZ",
	"RDZ":  "RODRIGUEZ",
	"FDZ":  "FERNANDEZ",
	"DMGZ": "DOMINGUEZ",
	"VZQZ": "VAZQUEZ",
}

// canonicalizeNameTokens uppercases, folds, and expands known abbreviations
// in a name fragment, collapsing runs of whitespace.
func canonicalizeNameTokens(fragment string) string {
	fragment = strings.ToUpper(FoldDiacritics(fragment))
	tokens := strings.Fields(fragment)
	for i, token := range tokens {
		key := strings.TrimSuffix(token, ".")
		if canonical, ok := canonicalNameTokens[key]; ok {
			tokens[i] = canonical
		}
	}
	return strings.Join(tokens, " ")
}

// NormalizeName produces the comparison form of a name: uppercase, diacritics
// folded, punctuation dropped, whitespace collapsed.
func NormalizeName(name string) string {
	name = strings.ToUpper(FoldDiacritics(name))
	var b strings.Builder
	b.Grow(len(name))
	lastSpace := true
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// splitNameSegment separates "SURNAMES, GIVEN NAMES" into its parts after
// canonicalization. The comma is guaranteed by the filename patterns.
func splitNameSegment(segment string) (given, paternal, maternal string) {
	surnamePart, givenPart, _ := strings.Cut(segment, ",")
	given = canonicalizeNameTokens(givenPart)

	surnames := strings.Fields(canonicalizeNameTokens(surnamePart))
	if len(surnames) > 0 {
		paternal = surnames[0]
	}
	if len(surnames) > 1 {
		maternal = strings.Join(surnames[1:], " ")
	}
	return given, paternal, maternal
}
