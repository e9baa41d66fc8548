package identity

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Strategy selects the similarity blend used to compare normalized names.
type Strategy string

const (
	// StrategyWeighted blends all five signals with fixed weights.
	StrategyWeighted Strategy = "weighted"
	// StrategyBasic averages the sequence and token-overlap signals only.
	StrategyBasic Strategy = "basic"
)

// ParseStrategy converts a configuration string into a known Strategy.
// Empty input selects the weighted strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", StrategyWeighted:
		return StrategyWeighted, nil
	case StrategyBasic:
		return StrategyBasic, nil
	default:
		return "", fmt.Errorf("matching strategy: unsupported value %q", value)
	}
}

// Signal weights for the weighted strategy. The order-insensitive token
// signals carry the most weight.
const (
	weightSequence = 1.0
	weightOverlap  = 0.5
	weightSorted   = 1.5
	weightSubset   = 1.5
	weightInitials = 0.5

	weightTotal = weightSequence + weightOverlap + weightSorted + weightSubset + weightInitials
)

// Similarity scores two normalized names in [0, 1]. It is symmetric, and
// identical non-empty inputs short-circuit to 1 before any blending.
func (s Strategy) Similarity(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	sequence := levenshteinRatio(a, b)
	overlap := tokenOverlapRatio(aTokens, bTokens)
	if s == StrategyBasic {
		return (sequence + overlap) / 2
	}
	blend := weightSequence*sequence +
		weightOverlap*overlap +
		weightSorted*sortedTokenRatio(aTokens, bTokens) +
		weightSubset*tokenSetRatio(aTokens, bTokens) +
		weightInitials*initialsRatio(aTokens, bTokens)
	return blend / weightTotal
}

// levenshteinRatio is 1 - distance/longest, the character-level sequence
// signal.
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	aRunes := []rune(a)
	bRunes := []rune(b)
	longest := max(len(aRunes), len(bRunes))
	return 1 - float64(levenshtein(aRunes, bRunes))/float64(longest)
}

// levenshtein computes edit distance over runes with a rolling two-row
// table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// tokenOverlapRatio is the Jaccard ratio of the two word sets.
func tokenOverlapRatio(aTokens, bTokens []string) float64 {
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}
	aSet := tokenSet(aTokens)
	bSet := tokenSet(bTokens)
	shared := 0
	union := len(aSet)
	for token := range bSet {
		if _, ok := aSet[token]; ok {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// sortedTokenRatio compares the names with tokens sorted, so word order
// carries no penalty.
func sortedTokenRatio(aTokens, bTokens []string) float64 {
	return levenshteinRatio(sortedJoin(aTokens), sortedJoin(bTokens))
}

// tokenSetRatio anchors the comparison on the shared tokens and scores the
// best alignment among the shared core and each side's full token string.
// One name being a subset of the other scores 1.
func tokenSetRatio(aTokens, bTokens []string) float64 {
	aSet := tokenSet(aTokens)
	bSet := tokenSet(bTokens)
	var shared, aOnly, bOnly []string
	for token := range aSet {
		if _, ok := bSet[token]; ok {
			shared = append(shared, token)
		} else {
			aOnly = append(aOnly, token)
		}
	}
	for token := range bSet {
		if _, ok := aSet[token]; !ok {
			bOnly = append(bOnly, token)
		}
	}
	sort.Strings(shared)
	sort.Strings(aOnly)
	sort.Strings(bOnly)

	core := strings.Join(shared, " ")
	withA := strings.TrimSpace(core + " " + strings.Join(aOnly, " "))
	withB := strings.TrimSpace(core + " " + strings.Join(bOnly, " "))

	best := levenshteinRatio(core, withA)
	if ratio := levenshteinRatio(core, withB); ratio > best {
		best = ratio
	}
	if ratio := levenshteinRatio(withA, withB); ratio > best {
		best = ratio
	}
	return best
}

// initialsRatio compares the sequences of token initials, the signal that
// survives abbreviated given names.
func initialsRatio(aTokens, bTokens []string) float64 {
	return levenshteinRatio(initials(aTokens), initials(bTokens))
}

func initials(tokens []string) string {
	var sb strings.Builder
	for _, token := range tokens {
		r, _ := utf8.DecodeRuneInString(token)
		if r == utf8.RuneError {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func sortedJoin(tokens []string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
