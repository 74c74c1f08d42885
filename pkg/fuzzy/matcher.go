// Package fuzzy matches free-text cell values against imprecise
// human-supplied queries. Generated analysis scripts filter rows through
// it (the filter_fuzzy builtin) so the generator does not have to handle
// spelling and spacing variants per column.
package fuzzy

import "strings"

// DefaultThreshold is the similarity cut-off on the 0-100 scale.
const DefaultThreshold = 85

// prefixSlack extends the compared value prefix beyond the query length.
const prefixSlack = 2

// Matches reports whether value matches query at the given threshold.
// The policies run in order, first hit wins:
//
//  1. case-folded substring of the query inside the value;
//  2. every query token equals some value token, order-independent;
//  3. edit-distance ratio between the query and a value prefix;
//  4. every query token fuzzily matches some value token.
//
// Missing values never match.
func Matches(value, query string, threshold int) bool {
	if strings.TrimSpace(value) == "" || strings.TrimSpace(query) == "" {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	v := strings.ToLower(strings.TrimSpace(value))
	q := strings.ToLower(strings.TrimSpace(query))

	if strings.Contains(v, q) {
		return true
	}

	vTokens := strings.Fields(v)
	qTokens := strings.Fields(q)
	if tokenSubset(qTokens, vTokens) {
		return true
	}

	prefix := v
	if limit := len([]rune(q)) + prefixSlack; len([]rune(prefix)) > limit {
		prefix = strings.TrimSpace(string([]rune(prefix)[:limit]))
	}
	if Ratio(q, prefix) > threshold {
		return true
	}

	return fuzzyTokenSubset(qTokens, vTokens, threshold)
}

// Ratio returns the Levenshtein similarity of a and b on a 0-100 scale.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein(ra, rb)
	return int(100 * (1 - float64(dist)/float64(longest)))
}

// tokenSubset reports whether every query token occurs among the value
// tokens exactly.
func tokenSubset(qTokens, vTokens []string) bool {
	if len(qTokens) == 0 {
		return false
	}
	for _, qt := range qTokens {
		found := false
		for _, vt := range vTokens {
			if qt == vt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// fuzzyTokenSubset is tokenSubset with per-token edit-distance matching.
func fuzzyTokenSubset(qTokens, vTokens []string, threshold int) bool {
	if len(qTokens) == 0 {
		return false
	}
	for _, qt := range qTokens {
		found := false
		for _, vt := range vTokens {
			if Ratio(qt, vt) > threshold {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// levenshtein computes edit distance with a two-row table.
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
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
