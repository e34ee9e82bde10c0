/*
fuzzy.go - stage 3 of spec §4.7: a bounded edit-distance scan of product
names, gated to queries of length >=3.

sahilm/fuzzy ranks candidates by subsequence-match score rather than true
edit distance, so it's used here to pre-select plausible candidates cheaply
before the exact Levenshtein distance (spec's own reported field) is
computed over just that shortlist. Levenshtein distance itself has no
library home in the retrieval pack; implemented directly, documented as a
stdlib exception alongside vector.go's cosine similarity.
*/
package search

import (
	"github.com/sahilm/fuzzy"
)

// DefaultLevenshteinThreshold is spec §4.7's default maximum edit distance.
const DefaultLevenshteinThreshold = 2

// fuzzyMatch finds candidates within maxDistance of query, using
// sahilm/fuzzy to shortlist before scoring exact distance.
func fuzzyMatch(query string, candidates []Candidate, maxDistance int) []Result {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	matches := fuzzy.Find(query, names)

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		dist := levenshtein(query, candidates[m.Index].Name)
		if dist > maxDistance {
			continue
		}
		d := dist
		results = append(results, Result{
			ItemID:              candidates[m.Index].ItemID,
			ProductName:         candidates[m.Index].Name,
			Price:               candidates[m.Index].Price,
			LevenshteinDistance: &d,
			SearchType:          MethodFuzzy,
		})
	}
	return results
}

// levenshtein computes the classic edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
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
