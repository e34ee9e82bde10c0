package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("coffee", "coffee"))
	assert.Equal(t, 1, levenshtein("coffee", "coffe"))
	assert.Equal(t, 1, levenshtein("coffee", "toffee"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestFuzzyMatch_WithinThreshold(t *testing.T) {
	candidates := []Candidate{
		{ItemID: "1", Name: "Coffee", Price: "3.00"},
		{ItemID: "2", Name: "Toffee", Price: "2.50"},
		{ItemID: "3", Name: "Sandwich", Price: "5.00"},
	}

	results := fuzzyMatch("Coffee", candidates, DefaultLevenshteinThreshold)

	var gotIDs []string
	for _, r := range results {
		gotIDs = append(gotIDs, r.ItemID)
		assert.Equal(t, MethodFuzzy, r.SearchType)
		assert.NotNil(t, r.LevenshteinDistance)
	}
	assert.Contains(t, gotIDs, "1")
	assert.NotContains(t, gotIDs, "3", "Sandwich is well outside the edit-distance threshold")
}

func TestFuzzyMatch_NoneWithinThreshold(t *testing.T) {
	candidates := []Candidate{{ItemID: "1", Name: "Sandwich", Price: "5.00"}}
	results := fuzzyMatch("xyz", candidates, DefaultLevenshteinThreshold)
	assert.Empty(t, results)
}
