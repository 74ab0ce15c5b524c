package search

import (
	"testing"

	"shopbot-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []model.Item {
	return []model.Item{
		{ID: "e", DisplayName: "Champions Phantom"},
		{ID: "c", DisplayName: "Reaver Vandal"},
		{ID: "a", DisplayName: "Prime Vandal"},
		{ID: "d", DisplayName: "Élderflame Operator"},
		{ID: "b", DisplayName: "Prime Phantom"},
	}
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestSearchSubstring(t *testing.T) {
	ix := New(testItems())
	assert.Equal(t, []string{"a", "c"}, ids(ix.Search("vandal")))
	assert.Equal(t, []string{"a", "b"}, ids(ix.Search("PRIME")))
}

func TestSearchTypoMatchesWord(t *testing.T) {
	ix := New(testItems())
	assert.Equal(t, []string{"a", "c"}, ids(ix.Search("vandl")))
}

func TestSearchIgnoresAccents(t *testing.T) {
	ix := New(testItems())
	assert.Equal(t, []string{"d"}, ids(ix.Search("elderflame")))
	assert.Equal(t, []string{"d"}, ids(ix.Search("ÉLDERFLAME operator")))
}

func TestSearchExactMatchFirst(t *testing.T) {
	ix := New(testItems())
	results := ix.SearchScored("prime vandal")
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].Item.ID)
	assert.Zero(t, results[0].Distance)
	for _, r := range results {
		assert.Less(t, r.Distance, DefaultThreshold)
	}
}

func TestSearchNoMatch(t *testing.T) {
	ix := New(testItems())
	assert.Empty(t, ix.Search("xyz"))
	assert.Empty(t, ix.Search("   "))

	var empty *Index
	assert.Empty(t, empty.Search("vandal"))
	assert.Equal(t, 0, empty.Len())
}

func TestSearchIsDeterministic(t *testing.T) {
	items := testItems()
	first := New(items).Search("phantom")

	reversed := make([]model.Item, len(items))
	for i, item := range items {
		reversed[len(items)-1-i] = item
	}
	ix := New(reversed)

	assert.Equal(t, first, ix.Search("phantom"))
	assert.Equal(t, ix.Search("phantom"), ix.Search("phantom"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "elderflame operator", Fold("  Élderflame   OPERATOR "))
	assert.Equal(t, "strasse", Fold("Straße"))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 3, levenshtein([]rune("kitten"), []rune("sitting")))
	assert.Equal(t, 0, levenshtein([]rune("same"), []rune("same")))
	assert.Equal(t, 4, levenshtein(nil, []rune("four")))
}
