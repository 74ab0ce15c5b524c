// Package search provides a fuzzy name index over the item catalog.
package search

import (
	"sort"
	"strings"
	"unicode"

	"shopbot-api/internal/model"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the largest distance (exclusive) a result may have.
const DefaultThreshold = 0.3

// tokenWeight discounts matches made word by word against whole-name matches.
const tokenWeight = 0.9

// Result is a match with its distance: 0 is an exact match, 1 no similarity.
type Result struct {
	Item     model.Item
	Distance float64
}

type entry struct {
	item   model.Item
	folded []rune
	tokens [][]rune
}

// Index is an immutable fuzzy index. A new Index is built whenever the
// catalog changes; it is safe for concurrent use.
type Index struct {
	entries   []entry
	threshold float64
}

// New builds an index over items using DefaultThreshold.
func New(items []model.Item) *Index {
	return NewWithThreshold(items, DefaultThreshold)
}

// NewWithThreshold builds an index with a custom distance threshold.
func NewWithThreshold(items []model.Item, threshold float64) *Index {
	entries := make([]entry, 0, len(items))
	for _, item := range items {
		folded := Fold(item.DisplayName)
		e := entry{item: item, folded: []rune(folded)}
		for _, tok := range strings.Fields(folded) {
			e.tokens = append(e.tokens, []rune(tok))
		}
		entries = append(entries, e)
	}

	// Input order comes from map iteration; fix it so ties rank the same way
	// on every build.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.item.DisplayName != b.item.DisplayName {
			return a.item.DisplayName < b.item.DisplayName
		}
		return a.item.ID < b.item.ID
	})

	return &Index{entries: entries, threshold: threshold}
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Search returns matching items, best first.
func (ix *Index) Search(query string) []model.Item {
	results := ix.SearchScored(query)
	items := make([]model.Item, len(results))
	for i, r := range results {
		items[i] = r.Item
	}
	return items
}

// SearchScored returns matches with their distance, best first. Equal
// distances keep index order (name, then id).
func (ix *Index) SearchScored(query string) []Result {
	if ix == nil {
		return nil
	}
	folded := Fold(query)
	if folded == "" {
		return nil
	}
	q := []rune(folded)
	var qTokens [][]rune
	for _, tok := range strings.Fields(folded) {
		qTokens = append(qTokens, []rune(tok))
	}

	var results []Result
	for _, e := range ix.entries {
		distance := 1 - score(q, qTokens, e)/100
		if distance < ix.threshold {
			results = append(results, Result{Item: e.item, Distance: distance})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results
}

// Fold normalises a name for matching: accents removed, case folded,
// whitespace collapsed.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// score returns the similarity of the query to an entry in [0, 100].
func score(q []rune, qTokens [][]rune, e entry) float64 {
	best := similarity(q, e.folded)
	if best == 100 || len(e.tokens) == 0 {
		return best
	}

	// Word-by-word: every query word is matched to its closest name word.
	total := 0.0
	for _, qt := range qTokens {
		wordBest := 0.0
		for _, tok := range e.tokens {
			wordBest = max(wordBest, similarity(qt, tok))
		}
		total += wordBest
	}
	if len(qTokens) > 0 {
		best = max(best, tokenWeight*total/float64(len(qTokens)))
	}
	return best
}

// similarity scores two folded strings in [0, 100]: exact matches score 100,
// substrings at least 80, anything else by edit distance.
func similarity(query, target []rune) float64 {
	if len(query) == 0 || len(target) == 0 {
		return 0
	}
	if string(query) == string(target) {
		return 100
	}

	qs, ts := string(query), string(target)
	if strings.Contains(ts, qs) {
		s := 80 + float64(len(query))*15/float64(len(target))
		if strings.HasPrefix(ts, qs) {
			s += 4
		}
		return min(s, 99)
	}

	distance := levenshtein(query, target)
	maxLen := max(len(query), len(target))
	return 100 - float64(distance)*100/float64(maxLen)
}

// levenshtein returns the edit distance between two rune slices using two
// rolling rows.
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
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
