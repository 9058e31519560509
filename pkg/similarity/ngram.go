// Package similarity provides n-gram similarity search over a set of
// indexed strings. Strings are decomposed into padded trigrams and
// candidates are found through a reverse index, so a search only
// scores strings that share at least one gram with the query.
package similarity

import (
	"sort"
	"strings"
)

// DefaultN is the default gram length.
const DefaultN = 3

// Match is a search hit with its similarity to the query.
type Match struct {
	Text       string
	Similarity float64
}

// Index is an n-gram similarity index. It is not safe for concurrent
// writes; build it once, then search from any goroutine.
type Index struct {
	n     int
	grams map[string]map[string]struct{}
	texts map[string]struct{}
}

// NewIndex creates an index with the given gram length. A length of
// zero or less falls back to trigrams.
func NewIndex(n int) *Index {
	if n <= 0 {
		n = DefaultN
	}
	return &Index{
		n:     n,
		grams: make(map[string]map[string]struct{}),
		texts: make(map[string]struct{}),
	}
}

// Add indexes a string. Adding the same string twice is a no-op and
// empty strings are ignored.
func (idx *Index) Add(text string) {
	if text == "" {
		return
	}
	if _, ok := idx.texts[text]; ok {
		return
	}
	idx.texts[text] = struct{}{}
	for gram := range idx.split(text) {
		entries, ok := idx.grams[gram]
		if !ok {
			entries = make(map[string]struct{})
			idx.grams[gram] = entries
		}
		entries[text] = struct{}{}
	}
}

// Len returns the number of indexed strings.
func (idx *Index) Len() int {
	return len(idx.texts)
}

// Search returns all indexed strings whose similarity to query is at
// least minSimilarity, best match first. Ties break on the text so
// results are deterministic.
func (idx *Index) Search(query string, minSimilarity float64) []Match {
	queryGrams := idx.split(query)
	if len(queryGrams) == 0 {
		return nil
	}

	shared := make(map[string]int)
	for gram := range queryGrams {
		for text := range idx.grams[gram] {
			shared[text]++
		}
	}

	matches := make([]Match, 0, len(shared))
	for text, common := range shared {
		textGrams := idx.split(text)
		union := len(queryGrams) + len(textGrams) - common
		if union == 0 {
			continue
		}
		similarity := float64(common) / float64(union)
		if similarity >= minSimilarity {
			matches = append(matches, Match{Text: text, Similarity: similarity})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Text < matches[j].Text
	})
	return matches
}

// split decomposes a string into its padded gram set. Padding with
// n-1 leading spaces and one trailing space weights prefixes the same
// way postgres trigram matching does.
func (idx *Index) split(text string) map[string]struct{} {
	if text == "" {
		return nil
	}
	padded := strings.Repeat(" ", idx.n-1) + text + " "
	runes := []rune(padded)
	grams := make(map[string]struct{})
	for i := 0; i+idx.n <= len(runes); i++ {
		grams[string(runes[i:i+idx.n])] = struct{}{}
	}
	return grams
}
