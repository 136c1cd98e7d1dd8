// Package lexical implements the in-process BM25 index over the chunk
// corpus. The index is the sparse half of hybrid retrieval; it is rebuilt on
// every ingest and read concurrently during searches.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Okapi BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// Result is one scored chunk reference.
type Result struct {
	ID    string  // chunk point id
	Score float64 // BM25 score, > 0
}

type entry struct {
	id     string
	tf     map[string]int
	length int
}

// Index holds per-chunk term frequencies and corpus document frequencies.
// Writes happen only during ingest under the write lock; searches take the
// read lock, so an ingest in progress blocks retrieval on the same index.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	df      map[string]int
	totalLn int // sum of entry lengths, for average length
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{df: make(map[string]int)}
}

// Tokenize lowercases and splits on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Reset drops all entries and statistics.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	ix.df = make(map[string]int)
	ix.totalLn = 0
}

// Add appends a chunk to the index. Position order follows call order.
func (ix *Index) Add(id, text string) {
	tokens := Tokenize(text)
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for t := range tf {
		ix.df[t]++
	}
	ix.entries = append(ix.entries, entry{id: id, tf: tf, length: len(tokens)})
	ix.totalLn += len(tokens)
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Search scores every chunk against the query and returns up to n results
// with positive scores, best first. Ties break on chunk id so that repeated
// searches over a fixed corpus return identical orderings.
func (ix *Index) Search(query string, n int) []Result {
	terms := Tokenize(query)
	if len(terms) == 0 || n <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := len(ix.entries)
	if total == 0 {
		return nil
	}
	avgLen := float64(ix.totalLn) / float64(total)
	if avgLen == 0 {
		return nil
	}

	idf := make(map[string]float64, len(terms))
	for _, t := range terms {
		if _, seen := idf[t]; seen {
			continue
		}
		df := ix.df[t]
		idf[t] = math.Log(1 + (float64(total)-float64(df)+0.5)/(float64(df)+0.5))
	}

	results := make([]Result, 0, total)
	for _, e := range ix.entries {
		var score float64
		norm := k1 * (1 - b + b*float64(e.length)/avgLen)
		for _, t := range terms {
			tf := float64(e.tf[t])
			if tf == 0 {
				continue
			}
			score += idf[t] * tf * (k1 + 1) / (tf + norm)
		}
		if score > 0 {
			results = append(results, Result{ID: e.id, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > n {
		results = results[:n]
	}
	return results
}

// ScoreSentence computes the length-normalized BM25 term-frequency component
// of a query against one short text, with idf treated as a constant 1 and a
// fixed average length of avgLen tokens. Used by the answer extractor to
// break ties between semantically close sentences.
func ScoreSentence(query, sentence string, avgLen float64) float64 {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return 0
	}
	tokens := Tokenize(sentence)
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	norm := k1 * (1 - b + b*float64(len(tokens))/avgLen)
	var score float64
	for _, t := range terms {
		f := float64(tf[t])
		if f == 0 {
			continue
		}
		score += f * (k1 + 1) / (f + norm)
	}
	// Normalize so the lexical component stays comparable to cosine scores.
	return score / float64(len(terms))
}
