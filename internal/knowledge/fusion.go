package knowledge

import (
	"sort"
	"strings"
)

// rrfK is the reciprocal-rank-fusion smoothing constant. k=60 is the
// standard choice across search engines.
const rrfK = 60

// mmrLambda trades relevance against diversity in the MMR selection step.
const mmrLambda = 0.5

// fusedCandidate is one chunk after rank fusion.
type fusedCandidate struct {
	chunk    Chunk
	score    float64 // summed RRF contributions
	lexRank  int     // 0-based rank in the lexical list, -1 if absent
	denseRank int    // 0-based rank in the dense list, -1 if absent
}

// fuseRanks merges the lexical and dense candidate lists with Reciprocal
// Rank Fusion: each appearance at rank r contributes 1/(k + r + 1). A chunk
// missing from a source gets nothing from it. Ties break on lexical rank,
// then on point id.
func fuseRanks(lexical, dense []Chunk) []fusedCandidate {
	byID := make(map[string]*fusedCandidate, len(lexical)+len(dense))

	for rank, c := range lexical {
		byID[c.PointID] = &fusedCandidate{
			chunk:     c,
			score:     1.0 / float64(rrfK+rank+1),
			lexRank:   rank,
			denseRank: -1,
		}
	}
	for rank, c := range dense {
		if f, ok := byID[c.PointID]; ok {
			f.score += 1.0 / float64(rrfK+rank+1)
			f.denseRank = rank
			continue
		}
		byID[c.PointID] = &fusedCandidate{
			chunk:     c,
			score:     1.0 / float64(rrfK+rank+1),
			lexRank:   -1,
			denseRank: rank,
		}
	}

	fused := make([]fusedCandidate, 0, len(byID))
	for _, f := range byID {
		fused = append(fused, *f)
	}
	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ar, br := a.lexRank, b.lexRank
		if ar != br {
			// Present in the lexical list beats absent; lower rank beats higher.
			if ar == -1 {
				return false
			}
			if br == -1 {
				return true
			}
			return ar < br
		}
		return a.chunk.PointID < b.chunk.PointID
	})
	return fused
}

// wordSet builds the lowercased whitespace-token set of a text.
func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard similarity of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// selectMMR greedily picks up to k candidates by Maximal Marginal Relevance:
// the top fused candidate seeds the selection, then each step takes the
// remaining candidate maximizing λ·rel − (1−λ)·max similarity to the picks so
// far, with similarity = Jaccard over word sets of the chunk texts.
func selectMMR(candidates []fusedCandidate, k int) []fusedCandidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 8 {
		candidates = candidates[:8]
	}

	words := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		words[i] = wordSet(c.chunk.Text)
	}

	selected := []int{0}
	remaining := make([]int, 0, len(candidates)-1)
	for i := 1; i < len(candidates); i++ {
		remaining = append(remaining, i)
	}

	for len(selected) < k && len(remaining) > 0 {
		bestPos, bestVal := -1, 0.0
		for pos, ci := range remaining {
			maxSim := 0.0
			for _, si := range selected {
				if sim := jaccard(words[ci], words[si]); sim > maxSim {
					maxSim = sim
				}
			}
			val := mmrLambda*candidates[ci].score - (1-mmrLambda)*maxSim
			if bestPos == -1 || val > bestVal {
				bestPos, bestVal = pos, val
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	out := make([]fusedCandidate, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}
