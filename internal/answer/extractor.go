// Package answer picks the single best reply sentence out of a retrieved
// chunk by rescoring each candidate sentence against the query.
package answer

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/embeddings"
	"github.com/frontdesk-labs/concierge/internal/lexical"
)

// Scoring weights: semantic match dominates, surface-term overlap breaks
// ties between semantically close sentences.
const (
	weightCosine  = 0.7
	weightLexical = 0.3
	// sentenceAvgLen is the fixed average token length used by the local
	// BM25 component.
	sentenceAvgLen = 20
)

// Extractor rescores sentences with cache-backed embeddings.
type Extractor struct {
	embedder embeddings.Provider
	logger   *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(embedder embeddings.Provider, logger *zap.Logger) *Extractor {
	return &Extractor{embedder: embedder, logger: logger}
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// BestSentence returns the sentence of chunkText that best answers the
// query. Zero valid sentences returns the chunk text unchanged; a single
// sentence is returned directly without any provider calls. When the
// embedding provider fails, scoring degrades to the lexical component alone.
func (e *Extractor) BestSentence(ctx context.Context, query, chunkText string) string {
	sentences := SplitSentences(chunkText)
	switch len(sentences) {
	case 0:
		return chunkText
	case 1:
		return sentences[0]
	}

	// One batch covers the query and every sentence; the provider call and
	// the cache probes run concurrently inside the embedding service.
	batch := append([]string{query}, sentences...)
	vecs, err := e.embedder.EmbedBatch(ctx, batch)
	if err != nil {
		e.logger.Warn("sentence embedding failed, lexical rescoring only", zap.Error(err))
		vecs = nil
	}

	bestIdx, bestScore := 0, math.Inf(-1)
	for i, s := range sentences {
		var semantic float64
		if vecs != nil {
			semantic = cosine(vecs[0], vecs[i+1])
		}
		score := weightCosine*semantic + weightLexical*lexical.ScoreSentence(query, s, sentenceAvgLen)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return sentences[bestIdx]
}
