// Package knowledge owns the retrieval corpus: chunking and ingest, hybrid
// lexical/dense search with rank fusion and MMR diversity selection, and the
// query-result cache.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/frontdesk-labs/concierge/internal/embeddings"
	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/lexical"
	"github.com/frontdesk-labs/concierge/internal/metrics"
	"github.com/frontdesk-labs/concierge/internal/vectordb"
)

const (
	// candidateLimit is how many candidates each retrieval source contributes.
	candidateLimit = 8
	// denseThreshold is the cosine score cutoff for the dense source.
	denseThreshold = 0.2
	// queryCacheTTL bounds how long a fused top-k result is served verbatim.
	queryCacheTTL = 30 * time.Second
	// defaultK is the result count when the caller does not specify one.
	defaultK = 3
)

// pointNamespace seeds deterministic chunk point ids, so re-ingesting a
// document overwrites its previous points instead of orphaning them.
var pointNamespace = uuid.MustParse("9c0f2b1a-54d8-4a3e-8f25-4cf5a9a41d6e")

// VectorIndex is the subset of the vector DB client the DAO depends on.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	CreateCollection(ctx context.Context, name string, dim int) error
	DropCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []vectordb.UpsertItem) error
	Search(ctx context.Context, collection string, vec []float32, limit int, threshold float64) ([]vectordb.Point, error)
}

// DAO coordinates the lexical index, the vector DB, and the query cache.
// Ingest is single-writer; searches take the read lock and therefore block
// while an ingest is rebuilding the indices.
type DAO struct {
	embedder   embeddings.Provider
	vdb        VectorIndex
	store      *kv.Store
	lex        *lexical.Index
	collection string
	dim        int
	logger     *zap.Logger

	mu     sync.RWMutex
	corpus map[string]Chunk // point id -> chunk
	docIDs map[string]int   // doc id -> chunk count
}

// NewDAO creates a knowledge DAO. store may be nil to disable caching.
func NewDAO(embedder embeddings.Provider, vdb VectorIndex, store *kv.Store, collection string, dim int, logger *zap.Logger) *DAO {
	return &DAO{
		embedder:   embedder,
		vdb:        vdb,
		store:      store,
		lex:        lexical.NewIndex(),
		collection: collection,
		dim:        dim,
		logger:     logger,
		corpus:     make(map[string]Chunk),
		docIDs:     make(map[string]int),
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// pointID derives the deterministic point id for a chunk of a document.
func pointID(docID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", docID, chunkIndex))).String()
}

// Upsert chunks, embeds, and indexes the given documents. The lexical index
// is cleared first and rebuilt from exactly these documents, so callers
// ingest their full document set on every call. Returns the total chunk
// count. Not transactional: a partial failure leaves the lexical index
// inconsistent with the vector DB and the caller must retry or reset.
func (d *DAO) Upsert(ctx context.Context, docs []Document) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.vdb.EnsureCollection(ctx, d.collection, d.dim); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	d.lex.Reset()
	d.corpus = make(map[string]Chunk)
	d.docIDs = make(map[string]int)

	total := 0
	for _, doc := range docs {
		pieces := SplitDocument(doc.Text)
		if len(pieces) == 0 {
			d.docIDs[doc.ID] = 0
			continue
		}

		vecs, err := d.embedder.EmbedBatch(ctx, pieces)
		if err != nil {
			return total, fmt.Errorf("embed chunks of %s: %w", doc.ID, err)
		}

		items := make([]vectordb.UpsertItem, len(pieces))
		chunks := make([]Chunk, len(pieces))
		for i, text := range pieces {
			c := Chunk{
				PointID:    pointID(doc.ID, i),
				DocID:      doc.ID,
				ChunkIndex: i,
				Text:       text,
				Tags:       doc.Tags,
			}
			chunks[i] = c
			items[i] = vectordb.UpsertItem{
				ID:     c.PointID,
				Vector: vecs[i],
				Payload: map[string]interface{}{
					"text":        c.Text,
					"doc_id":      c.DocID,
					"chunk_index": c.ChunkIndex,
					"tags":        c.Tags,
				},
			}
		}

		if err := d.vdb.Upsert(ctx, d.collection, items); err != nil {
			return total, fmt.Errorf("upsert points of %s: %w", doc.ID, err)
		}
		for _, c := range chunks {
			d.lex.Add(c.PointID, c.Text)
			d.corpus[c.PointID] = c
		}
		d.docIDs[doc.ID] = len(chunks)
		total += len(chunks)
		metrics.DocumentsIngested.Inc()
		metrics.ChunksIngested.Add(float64(len(chunks)))
	}

	d.logger.Info("Ingest complete",
		zap.Int("documents", len(docs)), zap.Int("chunks", total))
	return total, nil
}

// Reset drops and recreates the vector collection and clears the lexical
// index. Cached query and knowledge entries are left to expire on their TTLs.
func (d *DAO) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.vdb.DropCollection(ctx, d.collection); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if err := d.vdb.CreateCollection(ctx, d.collection, d.dim); err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	d.lex.Reset()
	d.corpus = make(map[string]Chunk)
	d.docIDs = make(map[string]int)
	return nil
}

// DocumentCount returns the number of ingested documents.
func (d *DAO) DocumentCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docIDs)
}

// ChunkCount returns the number of indexed chunks.
func (d *DAO) ChunkCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.corpus)
}

// Search returns up to k chunks for the query, best first. Deterministic for
// a fixed corpus; a cache hit returns the stored list without re-running
// retrieval. Either retrieval source failing degrades to the other; both
// failing yields an empty list and no error.
func (d *DAO) Search(ctx context.Context, query string, k int) ([]Retrieved, error) {
	if k <= 0 {
		k = defaultK
	}

	cacheKey := kv.QueryKey(query)
	if d.store != nil {
		if b, ok := d.store.Get(ctx, cacheKey); ok {
			var cached []Retrieved
			if err := json.Unmarshal(b, &cached); err == nil {
				if len(cached) > k {
					cached = cached[:k]
				}
				return cached, nil
			}
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var lexChunks, denseChunks []Chunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		for _, r := range d.lex.Search(query, candidateLimit) {
			if c, ok := d.corpus[r.ID]; ok {
				lexChunks = append(lexChunks, c)
			}
		}
		metrics.RetrievalDuration.WithLabelValues("lexical").Observe(time.Since(start).Seconds())
		metrics.RetrievalResults.WithLabelValues("lexical").Observe(float64(len(lexChunks)))
		return nil
	})
	g.Go(func() error {
		// Dense failures degrade to lexical-only results.
		vec, err := d.embedder.Embed(gctx, query)
		if err != nil {
			d.logger.Warn("query embedding failed, dense retrieval skipped", zap.Error(err))
			return nil
		}
		points, err := d.vdb.Search(gctx, d.collection, vec, candidateLimit, denseThreshold)
		if err != nil {
			d.logger.Warn("vector search failed, dense retrieval skipped", zap.Error(err))
			return nil
		}
		denseChunks = chunksFromPoints(points)
		metrics.RetrievalResults.WithLabelValues("dense").Observe(float64(len(denseChunks)))
		return nil
	})
	// Neither leg returns an error; Wait orders the writes above.
	_ = g.Wait()

	if len(lexChunks) == 0 && len(denseChunks) == 0 {
		return []Retrieved{}, nil
	}

	fused := fuseRanks(lexChunks, denseChunks)
	picked := selectMMR(fused, k)

	results := make([]Retrieved, len(picked))
	for i, f := range picked {
		results[i] = Retrieved{Chunk: f.chunk, Score: round2(f.score)}
	}

	if d.store != nil {
		if b, err := json.Marshal(results); err == nil {
			d.store.SetAsync(cacheKey, b, queryCacheTTL)
		}
	}
	return results, nil
}

// chunksFromPoints rebuilds chunk values from vector DB payloads.
func chunksFromPoints(points []vectordb.Point) []Chunk {
	out := make([]Chunk, 0, len(points))
	for _, p := range points {
		c := Chunk{PointID: p.ID}
		if v, ok := p.Payload["text"].(string); ok {
			c.Text = v
		}
		if v, ok := p.Payload["doc_id"].(string); ok {
			c.DocID = v
		}
		if v, ok := p.Payload["chunk_index"].(float64); ok {
			c.ChunkIndex = int(v)
		}
		if tags, ok := p.Payload["tags"].([]interface{}); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					c.Tags = append(c.Tags, s)
				}
			}
		}
		out = append(out, c)
	}
	return out
}
