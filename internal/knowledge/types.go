package knowledge

// Document is the ingest input: a stable id, free text, and optional tags.
type Document struct {
	ID   string   `json:"id"`
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// Chunk is the unit of retrieval, derived from a Document by the chunker.
// Chunks of one document preserve textual order and ChunkIndex is dense.
type Chunk struct {
	PointID    string   `json:"point_id"`
	DocID      string   `json:"doc_id"`
	ChunkIndex int      `json:"chunk_index"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags,omitempty"`
}

// Retrieved is a chunk with its fused retrieval score, rounded to 2 decimal
// places before it leaves the DAO.
type Retrieved struct {
	Chunk
	Score float64 `json:"score"`
}

// Citation points a reply back at a chunk that sourced it. Ref is the 1-based
// position in the returned list.
type Citation struct {
	DocID      string  `json:"id"`
	ChunkIndex int     `json:"chunk"`
	Score      float64 `json:"score"`
	Ref        int     `json:"ref"`
}

// CitationsFor derives the citation list for a retrieved set, 1:1 and in order.
func CitationsFor(results []Retrieved) []Citation {
	out := make([]Citation, len(results))
	for i, r := range results {
		out[i] = Citation{
			DocID:      r.DocID,
			ChunkIndex: r.ChunkIndex,
			Score:      r.Score,
			Ref:        i + 1,
		}
	}
	return out
}
