// Package embeddings provides cache-backed access to an OpenAI-compatible
// embedding provider. Lookups go LRU -> Redis -> provider; both cache layers
// are strictly optional for correctness.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/circuitbreaker"
	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/metrics"
)

// Provider is the embedding capability the retrieval pipeline depends on.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service implements Provider against an OpenAI-compatible HTTP endpoint.
type Service struct {
	cfg    Config
	httpw  *circuitbreaker.HTTPWrapper
	store  *kv.Store
	lru    *LocalLRU
	logger *zap.Logger
}

// NewService creates an embedding service. store may be nil; the service then
// runs with the in-process LRU only.
func NewService(cfg Config, store *kv.Store, logger *zap.Logger) *Service {
	c := cfg.withDefaults()
	httpClient := &http.Client{Timeout: c.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "embeddings", "provider", logger)
	return &Service{cfg: c, httpw: httpw, store: store, lru: NewLocalLRU(c.MaxLRU), logger: logger}
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns vectors for all texts, resolving each through the cache
// layers and issuing a single provider call for the remainder.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var uncached []string
	var uncachedIdx []int

	for i, text := range texts {
		key := kv.TruncatedKey(kv.NSEmbedding, text)

		if v, ok := s.lru.Get(key); ok {
			results[i] = v
			metrics.RecordEmbedding(s.cfg.Model, "lru_hit", 0)
			continue
		}
		if s.store != nil {
			if b, ok := s.store.Get(ctx, key); ok {
				if v, ok := decodeVector(b); ok {
					results[i] = v
					s.lru.Set(key, v, 30*time.Minute)
					metrics.RecordEmbedding(s.cfg.Model, "cache_hit", 0)
					continue
				}
			}
		}
		uncached = append(uncached, text)
		uncachedIdx = append(uncachedIdx, i)
	}

	if len(uncached) == 0 {
		return results, nil
	}

	vecs, err := s.callProvider(ctx, uncached)
	if err != nil {
		return nil, err
	}

	for i, vec := range vecs {
		idx := uncachedIdx[i]
		results[idx] = vec

		key := kv.TruncatedKey(kv.NSEmbedding, uncached[i])
		s.lru.Set(key, vec, 30*time.Minute)
		if s.store != nil {
			s.store.SetAsync(key, encodeVector(vec), s.cfg.CacheTTL)
		}
	}
	return results, nil
}

func (s *Service) callProvider(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/embeddings", s.cfg.BaseURL)
	payload := embedRequest{Input: texts, Model: s.cfg.Model, Dimensions: s.cfg.Dimensions}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpw.Do(req)
	if err != nil {
		metrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		metrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		return nil, err
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(er.Data), len(texts))
	}

	// Provider order is not guaranteed; the index field is.
	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })

	out := make([][]float32, len(er.Data))
	for i, d := range er.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	metrics.RecordEmbedding(s.cfg.Model, "ok", time.Since(start).Seconds())
	s.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}
