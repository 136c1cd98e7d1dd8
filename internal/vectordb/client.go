// Package vectordb is a minimal Qdrant HTTP client covering the operations
// the knowledge base needs: collection lifecycle, point upsert, and cosine
// ANN search.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/circuitbreaker"
	"github.com/frontdesk-labs/concierge/internal/metrics"
)

// Config controls the Qdrant client.
type Config struct {
	URL     string // e.g. http://localhost:6333
	APIKey  string
	Timeout time.Duration
}

// Client talks to one Qdrant instance.
type Client struct {
	cfg    Config
	httpw  *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// NewClient creates a Qdrant client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectordb", logger)
	return &Client{cfg: cfg, httpw: httpw, logger: logger}
}

// Point is a stored vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertItem is one point to write.
type UpsertItem struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}
	return c.httpw.Do(req)
}

// EnsureCollection creates the collection when absent. Existing collections
// are left untouched regardless of their geometry.
func (c *Client) EnsureCollection(ctx context.Context, name string, dim int) error {
	resp, err := c.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return c.CreateCollection(ctx, name, dim)
}

// CreateCollection creates a cosine-metric collection with the given dimension.
func (c *Client) CreateCollection(ctx context.Context, name string, dim int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": dim, "distance": "Cosine"},
	}
	resp, err := c.do(ctx, http.MethodPut, "/collections/"+name, body)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("create collection %s: status %d", name, resp.StatusCode)
	}
	c.logger.Info("Created vector collection",
		zap.String("collection", name), zap.Int("dim", dim))
	return nil
}

// DropCollection deletes the collection. Missing collections are not an error.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/collections/"+name, nil)
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("drop collection %s: status %d", name, resp.StatusCode)
	}
	return nil
}

// Upsert writes points into the collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []UpsertItem) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]interface{}{"points": points}
	resp, err := c.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body)
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upsert into %s: status %d", collection, resp.StatusCode)
	}
	return nil
}

type queryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type queryResponse struct {
	Result struct {
		Points []Point `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search runs a cosine ANN query and returns up to limit points scoring at or
// above threshold, best first.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, limit int, threshold float64) ([]Point, error) {
	start := time.Now()
	var thr *float64
	if threshold > 0 {
		thr = &threshold
	}
	body := queryRequest{Query: vec, Limit: limit, ScoreThreshold: thr, WithPayload: true}

	resp, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/query", body)
	if err != nil {
		metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("vector search in %s: status %d", collection, resp.StatusCode)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordVectorSearch(collection, "ok", time.Since(start).Seconds())
	return qr.Result.Points, nil
}

// Healthy reports whether the Qdrant instance answers its readiness endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant readiness: status %d", resp.StatusCode)
	}
	return nil
}
