package embeddings

import "time"

// Config controls the embedding service behavior
type Config struct {
	// BaseURL of an OpenAI-compatible provider exposing POST {BaseURL}/embeddings
	BaseURL string
	// APIKey sent as a bearer token when non-empty
	APIKey string
	// Model is the embedding model name
	Model string
	// Dimensions requested from the provider; fixed at 512 for this service
	Dimensions int
	// Timeout for outbound HTTP calls
	Timeout time.Duration
	// CacheTTL sets TTL for emb: cache entries
	CacheTTL time.Duration
	// MaxLRU controls in-process LRU size
	MaxLRU int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimensions == 0 {
		c.Dimensions = 512
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxLRU == 0 {
		c.MaxLRU = 2048
	}
	return c
}
