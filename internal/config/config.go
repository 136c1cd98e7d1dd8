package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all process configuration. Values come from the environment;
// defaults match the development docker-compose setup.
type Config struct {
	Port       int    `mapstructure:"port"`
	HealthPort int    `mapstructure:"health_port"`
	RedisURL   string `mapstructure:"redis_url"`

	QdrantURL    string `mapstructure:"qdrant_url"`
	QdrantAPIKey string `mapstructure:"qdrant_api_key"`

	EmbeddingBaseURL string `mapstructure:"embedding_base_url"`
	EmbeddingAPIKey  string `mapstructure:"embedding_api_key"`
	EmbeddingModel   string `mapstructure:"embedding_model"`

	// ChatRPS enables rate limiting on /chat when > 0.
	ChatRPS float64 `mapstructure:"chat_rps"`

	LogLevel string `mapstructure:"log_level"`
}

// Collection name and embedding geometry are fixed; a warm vector collection
// and warm caches are only compatible with these exact values.
const (
	CollectionName = "clinic_knowledge"
	VectorDim      = 512
)

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3002)
	v.SetDefault("health_port", 8081)
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("qdrant_url", "http://localhost:6333")
	v.SetDefault("qdrant_api_key", "")
	v.SetDefault("embedding_base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding_api_key", "")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("chat_rps", 0.0)
	v.SetDefault("log_level", "info")

	// Bind explicitly so AutomaticEnv sees keys that were never Set.
	for _, key := range []string{
		"port", "health_port", "redis_url",
		"qdrant_url", "qdrant_api_key",
		"embedding_base_url", "embedding_api_key", "embedding_model",
		"chat_rps", "log_level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", c.Port)
	}
	return &c, nil
}
