// Package kv provides the namespaced Redis-backed key-value store behind
// every cache layer: embeddings, query results, knowledge replies, session
// memory, and appointment records.
package kv

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/circuitbreaker"
	"github.com/frontdesk-labs/concierge/internal/metrics"
)

// Key namespaces. Values written under one namespace are never read through
// another; TTLs are fixed per namespace by the callers.
const (
	NSEmbedding = "emb:"
	NSQuery     = "query:"
	NSKnowledge = "knowledge:"
	NSMemory    = "memory:"
	NSAppt      = "appt:"

	// KeyApptSet holds the ids of all live appointments. Not namespaced per
	// record and carries no TTL.
	KeyApptSet = "appts:all"
)

// truncateWidth is the number of base64 characters kept when deriving emb:
// and knowledge: keys. Long near-duplicate inputs intentionally collapse to a
// shared entry; externally warmed caches depend on this exact width.
const truncateWidth = 100

// TruncatedKey derives a cache key from text: namespace + base64(text)
// truncated to 100 characters.
func TruncatedKey(ns, text string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(text))
	if len(enc) > truncateWidth {
		enc = enc[:truncateWidth]
	}
	return ns + enc
}

// QueryKey derives the retrieval cache key: query: + full base64 of the query.
func QueryKey(query string) string {
	return NSQuery + base64.StdEncoding.EncodeToString([]byte(query))
}

// Store is the process-wide KV store handle. All reads treat backend failure
// as a miss; writes come in checked and best-effort flavors.
type Store struct {
	client *circuitbreaker.RedisWrapper
	logger *zap.Logger
}

// NewStore connects to Redis at the given URL and verifies the connection.
func NewStore(redisURL string, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	wrapper := circuitbreaker.NewRedisWrapper(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrapper.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Store{client: wrapper, logger: logger}, nil
}

// nsOf extracts the namespace label from a key for metrics.
func nsOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return "other"
}

// Get returns the value for key. Any backend failure reads as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("kv read failed, treating as miss",
				zap.String("key", key), zap.Error(err))
		}
		metrics.CacheMisses.WithLabelValues(nsOf(key)).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(nsOf(key)).Inc()
	return b, true
}

// Set writes a value with TTL and reports failure to the caller.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// SetAsync writes a value in the background. Failures are logged and counted,
// never surfaced; removing any entry written this way only affects latency.
func (s *Store) SetAsync(key string, value []byte, ttl time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
			metrics.CacheWriteFailures.WithLabelValues(nsOf(key)).Inc()
			s.logger.Warn("best-effort kv write failed",
				zap.String("key", key), zap.Error(err))
		}
	}()
}

// Del removes the given keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// DelPattern removes every key matching the glob pattern and returns the
// number of keys removed.
func (s *Store) DelPattern(ctx context.Context, pattern string) (int, error) {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// KeysPattern lists keys matching the glob pattern.
func (s *Store) KeysPattern(ctx context.Context, pattern string) ([]string, error) {
	return s.client.Keys(ctx, pattern).Result()
}

// SAdd adds members to a set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

// SRem removes members from a set.
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Err()
}

// SMembers lists the members of a set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

// Ping verifies the backend connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the backend connection.
func (s *Store) Close() error {
	return s.client.Close()
}
